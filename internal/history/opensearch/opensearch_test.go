package opensearch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/loykin/trackdeck/internal/history"
)

func TestOpenSearchSink_Send(t *testing.T) {
	var receivedBody []byte
	var receivedPath, receivedMethod string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedMethod = r.Method
		receivedPath = r.URL.Path
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	sink := New(server.URL+"/", "trackdeck")
	ev := history.NewEvent(history.EventStart, history.Record{Role: "notifier", Name: "notifier", PID: 7})
	if err := sink.Send(context.Background(), ev); err != nil {
		t.Fatalf("send: %v", err)
	}
	if receivedMethod != http.MethodPut {
		t.Fatalf("expected PUT, got %s", receivedMethod)
	}
	if receivedPath != "/trackdeck/_doc/"+ev.ID {
		t.Fatalf("unexpected path: %s", receivedPath)
	}
	var got history.Event
	if err := json.Unmarshal(receivedBody, &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got.Record.Role != "notifier" || got.Type != history.EventStart {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestOpenSearchSink_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	err := New(server.URL, "idx").Send(context.Background(), history.NewEvent(history.EventStop, history.Record{}))
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("expected status error, got %v", err)
	}
}
