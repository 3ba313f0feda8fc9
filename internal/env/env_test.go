package env

import (
	"strings"
	"testing"
)

func TestMergeLayersOverrideBase(t *testing.T) {
	e := New(Var{"PATH": "/usr/bin", "BARK_SERVER": "old"})
	out := Parse(e.Merge(Var{"BARK_SERVER": "https://bark.example.com"}, Var{"CHECK_INTERVAL": "60"}))
	if out["PATH"] != "/usr/bin" || out["BARK_SERVER"] != "https://bark.example.com" || out["CHECK_INTERVAL"] != "60" {
		t.Fatalf("unexpected merge: %v", out)
	}
}

func TestMergeExpandsReferences(t *testing.T) {
	e := New(Var{"HOME": "/home/ops"})
	out := Parse(e.Merge(Var{"DATA": "${HOME}/data", "MISSING": "${NOPE}x"}))
	if out["DATA"] != "/home/ops/data" {
		t.Fatalf("expected expansion, got %q", out["DATA"])
	}
	if out["MISSING"] != "x" {
		t.Fatalf("unknown reference should expand to empty, got %q", out["MISSING"])
	}
}

func TestMergeIsSortedAndSkipsEmptyKeys(t *testing.T) {
	out := New(nil).Merge(Var{"B": "2", "A": "1", "": "x"})
	if strings.Join(out, ",") != "A=1,B=2" {
		t.Fatalf("unexpected output: %v", out)
	}
}

func TestParseSkipsMalformed(t *testing.T) {
	m := Parse([]string{"A=1", "=bad", "novalue", "B=x=y"})
	if len(m) != 2 || m["B"] != "x=y" {
		t.Fatalf("unexpected parse: %v", m)
	}
}

func FuzzMerge(f *testing.F) {
	f.Add("A=1\nB=${A}-x", "C=${B}-y")
	f.Add("X=$Y", "Y=${X}")
	f.Fuzz(func(t *testing.T, baseS, layerS string) {
		out := New(Parse(strings.Split(baseS, "\n"))).Merge(Parse(strings.Split(layerS, "\n")))
		for _, kv := range out {
			if !strings.Contains(kv, "=") || strings.HasPrefix(kv, "=") {
				t.Fatalf("bad pair: %q", kv)
			}
		}
	})
}
