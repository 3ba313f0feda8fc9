package server

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	bp = strings.TrimRight(bp, "/")
	return bp
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}

// settingValues converts a decoded JSON object to setting values. Scalars
// are stringified; nested objects and arrays are rejected.
func settingValues(in map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch x := v.(type) {
		case string:
			out[k] = x
		case nil:
			out[k] = ""
		case bool, float64, json.Number:
			out[k] = fmt.Sprint(x)
		default:
			return nil, fmt.Errorf("value of %s must be a string", k)
		}
	}
	return out, nil
}
