package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"smartsolution/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
)

func TestTraceContextMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceContextMiddleware())

	var seenTrace interface{}
	r.GET("/", func(c *gin.Context) {
		seenTrace = c.Request.Context().Value(contextkey.TraceID)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(traceIDHeader, "abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if seenTrace != "abc" {
		t.Fatalf("trace id in context = %v", seenTrace)
	}
	if got := w.Header().Get(traceIDHeader); got != "abc" {
		t.Fatalf("trace header = %q", got)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id")
	}
}
