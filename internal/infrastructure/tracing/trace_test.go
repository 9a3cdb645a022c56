package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestStartSpanJoinsTrace(t *testing.T) {
	tracer := New("test", nil)
	defer tracer.Close()

	root, ctx := tracer.StartSpan(context.Background(), "root")
	child, _ := tracer.StartSpan(ctx, "child")

	assert.NotEmpty(t, root.TraceID)
	assert.Equal(t, root.TraceID, child.TraceID)
	assert.Equal(t, root.SpanID, child.ParentID)
	assert.NotEqual(t, root.SpanID, child.SpanID)
	assert.Equal(t, root.SpanID, GetSpanID(ctx))
}

func TestHTTPMiddleware(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	tracer := New("test", zap.New(core))

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(HTTPMiddleware(tracer))
	router.GET("/sessions/:id", func(c *gin.Context) {
		assert.Equal(t, TraceID("trace-1"), GetTraceID(c.Request.Context()))
		_ = c.Error(errors.New("boom"))
		c.Status(http.StatusNotFound)
	})

	req := httptest.NewRequest("GET", "/sessions/abc", nil)
	req.Header.Set(HeaderTraceID, "trace-1")
	req.Header.Set(HeaderSpanID, "parent-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "trace-1", w.Header().Get(HeaderTraceID))
	assert.NotEmpty(t, w.Header().Get(HeaderSpanID))

	tracer.Close()
	entries := logs.FilterMessage("span completed with error").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "GET /sessions/:id", fields["operation"])
	assert.Equal(t, "parent-1", fields["parent_id"])
	assert.Equal(t, "abc", fields["session"])
	assert.Equal(t, "404", fields["http.status"])
}

func TestSubmitDropsWhenFull(t *testing.T) {
	tracer := &Tracer{logger: zap.NewNop(), spans: make(chan *Span), done: make(chan struct{})}
	// no collector running: the unbuffered channel is always full
	tracer.Submit(&Span{})
	close(tracer.done)
}
