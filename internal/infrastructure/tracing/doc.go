/*
Package tracing provides lightweight request tracing for the session API.

Every HTTP request gets a span. A client that sends X-Trace-ID and X-Span-ID
joins its own trace; otherwise a new trace id is minted. Finished spans are
logged through zap from a buffered collector goroutine.

# Usage

	tracer := tracing.New("termhub", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	// inside a handler
	traceID := tracing.GetTraceID(c.Request.Context())
*/
package tracing
