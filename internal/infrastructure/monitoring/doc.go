/*
Package monitoring provides Prometheus metrics for the terminal service.

# Overview

Metrics cover the HTTP surface, the session registry, backend connections,
event routing, surface lifecycle and attached panels. Every recording method
accepts a nil receiver so domain packages can run without metrics in tests.

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	metrics.ConnectionOpened()
	metrics.RecordEvent("output", true)
*/
package monitoring
