/*
Package resilience provides the circuit breaker that watches backend write and
resize streams.

# Overview

Writes and resizes to a terminal connection are fire-and-forget: the caller
never sees their errors. Each connection gets a Breaker so that a run of
failures is still noticed. When the breaker trips, the owner raises a soft
error indicator on the session instead of failing the session.

# Usage

	breaker := resilience.New(conn.String(), resilience.Settings{
		Threshold: 3,
		Cooldown:  10 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("breaker state", zap.String("conn", name), zap.Stringer("to", to))
		},
	})

	err := breaker.Do(func() error {
		return backend.Write(ctx, conn, data)
	})

# States

	Closed --[Threshold failures]-> Open --[Cooldown]-> Half-Open --[Probes successes]-> Closed
	                                                        |
	                                                    [failure]
	                                                        v
	                                                       Open
*/
package resilience
