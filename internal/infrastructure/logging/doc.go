// Package logging provides structured logging using uber/zap.
//
// Production builds log JSON, development builds log colored console lines.
// Domain components never build their own logger; they receive a *zap.Logger
// from Logger.Component so every line carries a "component" field:
//
//	logger := logging.NewDefault()
//	bridgeLog := logger.Component("bridge")
//	bridgeLog.Warn("write failed", zap.String("conn", conn.String()), zap.Error(err))
package logging
