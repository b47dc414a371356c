// Package logging provides structured logging for foreman runs.
//
// It wraps Go's log/slog to write JSON lines that can be filtered after a run
// by run, stage, change-set or phase. Operator-facing terminal output is not
// handled here; see the console package.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger(runDir, "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	stageLog := logger.WithRun(runID).WithPhase("implementation").WithStage(3)
//	stageLog.Info("session launched", "session", name)
//
// # Thread Safety
//
// Child loggers created via the With* methods share the parent's output, so
// they can be handed to goroutines freely and any of them can Close it.
package logging
