package scheduler

import "log/slog"

// cronLogger adapts slog to the robfig/cron logger interface. Routine
// dispatch messages are logged at debug level.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("scheduler: cron "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("scheduler: cron "+msg, append([]any{"error", err}, keysAndValues...)...)
}
