package errorsx

import "log/slog"

// BestEffort runs fn and logs a warning with the reason code when it fails.
// It is the single place for "log and keep going" side effects (transcript
// appends, counter bumps, metrics) so callers never swallow errors ad hoc.
func BestEffort(logger *slog.Logger, op string, reason ReasonCode, fn func() error) {
	if fn == nil {
		return
	}
	if err := fn(); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("best_effort_failed",
			"op", op,
			"reason_code", string(reason),
			"error", err.Error(),
		)
	}
}
