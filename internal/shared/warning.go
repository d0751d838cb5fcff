package shared

import "log/slog"

// Warning reports a best-effort side effect that failed while the primary
// operation succeeded. It is returned alongside results, never as an error.
type Warning struct {
	Step    string `json:"step"`
	Message string `json:"message"`
}

// Warnings accumulates partial failures for one operation.
type Warnings []Warning

// Add records a failed step.
func (w *Warnings) Add(step string, err error) {
	if err == nil {
		return
	}
	*w = append(*w, Warning{Step: step, Message: err.Error()})
}

// Addf records a failed step with a plain message.
func (w *Warnings) Addf(step, message string) {
	*w = append(*w, Warning{Step: step, Message: message})
}

// Merge appends other.
func (w *Warnings) Merge(other Warnings) {
	*w = append(*w, other...)
}

// Log writes every warning at warn level.
func (w Warnings) Log(logger *slog.Logger, op string) {
	if logger == nil {
		return
	}
	for _, warn := range w {
		logger.Warn("partial failure", slog.String("op", op), slog.String("step", warn.Step), slog.String("error", warn.Message))
	}
}
