package shared

import (
	"context"
	"log/slog"
	"time"
)

// DefaultOperationTimeout bounds conversion, payment and credit note flows.
const DefaultOperationTimeout = 45 * time.Second

// OperationObserver counts engine outcomes and partial failures.
type OperationObserver interface {
	ObserveOperation(op string, err error, warnings Warnings)
}

// Hooks bundles the collaborators every engine reports to.
type Hooks struct {
	Logger   *slog.Logger
	Views    ViewInvalidator
	Observer OperationObserver
	Timeout  time.Duration
}

// WithDefaults fills unset fields.
func (h Hooks) WithDefaults() Hooks {
	if h.Logger == nil {
		h.Logger = slog.Default()
	}
	if h.Timeout <= 0 {
		h.Timeout = DefaultOperationTimeout
	}
	return h
}

// Bound applies the operation timeout to ctx.
func (h Hooks) Bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.Timeout)
}

// Finish closes an engine operation: on success cached views of the company
// are dropped and warnings are logged; the outcome is observed and err is
// lifted into the domain taxonomy.
func (h Hooks) Finish(ctx context.Context, op, companyID string, err error, warnings Warnings) error {
	err = Classify(err)
	if err == nil {
		warnings.Log(h.Logger, op)
		if h.Views != nil && companyID != "" {
			if verr := h.Views.Invalidate(context.WithoutCancel(ctx), companyID); verr != nil {
				h.Logger.Warn("invalidate views", slog.String("op", op), slog.String("company_id", companyID), slog.Any("error", verr))
			}
		}
	}
	if h.Observer != nil {
		h.Observer.ObserveOperation(op, err, warnings)
	}
	return err
}
