package currency

import (
	"context"

	"github.com/cschleiden/loanflow/activity"
)

// Activities exposes currency conversion as workflow activities
type Activities struct {
	Converter *Converter
}

// ConvertCurrency converts amount from one currency into another. Unsupported currencies fail
// permanently, upstream failures are retried.
func (a *Activities) ConvertCurrency(ctx context.Context, amount, from, to string) (string, error) {
	r, err := a.Converter.Convert(ctx, amount, from, to)
	if err != nil {
		activity.Logger(ctx).Warn("currency conversion failed", "from", from, "to", to, "error", err)
		return "", err
	}

	activity.Logger(ctx).Debug("converted currency", "from", from, "to", to, "amount", amount, "result", r)

	return r, nil
}
