package contextvalue

import (
	"github.com/cschleiden/loanflow/backend/converter"
	"github.com/cschleiden/loanflow/internal/sync"
)

type converterKey struct{}

func WithConverter(ctx sync.Context, converter converter.Converter) sync.Context {
	return sync.WithValue(ctx, converterKey{}, converter)
}

func Converter(ctx sync.Context) converter.Converter {
	if c, ok := ctx.Value(converterKey{}).(converter.Converter); ok {
		return c
	}

	return converter.DefaultConverter
}
