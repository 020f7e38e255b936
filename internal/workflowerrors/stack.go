package workflowerrors

import goerrors "github.com/go-errors/errors"

func stack(v any) string {
	goerr := goerrors.New(v)
	return string(goerr.Stack())
}
