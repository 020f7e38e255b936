package workflowerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type customErr struct{}

func (*customErr) Error() string { return "custom" }

func Test_getErrorType(t *testing.T) {
	require.Equal(t, "", getErrorType(errors.New("foo")))
	require.Equal(t, "", getErrorType(fmt.Errorf("wrap: %w", errors.New("foo"))))
	require.Equal(t, "customErr", getErrorType(&customErr{}))
	require.Equal(t, "PanicError", getErrorType(&PanicError{}))
}
