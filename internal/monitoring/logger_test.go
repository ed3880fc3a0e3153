package monitoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetLoggerRedirectsCalls(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var captured []string
	SetLogger(func(format string, v ...interface{}) {
		captured = append(captured, fmt.Sprintf(format, v...))
	})

	Logf("engine: axis overflow on session %s", "s1")

	require.Equal(t, []string{"engine: axis overflow on session s1"}, captured)
}

func TestSetLoggerNilInstallsDiscard(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	SetLogger(nil)

	require.NotPanics(t, func() { Logf("engine: axis overflow") })
}

func TestDefaultLogfIsNonNil(t *testing.T) {
	require.NotNil(t, Logf)
	require.NotPanics(t, func() { Logf("engine: session %s complete", "s1") })
}
