package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	l, err := New("debug")
	require.NoError(t, err)
	require.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = New("warn")
	require.NoError(t, err)
	require.False(t, l.Core().Enabled(zapcore.InfoLevel))

	_, err = New("loud")
	require.Error(t, err)
}
