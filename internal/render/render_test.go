package render

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNoop(t *testing.T) {
	var r Renderer = Noop{}

	_, err := r.Render(context.Background(), "http://example.com")
	require.ErrorIs(t, err, ErrDisabled)
	require.NoError(t, r.Close())
}

func TestNewChromedpDisabled(t *testing.T) {
	_, err := NewChromedp(Config{MaxParallel: 0}, zap.NewNop())
	require.ErrorIs(t, err, ErrDisabled)
}
