package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestThrottledPoolRunsCommand(t *testing.T) {
	p := NewThrottledPool(1, rate.Inf)
	err := p.Run(context.Background(), []string{"true"})
	require.NoError(t, err)
}

func TestThrottledPoolReportsFailureOutput(t *testing.T) {
	p := NewThrottledPool(1, rate.Inf)
	err := p.Run(context.Background(), []string{"sh", "-c", "echo boom >&2; exit 1"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
}

func TestThrottledPoolRejectsEmptyCommand(t *testing.T) {
	p := NewThrottledPool(1, rate.Inf)
	err := p.Run(context.Background(), nil)
	require.Error(t, err)
}

func TestSequentialSerializesCalls(t *testing.T) {
	s := &sequential{}
	order := []int{}
	err := s.RunSequential(func() error {
		order = append(order, 1)
		return nil
	})
	require.NoError(t, err)
	err = s.RunSequential(func() error {
		order = append(order, 2)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, order)
}
