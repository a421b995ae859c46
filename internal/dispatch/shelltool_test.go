package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/antigravity-dev/astrosession/internal/action"
)

func TestShellToolRunnerRunDarkInvokesConfiguredProgram(t *testing.T) {
	r := &ShellToolRunner{
		Dark: ToolConfig{Program: "true"},
		Pool: NewThrottledPool(1, rate.Inf),
	}
	err := r.RunDark(context.Background(), &action.Action{ID: 1, Kind: action.KindDark})
	require.NoError(t, err)
}

func TestShellToolRunnerRunFlatRequiresConfiguredProgram(t *testing.T) {
	r := &ShellToolRunner{Pool: NewThrottledPool(1, rate.Inf)}
	err := r.RunFlat(context.Background(), &action.Action{ID: 1, Kind: action.KindFlat}, "V")
	require.Error(t, err)
}

func TestShellToolRunnerSubstitutesFilterIntoFlatCommand(t *testing.T) {
	r := &ShellToolRunner{
		Flat: ToolConfig{Program: "sh", Flags: []string{"-c", "test \"$0\" = filter_arg || exit 1", "{filter}"}},
		Pool: NewThrottledPool(1, rate.Inf),
	}
	err := r.RunFlat(context.Background(), &action.Action{ID: 1}, "filter_arg")
	require.NoError(t, err)
}
