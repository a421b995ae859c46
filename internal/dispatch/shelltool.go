package dispatch

import (
	"context"
	"fmt"

	"github.com/antigravity-dev/astrosession/internal/action"
)

// ToolConfig names the external Dark/Flat acquisition program and its
// configured flag templates, session-config-driven (spec.md §4.9's
// SHUTDOWNTASK/ANALY_PREREQ neighbors: an external program path plus
// argument template).
type ToolConfig struct {
	Program string
	Flags   []string
}

// ShellToolRunner implements executor.ShellTool by building a
// ToolInvocation and running it through a ThrottledPool (or, if
// Container is set, inside a pinned container image) — spec.md §4.8's
// "invoke the corresponding shell tool," §1's "their internals are out
// of scope" applying to the dark/flat acquisition program itself, not
// to the act of invoking it.
type ShellToolRunner struct {
	Dark, Flat ToolConfig
	Pool       *ThrottledPool
	Container  *ContainerRunner
	DefaultDir string
}

func (r *ShellToolRunner) run(ctx context.Context, inv ToolInvocation) error {
	argv, err := BuildToolCommand(inv)
	if err != nil {
		return err
	}
	if r.Container != nil {
		_, err := r.Container.Run(ctx, argv)
		return err
	}
	return r.Pool.Run(ctx, argv)
}

// RunDark invokes the configured dark-acquisition tool. Only
// {output_dir} is filled in; oa is not consulted.
func (r *ShellToolRunner) RunDark(ctx context.Context, oa *action.Action) error {
	if r.Dark.Program == "" {
		return fmt.Errorf("dispatch: no dark tool configured")
	}
	return r.run(ctx, ToolInvocation{
		Program:   r.Dark.Program,
		Flags:     r.Dark.Flags,
		OutputDir: r.DefaultDir,
	})
}

// RunFlat invokes the configured flat-acquisition tool for the given
// filter.
func (r *ShellToolRunner) RunFlat(ctx context.Context, oa *action.Action, filter string) error {
	if r.Flat.Program == "" {
		return fmt.Errorf("dispatch: no flat tool configured")
	}
	return r.run(ctx, ToolInvocation{
		Program:   r.Flat.Program,
		Flags:     r.Flat.Flags,
		Filter:    filter,
		OutputDir: r.DefaultDir,
	})
}
