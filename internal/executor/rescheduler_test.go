package executor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/astrosession/internal/action"
	"github.com/antigravity-dev/astrosession/internal/genetic"
	"github.com/antigravity-dev/astrosession/internal/history"
	"github.com/antigravity-dev/astrosession/internal/visibility"
)

func TestGeneticReschedulerSkipsEntriesNotNeedingExecution(t *testing.T) {
	hist := history.Open(filepath.Join(t.TempDir(), "h.dat"))
	site := visibility.Site{}

	done := &Entry{Action: &action.Action{ID: 1, Kind: action.KindDark}, NeedsExecution: false}
	pending := &Entry{Action: &action.Action{ID: 2, Kind: action.KindDark, StaticPriority: 1, SessionPriority: 1}, NeedsExecution: true}

	g := &GeneticRescheduler{
		All:            []*Entry{done, pending},
		SessionStartJD: 2460000.0,
		SessionEndJD:   2460001.0,
		Site:           site,
		History:        hist,
		Config: genetic.Config{
			PopulationSize: 4, Retained: 2, GenerationLimit: 2,
			FRandomSwap: 0.15, FRotate: 0.25, FPairSwap: 0.2, FTimeDelay: 0.15,
		},
	}

	entries, err := g.Reschedule(context.Background(), 2460000.0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Same(t, pending, entries[0])
	require.True(t, entries[0].NeedsExecution)
}

func TestGeneticReschedulerReturnsNilWhenNothingNeedsExecution(t *testing.T) {
	g := &GeneticRescheduler{All: []*Entry{{Action: &action.Action{}, NeedsExecution: false}}}
	entries, err := g.Reschedule(context.Background(), 2460000.0)
	require.NoError(t, err)
	require.Nil(t, entries)
}
