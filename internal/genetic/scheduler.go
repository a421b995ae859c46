package genetic

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/antigravity-dev/astrosession/internal/history"
	"github.com/antigravity-dev/astrosession/internal/visibility"
)

// Result is the genetic scheduler's output: the best schedule found
// and its total score, spec.md §4.6.
type Result struct {
	Placed []*PlacedAction
	Score  float64
}

// Run evolves a population of chromosomes over inputs and returns the
// best schedule found within [sessionStart, sessionEnd], mirroring
// scheduler.cc's main_loop.
func Run(inputs []*Input, sessionStart, sessionEnd float64, site visibility.Site, hist *history.History, cfg Config, log *slog.Logger) *Result {
	if log == nil {
		log = slog.Default()
	}
	if len(inputs) == 0 {
		return &Result{}
	}

	scorer := &Scorer{Site: site, History: hist, SessionStartJD: sessionStart, SessionEndJD: sessionEnd}
	memo := map[string]float64{}
	r := cfg.rng()

	pop := buildInitialPopulation(len(inputs), cfg)
	for _, ind := range pop {
		evaluate(ind, inputs, scorer, memo)
	}

	for gen := 0; gen < cfg.GenerationLimit; gen++ {
		sortPopulationDesc(pop)
		suppressIdenticalIndividuals(pop, inputs)
		sortPopulationDesc(pop)

		if cfg.LogEveryGenerations > 0 && gen%cfg.LogEveryGenerations == 0 {
			log.Info("genetic: generation summary",
				"generation", gen,
				"best_score", pop[0].Score,
				"worst_elite_score", pop[cfg.effectiveRetained(len(pop))-1].Score)
		}
		if cfg.SnapshotEveryGenerations > 0 && gen%cfg.SnapshotEveryGenerations == 0 {
			logTopThree(log, pop)
		}

		retained := cfg.effectiveRetained(len(pop))
		elite := pop[:retained]

		next := make([]*Individual, 0, len(pop))
		for _, e := range elite {
			next = append(next, e.clone())
		}
		for len(next) < len(pop) {
			parent := rouletteSelect(elite, r)
			mate := rouletteSelect(elite, r)
			child := applyOperator(parent, mate, cfg, r)
			evaluate(child, inputs, scorer, memo)
			next = append(next, child)
		}
		pop = next
	}

	sortPopulationDesc(pop)
	best := pop[0]
	// Force a fresh materialization: a memo hit may have left Trial nil.
	scorer.score(best, inputs)

	return &Result{Placed: best.Trial.GetTrial(), Score: best.Score}
}

func (c Config) effectiveRetained(popLen int) int {
	if c.Retained <= 0 || c.Retained > popLen {
		return popLen
	}
	return c.Retained
}

func evaluate(ind *Individual, inputs []*Input, scorer *Scorer, memo map[string]float64) {
	key := chromosomeKey(ind.Chromosome)
	if s, ok := memo[key]; ok {
		ind.Score = s
		return
	}
	memo[key] = scorer.score(ind, inputs)
}

func chromosomeKey(c Chromosome) string {
	var sb strings.Builder
	for _, g := range c {
		fmt.Fprintf(&sb, "%d:%d,", g.StarID, g.TimeIndex)
	}
	return sb.String()
}

// identicalSignature is the "sequence of RES_OK (star_id, time_index)
// pairs" spec.md §4.6 compares to detect fixation-causing duplicates.
func identicalSignature(ind *Individual, inputs []*Input) string {
	if ind.Trial == nil {
		return ""
	}
	placedByInput := make(map[*Input]*PlacedAction, len(ind.Trial.GetTrial()))
	for _, p := range ind.Trial.GetTrial() {
		placedByInput[p.Input] = p
	}

	var sb strings.Builder
	for _, g := range ind.Chromosome {
		in := inputs[g.StarID]
		if p, ok := placedByInput[in]; ok && p.Result == ResultOK {
			fmt.Fprintf(&sb, "%d:%d;", g.StarID, g.TimeIndex)
		}
	}
	return sb.String()
}

// suppressIdenticalIndividuals zeroes the score of every individual
// whose RES_OK sequence duplicates a higher-ranked individual's,
// spec.md §4.6's "identical-individual suppression after sort."
func suppressIdenticalIndividuals(pop []*Individual, inputs []*Input) {
	seen := make(map[string]bool, len(pop))
	for _, ind := range pop {
		sig := identicalSignature(ind, inputs)
		if sig == "" {
			continue
		}
		if seen[sig] {
			ind.Score = 0
			continue
		}
		seen[sig] = true
	}
}

func sortPopulationDesc(pop []*Individual) {
	sort.SliceStable(pop, func(i, j int) bool { return pop[i].Score > pop[j].Score })
}

func logTopThree(log *slog.Logger, pop []*Individual) {
	n := len(pop)
	for i := 0; i < 3 && i < n; i++ {
		log.Info("genetic: top schedule", "rank", i+1, "score", pop[i].Score, "useful_length", pop[i].UsefulLength)
	}
}
