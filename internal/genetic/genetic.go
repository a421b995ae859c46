// Package genetic implements the genetic scheduler (spec.md §4.6): it
// takes every Observing Action a session subscribes to and a
// scheduling window and returns an ordered plan maximizing total
// score, by evolving a population of candidate orderings.
//
// Grounded on original_source/SESSION_LIB/scheduler.cc's population
// loop (fixed population/elite/generation-limit constants, roulette
// offspring selection, dedup-after-mutation) and scoring.cc's
// materialize-then-score fitness function; scheduler.cc's raw C arrays
// and manual hash-chain table become a slice-based population and a
// plain Go map memo cache.
package genetic

import (
	"math/rand"

	"github.com/antigravity-dev/astrosession/internal/action"
)

// timeDelayTable is the hand-tuned inter-action delay palette,
// indexed by a gene's TimeIndex (spec.md §4.6), in seconds.
var timeDelayTable = [16]float64{
	0, 0, 0, 0, 0, 0, 0, 0,
	60, 120, 300, 600, 900, 1800, 3600, 7200,
}

// Config holds the tunable constants of the evolutionary search, all
// defaulted to scheduler.cc's literals; tests shrink GenerationLimit
// to keep runs fast.
type Config struct {
	PopulationSize  int
	Retained        int
	GenerationLimit int

	FRandomSwap float64
	FRotate     float64
	FPairSwap   float64
	FTimeDelay  float64
	// remaining probability mass goes to splice (crossover)

	LogEveryGenerations  int
	SnapshotEveryGenerations int

	Rand *rand.Rand // nil uses a fresh source seeded with 1
}

// DefaultConfig returns scheduler.cc's literal tuning constants.
func DefaultConfig() Config {
	return Config{
		PopulationSize:  70,
		Retained:        40,
		GenerationLimit: 1000,

		FRandomSwap: 0.15,
		FRotate:     0.25,
		FPairSwap:   0.20,
		FTimeDelay:  0.15,

		LogEveryGenerations:      40,
		SnapshotEveryGenerations: 100,
	}
}

// Gene is one chromosome slot: an index into the input OA table and a
// time-delay-table index.
type Gene struct {
	StarID    int
	TimeIndex int
}

// Chromosome is a fixed-length permutation of star ids with an
// inter-action delay choice attached to each slot.
type Chromosome []Gene

func (c Chromosome) clone() Chromosome {
	out := make(Chromosome, len(c))
	copy(out, c)
	return out
}

// Individual is one candidate schedule: its chromosome, the
// materialized trial schedule, and the resulting score.
type Individual struct {
	Chromosome   Chromosome
	Score        float64
	Trial        *Trial
	UsefulLength int
}

func newIndividual(n int) *Individual {
	return &Individual{Chromosome: make(Chromosome, n)}
}

func (ind *Individual) clone() *Individual {
	// Trial is carried over, not deep-copied: an elite clone's
	// chromosome is byte-identical to its parent, so the parent's
	// already-materialized trial remains valid and is never mutated
	// in place afterward.
	return &Individual{Chromosome: ind.Chromosome.clone(), Score: ind.Score, UsefulLength: ind.UsefulLength, Trial: ind.Trial}
}

// Input is one entry of the OA table the scheduler optimizes over,
// carrying the action plus whatever per-object state scoring needs.
type Input struct {
	Action *action.Action
}

func (c Config) rng() *rand.Rand {
	if c.Rand != nil {
		return c.Rand
	}
	return rand.New(rand.NewSource(1))
}

// randomChromosome returns a uniformly shuffled permutation of
// [0, n) paired with random time-indices, the genetic seed state for
// the initial population.
func randomChromosome(n int, r *rand.Rand) Chromosome {
	perm := r.Perm(n)
	c := make(Chromosome, n)
	for i, starID := range perm {
		c[i] = Gene{StarID: starID, TimeIndex: r.Intn(len(timeDelayTable))}
	}
	return c
}

// buildInitialPopulation seeds Config.PopulationSize individuals with
// random permutations, mirroring scheduler.cc's build_initial_population.
func buildInitialPopulation(n int, cfg Config) []*Individual {
	r := cfg.rng()
	pop := make([]*Individual, cfg.PopulationSize)
	for i := range pop {
		ind := newIndividual(n)
		ind.Chromosome = randomChromosome(n, r)
		pop[i] = ind
	}
	return pop
}

// cleanoutDuplicates restores the permutation invariant after an
// operator may have introduced a repeated star_id, per scheduler.cc's
// cleanout_duplicates: every star id absent from the chromosome is
// substituted for one of the duplicated slots.
func cleanoutDuplicates(c Chromosome, r *rand.Rand) {
	n := len(c)
	seen := make([]int, n)
	for _, g := range c {
		seen[g.StarID]++
	}
	var missing []int
	for id, count := range seen {
		if count == 0 {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return
	}

	found := make([]bool, n)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if r.Intn(2) == 1 {
		for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
			order[i], order[j] = order[j], order[i]
		}
	}

	mi := len(missing)
	for _, i := range order {
		id := c[i].StarID
		if found[id] {
			mi--
			c[i].StarID = missing[mi]
			found[missing[mi]] = true
		} else {
			found[id] = true
		}
	}
}

// applyOperator mutates a clone of parent (or splices parent with
// mate for the "else splice" branch) and returns the offspring,
// mirroring scheduler.cc's per-slot roulette over the four mutation
// operators plus two-parent crossover.
func applyOperator(parent, mate *Individual, cfg Config, r *rand.Rand) *Individual {
	n := len(parent.Chromosome)
	child := newIndividual(n)

	roll := r.Float64()
	switch {
	case roll < cfg.FRandomSwap:
		child.Chromosome = parent.Chromosome.clone()
		randomSwap(child.Chromosome, r)
	case roll < cfg.FRandomSwap+cfg.FRotate:
		child.Chromosome = parent.Chromosome.clone()
		innerRotate(child.Chromosome, r)
	case roll < cfg.FRandomSwap+cfg.FRotate+cfg.FPairSwap:
		child.Chromosome = parent.Chromosome.clone()
		adjacentPairSwap(child.Chromosome, r)
	case roll < cfg.FRandomSwap+cfg.FRotate+cfg.FPairSwap+cfg.FTimeDelay:
		child.Chromosome = parent.Chromosome.clone()
		timeDelayMutation(child.Chromosome, r)
	default:
		child.Chromosome = splice(parent.Chromosome, mate.Chromosome, r)
	}

	cleanoutDuplicates(child.Chromosome, r)
	return child
}

// randomSwap exchanges two randomly chosen genes' star ids.
func randomSwap(c Chromosome, r *rand.Rand) {
	if len(c) < 2 {
		return
	}
	i, j := r.Intn(len(c)), r.Intn(len(c))
	c[i].StarID, c[j].StarID = c[j].StarID, c[i].StarID
}

// innerRotate rotates a random substring of the chromosome right by a
// random amount.
func innerRotate(c Chromosome, r *rand.Rand) {
	n := len(c)
	if n < 3 {
		return
	}
	start := r.Intn(n)
	length := 2 + r.Intn(n-1)
	if start+length > n {
		length = n - start
	}
	if length < 2 {
		return
	}
	shift := 1 + r.Intn(length-1)
	sub := c[start : start+length]
	rotated := make(Chromosome, length)
	for i := range sub {
		rotated[(i+shift)%length] = sub[i]
	}
	copy(sub, rotated)
}

// adjacentPairSwap swaps two neighboring genes.
func adjacentPairSwap(c Chromosome, r *rand.Rand) {
	n := len(c)
	if n < 2 {
		return
	}
	i := r.Intn(n - 1)
	c[i], c[i+1] = c[i+1], c[i]
}

// timeDelayMutation picks a random gene and assigns it a new
// inter-action delay index.
func timeDelayMutation(c Chromosome, r *rand.Rand) {
	if len(c) == 0 {
		return
	}
	i := r.Intn(len(c))
	c[i].TimeIndex = r.Intn(len(timeDelayTable))
}

// splice performs a single-cut two-parent crossover at a random cut:
// a's genes before the cut, b's from the cut on.
func splice(a, b Chromosome, r *rand.Rand) Chromosome {
	n := len(a)
	if n == 0 {
		return Chromosome{}
	}
	cut := r.Intn(n)
	out := make(Chromosome, n)
	copy(out[:cut], a[:cut])
	copy(out[cut:], b[cut:])
	return out
}

// rouletteSelect picks a parent from the retained elite, biased
// toward higher-scoring individuals.
func rouletteSelect(elite []*Individual, r *rand.Rand) *Individual {
	total := 0.0
	for _, e := range elite {
		total += e.Score + 1.0 // +1 keeps zero-score individuals selectable
	}
	if total <= 0 {
		return elite[r.Intn(len(elite))]
	}
	pick := r.Float64() * total
	for _, e := range elite {
		pick -= e.Score + 1.0
		if pick <= 0 {
			return e
		}
	}
	return elite[len(elite)-1]
}
