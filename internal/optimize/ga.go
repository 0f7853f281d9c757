package optimize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
)

// Gene is one searched parameter, kept within [Min, Max].
type Gene struct {
	Name string  `json:"name"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Params controls the genetic search.
type Params struct {
	PopulationSize int     `json:"population_size"`
	Generations    int     `json:"generations"`
	MutationRate   float64 `json:"mutation_rate"`
	CrossoverRate  float64 `json:"crossover_rate"`
	Elitism        int     `json:"elitism"`
	TournamentSize int     `json:"tournament_size"`
	// MutationScale is the Gaussian step as a fraction of a gene's range.
	MutationScale float64 `json:"mutation_scale"`
	Seed          int64   `json:"seed"`
	// Workers bounds concurrent fitness evaluations.
	Workers int `json:"workers"`
}

func DefaultParams() Params {
	return Params{
		PopulationSize: 50,
		Generations:    100,
		MutationRate:   0.1,
		CrossoverRate:  0.7,
		Elitism:        5,
		TournamentSize: 3,
		MutationScale:  0.1,
		Seed:           42,
		Workers:        4,
	}
}

func (p Params) Validate() error {
	switch {
	case p.PopulationSize < 2:
		return errors.New("population size must be >= 2")
	case p.Generations < 1:
		return errors.New("generations must be >= 1")
	case p.Elitism < 0 || p.Elitism >= p.PopulationSize:
		return fmt.Errorf("elitism %d must be in [0, population size)", p.Elitism)
	case p.MutationRate < 0 || p.MutationRate > 1:
		return fmt.Errorf("mutation rate %v outside [0,1]", p.MutationRate)
	case p.CrossoverRate < 0 || p.CrossoverRate > 1:
		return fmt.Errorf("crossover rate %v outside [0,1]", p.CrossoverRate)
	case p.TournamentSize < 1:
		return errors.New("tournament size must be >= 1")
	}
	return nil
}

// FitnessFunc scores one candidate; higher is better.
type FitnessFunc func(ctx context.Context, values map[string]float64) (float64, error)

// Result is the best candidate found. History holds the best fitness seen so
// far after each generation, so it never decreases.
type Result struct {
	Best        map[string]float64 `json:"best"`
	BestFitness float64            `json:"best_fitness"`
	History     []float64          `json:"history"`
	Evaluations int                `json:"evaluations"`
}

// GA is a generational genetic search with tournament selection,
// single-point crossover, Gaussian mutation and elitism.
type GA struct {
	Genes  []Gene
	Params Params
	// OnGeneration, when set, is called after each generation.
	OnGeneration func(gen int, best float64)
}

func New(genes []Gene, p Params) (*GA, error) {
	if len(genes) == 0 {
		return nil, errors.New("no genes to optimize")
	}
	for _, g := range genes {
		if !(g.Min < g.Max) {
			return nil, fmt.Errorf("gene %s: min %v must be below max %v", g.Name, g.Min, g.Max)
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &GA{Genes: genes, Params: p}, nil
}

type individual []float64

// Run evolves the population and returns the best candidate. A fitness error
// aborts the search. Cancellation between generations returns the best
// found so far together with ctx's error.
func (g *GA) Run(ctx context.Context, fitness FitnessFunc) (*Result, error) {
	p := g.Params
	rng := rand.New(rand.NewSource(p.Seed))

	pop := make([]individual, p.PopulationSize)
	for i := range pop {
		pop[i] = g.random(rng)
	}

	res := &Result{BestFitness: math.Inf(-1)}
	var best individual
	for gen := 0; gen < p.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			if best == nil {
				return nil, err
			}
			res.Best = g.values(best)
			return res, err
		}
		scores, err := g.evaluate(ctx, pop, fitness)
		if err != nil {
			if ctx.Err() != nil && best != nil {
				res.Best = g.values(best)
				return res, ctx.Err()
			}
			return nil, fmt.Errorf("generation %d: %w", gen, err)
		}
		res.Evaluations += len(pop)

		order := rankDesc(scores)
		if scores[order[0]] > res.BestFitness {
			res.BestFitness = scores[order[0]]
			best = append(individual(nil), pop[order[0]]...)
		}
		res.History = append(res.History, res.BestFitness)
		if g.OnGeneration != nil {
			g.OnGeneration(gen, res.BestFitness)
		}
		if gen == p.Generations-1 {
			break
		}

		next := make([]individual, 0, p.PopulationSize)
		for _, i := range order[:p.Elitism] {
			next = append(next, append(individual(nil), pop[i]...))
		}
		for len(next) < p.PopulationSize {
			a, b := g.crossover(rng, g.tournament(rng, pop, scores), g.tournament(rng, pop, scores))
			next = append(next, g.mutate(rng, a))
			if len(next) < p.PopulationSize {
				next = append(next, g.mutate(rng, b))
			}
		}
		pop = next
	}
	res.Best = g.values(best)
	return res, nil
}

// evaluate scores the population with at most Params.Workers concurrent calls.
func (g *GA) evaluate(ctx context.Context, pop []individual, fitness FitnessFunc) ([]float64, error) {
	workers := g.Params.Workers
	if workers <= 0 {
		workers = 1
	}
	scores := make([]float64, len(pop))
	errs := make([]error, len(pop))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, ind := range pop {
		wg.Add(1)
		go func(i int, ind individual) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			scores[i], errs[i] = fitness(ctx, g.values(ind))
		}(i, ind)
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	for i, s := range scores {
		if math.IsNaN(s) {
			scores[i] = math.Inf(-1)
		}
	}
	return scores, nil
}

func (g *GA) random(rng *rand.Rand) individual {
	ind := make(individual, len(g.Genes))
	for i, gene := range g.Genes {
		ind[i] = gene.Min + rng.Float64()*(gene.Max-gene.Min)
	}
	return ind
}

func (g *GA) tournament(rng *rand.Rand, pop []individual, scores []float64) individual {
	k := g.Params.TournamentSize
	if k > len(pop) {
		k = len(pop)
	}
	winner := -1
	for _, i := range rng.Perm(len(pop))[:k] {
		if winner < 0 || scores[i] > scores[winner] {
			winner = i
		}
	}
	return append(individual(nil), pop[winner]...)
}

func (g *GA) crossover(rng *rand.Rand, a, b individual) (individual, individual) {
	if len(a) < 2 || rng.Float64() >= g.Params.CrossoverRate {
		return a, b
	}
	point := 1 + rng.Intn(len(a)-1)
	c1 := append(append(individual(nil), a[:point]...), b[point:]...)
	c2 := append(append(individual(nil), b[:point]...), a[point:]...)
	return c1, c2
}

func (g *GA) mutate(rng *rand.Rand, ind individual) individual {
	if rng.Float64() >= g.Params.MutationRate {
		return ind
	}
	for i, gene := range g.Genes {
		span := gene.Max - gene.Min
		v := ind[i] + rng.NormFloat64()*g.Params.MutationScale*span
		ind[i] = math.Min(gene.Max, math.Max(gene.Min, v))
	}
	return ind
}

func (g *GA) values(ind individual) map[string]float64 {
	out := make(map[string]float64, len(g.Genes))
	for i, gene := range g.Genes {
		out[gene.Name] = ind[i]
	}
	return out
}

// rankDesc returns indices of scores from best to worst; ties keep index order.
func rankDesc(scores []float64) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })
	return order
}
