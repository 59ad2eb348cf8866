package predictors

import (
	"context"
	"fmt"
	"sync"

	"hilo-forecaster/internal/models"
)

// Engine evaluates predictors in parallel using a worker pool.
type Engine struct {
	workers    int
	predictors []Predictor
}

// NewEngine creates a new engine with the specified number of workers.
// A non-positive worker count runs one goroutine per predictor.
func NewEngine(workers int, predictors ...Predictor) *Engine {
	if workers <= 0 || workers > len(predictors) {
		workers = len(predictors)
	}
	return &Engine{
		workers:    workers,
		predictors: predictors,
	}
}

// NewEngineFromConfig builds the catalogue described by cfg and wraps it in an engine.
func NewEngineFromConfig(cfg Config, workers int) (*Engine, error) {
	preds, err := NewCatalogue(cfg)
	if err != nil {
		return nil, err
	}
	return NewEngine(workers, preds...), nil
}

// Predictors returns the registered predictors in catalogue order.
func (e *Engine) Predictors() []Predictor {
	return e.predictors
}

// Names returns the registered predictor names in catalogue order.
func (e *Engine) Names() []string {
	names := make([]string, len(e.predictors))
	for i, p := range e.predictors {
		names[i] = p.Name()
	}
	return names
}

// RunAll evaluates every predictor on h and returns the votes in catalogue order.
func (e *Engine) RunAll(ctx context.Context, h models.History) ([]models.Vote, error) {
	votes := make([]models.Vote, len(e.predictors))
	if len(e.predictors) == 0 {
		return votes, nil
	}

	var wg sync.WaitGroup
	work := make(chan int, len(e.predictors))

	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				select {
				case <-ctx.Done():
					return
				default:
					// Each worker owns distinct indices, so no lock is needed.
					votes[idx] = e.predictors[idx].Predict(h)
				}
			}
		}()
	}

	for i := range e.predictors {
		work <- i
	}
	close(work)

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return votes, nil
}

// Run evaluates a single predictor by name.
func (e *Engine) Run(ctx context.Context, name string, h models.History) (models.Vote, error) {
	for _, p := range e.predictors {
		if p.Name() != name {
			continue
		}
		select {
		case <-ctx.Done():
			return models.Vote{}, ctx.Err()
		default:
			return p.Predict(h), nil
		}
	}
	return models.Vote{}, fmt.Errorf("predictor %s not found", name)
}
