// Package etl orchestrates a full reconciliation run: ordered steps, each
// either required (failure aborts the run) or best-effort (failure is
// logged and the run continues). One source failing must not poison the
// others' completed scopes.
package etl

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Step is one unit of the run.
type Step struct {
	Name     string
	Required bool
	Fn       func(ctx context.Context) error
}

// Runner executes steps in order with per-step timing.
type Runner struct {
	log zerolog.Logger
}

func NewRunner(log zerolog.Logger) *Runner {
	return &Runner{log: log}
}

// Run executes the steps. It returns the first required-step error; errors
// from best-effort steps are logged and swallowed.
func (r *Runner) Run(ctx context.Context, steps []Step) error {
	runID := uuid.NewString()
	log := r.log.With().Str("run_id", runID).Logger()

	start := time.Now()
	log.Info().Int("steps", len(steps)).Msg("run start")

	for _, step := range steps {
		stepStart := time.Now()
		log.Info().Str("step", step.Name).Msg("step start")

		err := step.Fn(ctx)
		elapsed := time.Since(stepStart)

		if err == nil {
			log.Info().Str("step", step.Name).Dur("elapsed", elapsed).Msg("step ok")
			continue
		}

		if step.Required {
			log.Error().Err(err).Str("step", step.Name).Dur("elapsed", elapsed).
				Msg("required step failed, aborting run")
			return err
		}
		log.Warn().Err(err).Str("step", step.Name).Dur("elapsed", elapsed).
			Msg("best-effort step failed, continuing")
	}

	log.Info().Dur("elapsed", time.Since(start)).Msg("run finished")
	return nil
}
