// internal/search/relax/relax.go

// Package relax recovers zero-result searches by dropping filter groups
// in a fixed priority order, one group per retry, and reporting what was
// loosened.
package relax

import (
	"context"

	"search-orchestrator/internal/common/logger"
	"search-orchestrator/internal/common/metrics"
	"search-orchestrator/internal/models"
)

// step is one droppable filter group. Steps are ordered; each drops
// exactly one group and is idempotent.
type step struct {
	name       models.RelaxationStep
	applicable func(f *models.Filters) bool
	apply      func(f *models.Filters)
}

// steps is the fixed cascade order. A resolved store id anchors user
// intent and is never dropped.
var steps = []step{
	{
		name:       models.RelaxOpenNow,
		applicable: func(f *models.Filters) bool { return f.OpenNow },
		apply:      func(f *models.Filters) { f.OpenNow = false },
	},
	{
		name:       models.RelaxVeg,
		applicable: func(f *models.Filters) bool { return f.Veg != models.VegAny },
		apply:      func(f *models.Filters) { f.Veg = models.VegAny },
	},
	{
		name: models.RelaxPricing,
		applicable: func(f *models.Filters) bool {
			return f.RatingMin != nil || f.PriceMin != nil || f.PriceMax != nil
		},
		apply: func(f *models.Filters) {
			f.RatingMin = nil
			f.PriceMin = nil
			f.PriceMax = nil
		},
	},
}

// SearchFunc executes one search attempt with the given filters and
// returns the total match count of the whole result set, not the size
// of any page slice.
type SearchFunc func(ctx context.Context, f models.Filters) (int, error)

// Runner drives the cascade.
type Runner struct {
	logger logger.Logger
}

func NewRunner(log logger.Logger) *Runner {
	return &Runner{logger: log.WithFields(map[string]interface{}{"component": "relaxation"})}
}

// Run executes fn with the full filter set, then relaxes one group at a
// time, cumulatively and only as far as needed. It returns the filters
// of the last attempt and the steps applied, in order. A still-empty
// result after the full cascade is a legitimate empty response, not an
// error.
func (r *Runner) Run(ctx context.Context, f models.Filters, fn SearchFunc) (models.Filters, []models.RelaxationStep, error) {
	count, err := fn(ctx, f)
	if err != nil {
		return f, nil, err
	}
	if count > 0 {
		return f, nil, nil
	}

	var applied []models.RelaxationStep
	for _, s := range steps {
		if !s.applicable(&f) {
			continue
		}
		s.apply(&f)
		applied = append(applied, s.name)
		metrics.RelaxationSteps.WithLabelValues(string(s.name)).Inc()
		r.logger.Info("relaxing filter group after zero results", map[string]interface{}{
			"step": string(s.name),
		})

		count, err = fn(ctx, f)
		if err != nil {
			return f, applied, err
		}
		if count > 0 {
			return f, applied, nil
		}
	}
	return f, applied, nil
}

// RelaxPlan runs the cascade against a search plan, mutating its
// relaxable fields in place and recording the applied steps on the
// plan. The plan's store id is untouched by construction.
func (r *Runner) RelaxPlan(ctx context.Context, plan *models.SearchPlan, fn SearchFunc) error {
	relaxed, applied, err := r.Run(ctx, plan.ToFilters(), fn)
	if err != nil {
		return err
	}

	plan.OpenNow = relaxed.OpenNow
	plan.Veg = relaxed.Veg
	plan.RatingMin = relaxed.RatingMin
	plan.PriceMin = relaxed.PriceMin
	plan.PriceMax = relaxed.PriceMax
	plan.Relaxed = append(plan.Relaxed, applied...)
	return nil
}
