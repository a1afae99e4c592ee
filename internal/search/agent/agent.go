// internal/search/agent/agent.go

// Package agent turns free text into a structured search plan: a rule
// parser that is always available, optionally overridden by an external
// NLU service, followed by fuzzy store resolution.
package agent

import (
	"context"

	"search-orchestrator/internal/common/logger"
	"search-orchestrator/internal/models"
)

// intentService is the optional external parse path.
type intentService interface {
	Parse(ctx context.Context, text string, geo *models.GeoPoint) (*models.SearchPlan, error)
}

// StoreResolver resolves an extracted store-name hint to a store record.
type StoreResolver interface {
	ResolveStoreByName(ctx context.Context, name, moduleID string) (*models.Store, error)
}

// Agent builds search plans from free text.
type Agent struct {
	rules  *RuleParser
	nlu    intentService
	stores StoreResolver
	logger logger.Logger
}

// NewAgent wires the agent. nlu may be nil; the rule path then handles
// everything.
func NewAgent(rules *RuleParser, nlu intentService, stores StoreResolver, log logger.Logger) *Agent {
	return &Agent{
		rules:  rules,
		nlu:    nlu,
		stores: stores,
		logger: log.WithFields(map[string]interface{}{"component": "nlu-agent"}),
	}
}

// BuildPlan parses the text and resolves the store hint. It never
// fails: NLU outages fall back to rules, and an unresolvable store name
// silently drops the store filter while keeping the hint for
// diagnostics.
func (a *Agent) BuildPlan(ctx context.Context, text string, geo *models.GeoPoint) *models.SearchPlan {
	plan := a.rules.Parse(text, geo)

	if a.nlu != nil {
		nluPlan, err := a.nlu.Parse(ctx, text, geo)
		if err != nil {
			a.logger.WithError(err).Warn("NLU service failed, using rule-based plan", nil)
		} else {
			plan = nluPlan
		}
	}

	a.resolveStore(ctx, plan)
	return plan
}

func (a *Agent) resolveStore(ctx context.Context, plan *models.SearchPlan) {
	if plan.StoreName == "" || plan.StoreID != "" || a.stores == nil {
		return
	}

	store, err := a.stores.ResolveStoreByName(ctx, plan.StoreName, plan.Module.ID)
	if err != nil {
		a.logger.WithError(err).Warn("store resolution failed, searching without store filter", map[string]interface{}{
			"storeName": plan.StoreName,
		})
		return
	}
	if store == nil {
		// Silent abort: the hint stays on the plan, the filter does not.
		a.logger.Debug("store hint did not resolve", map[string]interface{}{
			"storeName": plan.StoreName,
		})
		return
	}

	plan.StoreID = store.ID
	if plan.Module.IsEmpty() && store.ModuleID != "" {
		plan.Module = models.ModuleSelector{ID: store.ModuleID}
	}
}
