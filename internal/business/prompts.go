package business

import (
	"context"
	"log/slog"

	"github.com/atendai/zapagent/internal/store"
)

// StorePrompts resolves the persona prompt from the agent configuration of
// the deployment owner, falling back to the default attendant persona when
// no owner is set or the lookup fails.
type StorePrompts struct {
	repo    store.Repository
	ownerID string
}

// NewStorePrompts creates a store-backed prompt source.
func NewStorePrompts(repo store.Repository, ownerID string) *StorePrompts {
	return &StorePrompts{repo: repo, ownerID: ownerID}
}

// SystemPrompt returns the composed persona prompt and temperature.
func (p *StorePrompts) SystemPrompt(ctx context.Context) (string, float64) {
	if p.repo == nil || p.ownerID == "" {
		return defaultSystemPrompt, defaultTemperature
	}

	cfg, err := p.repo.GetAgentConfig(ctx, p.ownerID)
	if err != nil {
		slog.Warn("business: agent config lookup failed, using default persona", "owner", p.ownerID, "error", err)
		return defaultSystemPrompt, defaultTemperature
	}
	if cfg == nil {
		return defaultSystemPrompt, defaultTemperature
	}
	return cfg.SystemPrompt(), cfg.Temperature
}
