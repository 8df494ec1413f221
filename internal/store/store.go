// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/atendai/zapagent/internal/domain"
)

// Repository defines the interface for persisting agent configurations.
// Configurations are keyed by user ID.
type Repository interface {
	// GetAgentConfig retrieves the agent configuration for a user.
	// Returns (nil, nil) when no configuration exists.
	GetAgentConfig(ctx context.Context, userID string) (*domain.AgentConfig, error)

	// UpsertAgentConfig creates or updates an agent configuration.
	UpsertAgentConfig(ctx context.Context, cfg *domain.AgentConfig) error

	// DeleteAgentConfig removes an agent configuration.
	DeleteAgentConfig(ctx context.Context, userID string) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
