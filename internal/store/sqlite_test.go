package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/atendai/zapagent/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestGetAgentConfig_MissingReturnsNil(t *testing.T) {
	repo := newTestStore(t)

	cfg, err := repo.GetAgentConfig(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("GetAgentConfig: %v", err)
	}
	if cfg != nil {
		t.Errorf("expected nil config for unknown user, got %+v", cfg)
	}
}

func TestUpsertAgentConfig_Roundtrip(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	in := &domain.AgentConfig{
		UserID:           "u1",
		Prompt:           "Você é um atendente cordial.",
		Context1:         "Loja de eletrônicos",
		Context3:         "Horário comercial",
		Temperature:      0.4,
		Voice:            "formal",
		WorkStart:        "08:00",
		WorkEnd:          "18:00",
		AutoReply:        true,
		ReplyDelay:       3,
		MaxConversations: 10,
		Language:         "pt-BR",
	}
	if err := repo.UpsertAgentConfig(ctx, in); err != nil {
		t.Fatalf("UpsertAgentConfig: %v", err)
	}

	got, err := repo.GetAgentConfig(ctx, "u1")
	if err != nil {
		t.Fatalf("GetAgentConfig: %v", err)
	}
	if got == nil {
		t.Fatal("expected stored config, got nil")
	}
	if got.Prompt != in.Prompt || got.Context1 != in.Context1 || got.Context3 != in.Context3 {
		t.Errorf("prompt/contexts mismatch: %+v", got)
	}
	if got.Temperature != in.Temperature {
		t.Errorf("temperature = %v, want %v", got.Temperature, in.Temperature)
	}
	if !got.AutoReply || got.ReplyDelay != 3 || got.MaxConversations != 10 {
		t.Errorf("reply settings mismatch: %+v", got)
	}
	if got.WorkStart != "08:00" || got.WorkEnd != "18:00" || got.Language != "pt-BR" {
		t.Errorf("schedule/language mismatch: %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
}

func TestUpsertAgentConfig_UpdatesExisting(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	if err := repo.UpsertAgentConfig(ctx, &domain.AgentConfig{UserID: "u1", Prompt: "first", Temperature: 0.7}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := repo.UpsertAgentConfig(ctx, &domain.AgentConfig{UserID: "u1", Prompt: "second", Temperature: 0.2}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := repo.GetAgentConfig(ctx, "u1")
	if err != nil {
		t.Fatalf("GetAgentConfig: %v", err)
	}
	if got.Prompt != "second" || got.Temperature != 0.2 {
		t.Errorf("expected updated values, got %+v", got)
	}
}

func TestDeleteAgentConfig(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	if err := repo.UpsertAgentConfig(ctx, &domain.AgentConfig{UserID: "u1", Prompt: "p", Temperature: 0.7}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.DeleteAgentConfig(ctx, "u1"); err != nil {
		t.Fatalf("DeleteAgentConfig: %v", err)
	}

	got, err := repo.GetAgentConfig(ctx, "u1")
	if err != nil {
		t.Fatalf("GetAgentConfig: %v", err)
	}
	if got != nil {
		t.Errorf("expected config removed, got %+v", got)
	}

	// Deleting an absent row is not an error.
	if err := repo.DeleteAgentConfig(ctx, "u1"); err != nil {
		t.Errorf("delete of absent row: %v", err)
	}
}

func TestConfigsIsolatedPerUser(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	if err := repo.UpsertAgentConfig(ctx, &domain.AgentConfig{UserID: "u1", Prompt: "one", Temperature: 0.7}); err != nil {
		t.Fatalf("upsert u1: %v", err)
	}
	if err := repo.UpsertAgentConfig(ctx, &domain.AgentConfig{UserID: "u2", Prompt: "two", Temperature: 0.7}); err != nil {
		t.Fatalf("upsert u2: %v", err)
	}

	got, err := repo.GetAgentConfig(ctx, "u2")
	if err != nil {
		t.Fatalf("GetAgentConfig: %v", err)
	}
	if got.Prompt != "two" {
		t.Errorf("expected u2's config, got %+v", got)
	}
}

func TestPing(t *testing.T) {
	repo := newTestStore(t)
	if err := repo.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
