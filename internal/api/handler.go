// Package api provides the HTTP handlers for the ZapAgent backend.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/atendai/zapagent/internal/business"
	"github.com/atendai/zapagent/internal/domain"
	"github.com/atendai/zapagent/internal/store"
	"github.com/go-chi/chi/v5"
)

// Handler serves the webhook, status, send and agent-config endpoints.
type Handler struct {
	relay      *business.Relay
	dispatcher *business.Client
	repo       store.Repository
}

// NewHandler creates a new Handler with its dependencies.
func NewHandler(relay *business.Relay, dispatcher *business.Client, repo store.Repository) *Handler {
	return &Handler{
		relay:      relay,
		dispatcher: dispatcher,
		repo:       repo,
	}
}

// RegisterRoutes mounts the API routes on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/webhook", h.VerifyWebhook)
	r.Post("/webhook", h.ReceiveWebhook)
	r.Get("/status", h.Status)
	r.Post("/send", h.Send)
	r.Get("/config/{userID}", h.GetAgentConfig)
	r.Put("/config/{userID}", h.PutAgentConfig)
	r.Delete("/config/{userID}", h.DeleteAgentConfig)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// VerifyWebhook handles the provider's subscription handshake.
func (h *Handler) VerifyWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, ok := h.relay.VerifyWebhook(q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"))
	if !ok {
		slog.Warn("api: webhook verification rejected", "mode", q.Get("hub.mode"))
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(challenge)); err != nil {
		slog.Debug("api: failed to write challenge", "error", err)
	}
}

// ReceiveWebhook ingests a webhook envelope. Well-formed envelopes are
// always acknowledged with 200 regardless of processing outcome, so the
// provider never retry-storms over relay-internal failures.
func (h *Handler) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	var payload business.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		slog.Error("api: malformed webhook body", "error", err)
		Error(w, http.StatusInternalServerError, "malformed payload")
		return
	}

	// Message handling outlives the request.
	h.relay.ProcessWebhook(context.WithoutCancel(r.Context()), &payload)
	w.WriteHeader(http.StatusOK)
}

// Status reports whether the Business API number is usable.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if !h.dispatcher.Configured() {
		JSON(w, http.StatusOK, map[string]any{"status": "not_configured"})
		return
	}
	if !h.dispatcher.CheckStatus(r.Context()) {
		JSON(w, http.StatusOK, map[string]any{"status": "not_ready"})
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"info":   h.dispatcher.PhoneNumberInfo(r.Context()),
	})
}

type sendRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// Send delivers a test message through the Business API.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "malformed payload")
		return
	}
	if strings.TrimSpace(req.To) == "" || strings.TrimSpace(req.Message) == "" {
		Error(w, http.StatusBadRequest, "to and message are required")
		return
	}
	if !h.dispatcher.Configured() {
		Error(w, http.StatusServiceUnavailable, "whatsapp business api not configured")
		return
	}

	if !h.dispatcher.SendMessage(r.Context(), req.To, req.Message) {
		Error(w, http.StatusBadGateway, "failed to send message")
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetAgentConfig returns the agent configuration for a user.
func (h *Handler) GetAgentConfig(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	cfg, err := h.repo.GetAgentConfig(r.Context(), userID)
	if err != nil {
		slog.Error("api: agent config lookup failed", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load configuration")
		return
	}
	if cfg == nil {
		Error(w, http.StatusNotFound, "no configuration for user")
		return
	}
	JSON(w, http.StatusOK, cfg)
}

// PutAgentConfig validates and stores the agent configuration for a user.
func (h *Handler) PutAgentConfig(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var cfg domain.AgentConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		Error(w, http.StatusBadRequest, "malformed payload")
		return
	}
	cfg.UserID = userID

	if err := cfg.Validate(); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.repo.UpsertAgentConfig(r.Context(), &cfg); err != nil {
		slog.Error("api: agent config upsert failed", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to save configuration")
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// DeleteAgentConfig removes the agent configuration for a user. Deleting
// an absent configuration is not an error.
func (h *Handler) DeleteAgentConfig(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := h.repo.DeleteAgentConfig(r.Context(), userID); err != nil {
		slog.Error("api: agent config delete failed", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to delete configuration")
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}
