package business

import (
	"context"
	"log/slog"
	"sync"
)

// expectedObject is the top-level tag Meta stamps on Business account
// webhook deliveries. Envelopes with any other tag are ignored.
const expectedObject = "whatsapp_business_account"

// Apology is the fixed fallback sent to the end user when reply generation
// or the primary send attempt fails.
const Apology = "Desculpe, ocorreu um erro ao processar sua mensagem. Tente novamente em alguns instantes."

// defaultSystemPrompt answers messages when no agent configuration exists
// for the deployment owner.
const defaultSystemPrompt = "Você é um assistente de atendimento ao cliente amigável e prestativo. Responda de forma profissional, útil e em português brasileiro."

const defaultTemperature = 0.7

// WebhookPayload is the provider's webhook envelope wrapping zero or more
// inbound message records.
type WebhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string      `json:"field"`
			Value ChangeValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ChangeValue carries the messages (if any) of one webhook change. Status
// callbacks arrive with no messages and are no-ops.
type ChangeValue struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []struct {
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
		WaID string `json:"wa_id"`
	} `json:"contacts,omitempty"`
	Messages []InboundMessage `json:"messages,omitempty"`
}

// InboundMessage is one provider-delivered message record.
type InboundMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
}

// Body returns the text body, or an empty string when absent.
func (m *InboundMessage) Body() string {
	if m.Text == nil {
		return ""
	}
	return m.Text.Body
}

// ReplyGenerator produces a reply for an inbound message. Implementations
// must not fail; they return a fallback string instead.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, message, systemPrompt string, temperature float64) string
}

// Dispatcher delivers an outbound text message and reports success.
type Dispatcher interface {
	SendMessage(ctx context.Context, to, text string) bool
}

// PromptSource resolves the persona system prompt and temperature used to
// answer inbound messages.
type PromptSource interface {
	SystemPrompt(ctx context.Context) (string, float64)
}

// Relay validates inbound webhooks and routes each contained message
// through the reply generator and the dispatcher. Message handling is
// fire-and-forget: one message's failure never blocks its siblings, and
// processing failures are never surfaced to the webhook caller.
type Relay struct {
	verifyToken string
	generator   ReplyGenerator
	dispatcher  Dispatcher
	prompts     PromptSource

	wg sync.WaitGroup
}

// NewRelay creates a webhook relay. prompts may be nil, in which case the
// default attendant persona is used.
func NewRelay(verifyToken string, generator ReplyGenerator, dispatcher Dispatcher, prompts PromptSource) *Relay {
	return &Relay{
		verifyToken: verifyToken,
		generator:   generator,
		dispatcher:  dispatcher,
		prompts:     prompts,
	}
}

// VerifyWebhook implements the provider's subscription handshake: the
// challenge is echoed back iff the mode is "subscribe" and the token
// matches the provisioned verification secret.
func (r *Relay) VerifyWebhook(mode, token, challenge string) (string, bool) {
	if mode == "subscribe" && r.verifyToken != "" && token == r.verifyToken {
		return challenge, true
	}
	return "", false
}

// ProcessWebhook routes every message in the envelope to handling.
// Envelopes with an unexpected object tag are silently ignored. Each
// message is handled in its own goroutine with no ordering guarantee.
func (r *Relay) ProcessWebhook(ctx context.Context, payload *WebhookPayload) {
	if payload == nil || payload.Object != expectedObject {
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			for _, msg := range change.Value.Messages {
				r.wg.Add(1)
				go func(m InboundMessage) {
					defer r.wg.Done()
					r.handleMessage(ctx, m)
				}(msg)
			}
		}
	}
}

// Wait blocks until all in-flight message handling has finished.
func (r *Relay) Wait() {
	r.wg.Wait()
}

func (r *Relay) handleMessage(ctx context.Context, msg InboundMessage) {
	sender := msg.From
	body := msg.Body()
	slog.Info("business: inbound message", "from", sender, "type", msg.Type)

	systemPrompt, temperature := defaultSystemPrompt, defaultTemperature
	if r.prompts != nil {
		systemPrompt, temperature = r.prompts.SystemPrompt(ctx)
	}

	reply := r.generator.GenerateReply(ctx, body, systemPrompt, temperature)
	if r.dispatcher.SendMessage(ctx, sender, reply) {
		return
	}

	// One fallback attempt; its failure is terminal.
	if !r.dispatcher.SendMessage(ctx, sender, Apology) {
		slog.Error("business: fallback apology send failed", "to", sender)
	}
}
