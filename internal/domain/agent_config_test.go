package domain

import "testing"

func TestAgentConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     AgentConfig
		wantErr bool
	}{
		{"valid", AgentConfig{Prompt: "atendente", Temperature: 0.7}, false},
		{"temperature lower bound", AgentConfig{Prompt: "p", Temperature: 0}, false},
		{"temperature upper bound", AgentConfig{Prompt: "p", Temperature: 1}, false},
		{"empty prompt", AgentConfig{Prompt: "", Temperature: 0.5}, true},
		{"whitespace prompt", AgentConfig{Prompt: "   ", Temperature: 0.5}, true},
		{"temperature too high", AgentConfig{Prompt: "p", Temperature: 1.1}, true},
		{"temperature negative", AgentConfig{Prompt: "p", Temperature: -0.1}, true},
		{"negative reply delay", AgentConfig{Prompt: "p", Temperature: 0.5, ReplyDelay: -1}, true},
		{"negative max conversations", AgentConfig{Prompt: "p", Temperature: 0.5, MaxConversations: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAgentConfigSystemPrompt(t *testing.T) {
	cfg := AgentConfig{
		Prompt:   "  Você é um atendente.  ",
		Context1: "Loja de roupas",
		Context3: "Entregas em até 3 dias",
	}

	want := "Você é um atendente.\n\nLoja de roupas\n\nEntregas em até 3 dias"
	if got := cfg.SystemPrompt(); got != want {
		t.Errorf("SystemPrompt() = %q, want %q", got, want)
	}
}

func TestAgentConfigSystemPrompt_SkipsBlankContexts(t *testing.T) {
	cfg := AgentConfig{Prompt: "persona", Context2: "   "}

	if got := cfg.SystemPrompt(); got != "persona" {
		t.Errorf("SystemPrompt() = %q, want %q", got, "persona")
	}
}
