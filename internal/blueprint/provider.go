package blueprint

import (
	"context"
	"fmt"
	"strings"
)

// Provider answers a free-text prompt. Implementations wrap one LLM
// backend; the engine never depends on which one.
type Provider interface {
	// Chat sends one prompt and returns the provider's text reply.
	Chat(ctx context.Context, prompt string) (string, error)
	// Name identifies the provider in logs and narrative titles.
	Name() string
}

// Config selects and parameterizes a provider.
type Config struct {
	// Provider is one of "mock", "gemini", "ollama". Empty means mock.
	Provider string
	APIKey   string
	Model    string
	// Endpoint overrides the provider's default API base URL.
	Endpoint string
}

// New builds the configured provider. Unknown names fall back to the
// mock so a misconfigured service still answers requests.
func New(cfg Config) Provider {
	switch strings.ToLower(cfg.Provider) {
	case "gemini":
		return NewGemini(cfg)
	case "ollama":
		return NewOllama(cfg)
	default:
		return Mock{}
	}
}

// Mock is the no-dependency provider used in tests and unconfigured
// deployments. Chat never fails.
type Mock struct {
	// Reply overrides the canned response when non-empty.
	Reply string
}

func (m Mock) Name() string { return "mock" }

func (m Mock) Chat(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.Reply != "" {
		return m.Reply, nil
	}
	return "Mock Chat: I see you are asking about data. (Configure a real provider to chat!)", nil
}

// NarrativeTitle renders the executive-summary heading for a provider.
func NarrativeTitle(p Provider) string {
	return fmt.Sprintf("Executive Summary (%s)", strings.ToUpper(p.Name()))
}
