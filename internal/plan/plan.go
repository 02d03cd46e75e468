// Package plan implements plan.propose: a single, synchronous call to the
// configured AI provider that turns a free-text brief into a list of
// candidate tasks for an operator to turn into real tasks via tasks.create.
// It never starts an agent subprocess and has nothing to do with the ACP
// wire protocol used to run agents in worktrees.
package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kagan-sh/kagan-sub004/internal/config"
)

// Candidate is one proposed task, shaped to drop straight into a
// tasks.create call.
type Candidate struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
}

// Provider completes a single prompt against a configured AI backend.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Service proposes candidate tasks from a brief.
type Service struct {
	provider Provider
}

// NewService builds a Service backed by the provider named in cfg.AI.Provider.
func NewService(cfg *config.Config) (*Service, error) {
	provider, err := newProvider(cfg.AI)
	if err != nil {
		return nil, err
	}
	return &Service{provider: provider}, nil
}

// NewServiceWithProvider builds a Service against an explicit provider,
// bypassing config-driven selection; used by tests and by callers that
// already hold a configured provider.
func NewServiceWithProvider(provider Provider) *Service {
	return &Service{provider: provider}
}

func newProvider(cfg config.AIConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "anthropic":
		return newAnthropicProvider(cfg)
	case "openai":
		return newOpenAIProvider(cfg)
	default:
		return nil, fmt.Errorf("plan: unrecognized ai.provider %q", cfg.Provider)
	}
}

const promptTemplate = `You are helping a software team break a brief into actionable tasks.
Given the brief below, propose between 1 and 8 candidate tasks. Respond with
ONLY a JSON array, no prose, no code fences, where each element has the shape:
{"title": string, "description": string, "acceptance_criteria": [string, ...]}

Brief:
%s`

// Propose asks the configured provider to draft candidate tasks from brief.
// The caller is responsible for turning any of the results into real tasks
// via tasks.create; Propose never writes to the task store itself.
func (s *Service) Propose(ctx context.Context, brief string) ([]Candidate, error) {
	brief = strings.TrimSpace(brief)
	if brief == "" {
		return nil, fmt.Errorf("plan: brief must not be empty")
	}

	raw, err := s.provider.Complete(ctx, fmt.Sprintf(promptTemplate, brief))
	if err != nil {
		return nil, fmt.Errorf("plan: provider completion failed: %w", err)
	}

	candidates, err := parseCandidates(raw)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	return candidates, nil
}

// parseCandidates is tolerant of a model wrapping its JSON in a fenced code
// block despite being asked not to.
func parseCandidates(raw string) ([]Candidate, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var candidates []Candidate
	if err := json.Unmarshal([]byte(raw), &candidates); err != nil {
		return nil, fmt.Errorf("decode candidate tasks: %w", err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("provider proposed zero candidate tasks")
	}
	for i, c := range candidates {
		if strings.TrimSpace(c.Title) == "" {
			return nil, fmt.Errorf("candidate %d has an empty title", i)
		}
	}
	return candidates, nil
}
