package types

import "fmt"

// TokenUsage records token consumption for a single LLM operation.
// TotalTokens must always equal PromptTokens + CompletionTokens; use
// Validate to enforce the invariant on provider-supplied values.
type TokenUsage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Model            string `json:"model,omitempty"`
	Provider         string `json:"provider,omitempty"`
}

// Add accumulates another TokenUsage into this one. Model and Provider
// keep the most recently added values, matching aggregation across a
// multi-node workflow where the last call's attribution wins.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
	if other.Model != "" {
		u.Model = other.Model
	}
	if other.Provider != "" {
		u.Provider = other.Provider
	}
}

// Validate checks the internal consistency of the usage record.
func (u *TokenUsage) Validate() error {
	if u.PromptTokens < 0 || u.CompletionTokens < 0 || u.TotalTokens < 0 {
		return NewError(ErrValidation, "token counts cannot be negative")
	}
	if expected := u.PromptTokens + u.CompletionTokens; u.TotalTokens != expected {
		return NewErrorf(ErrValidation,
			"total_tokens (%d) must equal prompt_tokens + completion_tokens (%d)",
			u.TotalTokens, expected)
	}
	return nil
}

// String renders a compact human-readable form for logs.
func (u TokenUsage) String() string {
	return fmt.Sprintf("prompt=%d completion=%d total=%d", u.PromptTokens, u.CompletionTokens, u.TotalTokens)
}
