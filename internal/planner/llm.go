package planner

import "context"

// ChatMessage is a single turn passed to the reasoner.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

type LLMRequest struct {
	Model            string
	System           []string
	Messages         []ChatMessage
	MaxTokens        int32
	Temperature      float32
	TopP             float32
	ResponseMIMEType string
}

type LLMResponse struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// LLMClient abstracts the external reasoner. Both planner stages, the facts
// extractor and the visit summarizer share one client.
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}
