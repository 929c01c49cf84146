package models

// Conversation roles accepted from callers.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Upstream roles understood by the generative backend.
const (
	UpstreamRoleUser  = "user"
	UpstreamRoleModel = "model"
)

// HistoryItem is a single normalised turn of caller-supplied history.
type HistoryItem struct {
	Role    string
	Content string
}

// ConversationRequest is a validated chat request. It is not mutated after construction.
type ConversationRequest struct {
	Message string
	History []HistoryItem
}

// Content is one turn of the prompt sent upstream.
type Content struct {
	Role string
	Text string
}

// UpstreamPayload is the ordered prompt for a single upstream call.
type UpstreamPayload struct {
	SystemInstruction string
	Contents          []Content
}

// Reply is the outcome of a successful pipeline run.
type Reply struct {
	Text    string
	Handoff bool
}
