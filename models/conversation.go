package models

// Conversation roles as the generative API expects them.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Part is one piece of a conversation turn: plain text or an inline image.
// Exactly one field is set; the JSON shape matches the Gemini REST contract.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData carries a base64-encoded image attached to a turn.
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Content is a single turn in the conversation history.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// TurnResult is the outcome of one request/response cycle with the
// generative endpoint. Exactly one of Reply or BlockReason is meaningful;
// Similarity is the cosine score of the answer against the active chunk set
// when scoring is enabled, or negative when no score was computed.
type TurnResult struct {
	Reply       string  `json:"reply,omitempty"`
	Blocked     bool    `json:"blocked"`
	BlockReason string  `json:"block_reason,omitempty"`
	Similarity  float64 `json:"similarity"`
}
