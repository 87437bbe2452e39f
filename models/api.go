package models

import "time"

// IngestRequest asks the pipeline to process a PDF on disk.
type IngestRequest struct {
	Path string `json:"path" binding:"required"`
}

// ChatRequest is one user turn. ImageData is optional base64 image content
// with its mime type, captured by the host UI.
type ChatRequest struct {
	Message   string `json:"message"`
	ImageData string `json:"image_data,omitempty"`
	ImageMime string `json:"image_mime,omitempty"`
}

// ChatResponse wraps a TurnResult for the HTTP surface.
type ChatResponse struct {
	Reply       string    `json:"reply,omitempty"`
	Blocked     bool      `json:"blocked"`
	BlockReason string    `json:"block_reason,omitempty"`
	Similarity  float64   `json:"similarity,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// EmbedRequest asks for a raw embedding vector.
type EmbedRequest struct {
	Text string `json:"text" binding:"required"`
}

// EmbedResponse carries the vector, or empty values when the call failed soft.
type EmbedResponse struct {
	Values []float64 `json:"values"`
}
