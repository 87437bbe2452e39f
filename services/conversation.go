package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"pdf-chat-assistant/internal/ai"
	"pdf-chat-assistant/internal/config"
	"pdf-chat-assistant/internal/logger"
	"pdf-chat-assistant/models"
)

var (
	// ErrEmptyTurn rejects a turn that carries neither text nor an image.
	ErrEmptyTurn = errors.New("turn has no text or image content")
	// ErrIngestionBusy rejects turns while the pipeline is still running.
	ErrIngestionBusy = errors.New("document ingestion is still in progress")
	// ErrNoDocument rejects turns when nothing has been ingested yet.
	ErrNoDocument = errors.New("no document is loaded")
)

// Chatter abstracts the remote generative endpoint.
type Chatter interface {
	GenerateContent(ctx context.Context, contents []models.Content) (*ai.ChatOutcome, error)
}

const answerPreamble = "You are a helpful assistant answering questions about a PDF document. " +
	"Ground every answer in the document text below and format the reply in Markdown.\n\nDocument text:\n"

// ConversationController maintains the ordered turn history and mediates
// each request/response cycle with the generative endpoint. User turns are
// appended optimistically and rolled back when the request fails or is
// blocked.
type ConversationController struct {
	cfg      *config.Config
	chat     Chatter
	embedder Embedder
	pipeline *IngestionPipeline

	mu      sync.Mutex
	history []models.Content
}

func NewConversationController(cfg *config.Config, chat Chatter, embedder Embedder, pipeline *IngestionPipeline) *ConversationController {
	return &ConversationController{
		cfg:      cfg,
		chat:     chat,
		embedder: embedder,
		pipeline: pipeline,
	}
}

// SendTurn runs one turn: validate, optimistically append the user turn,
// call the generative endpoint with the prior history plus a grounded
// synthetic turn, then append the answer or roll back.
func (cc *ConversationController) SendTurn(ctx context.Context, req models.ChatRequest) (*models.TurnResult, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" && req.ImageData == "" {
		return nil, ErrEmptyTurn
	}
	if cc.pipeline.IsIngesting() {
		return nil, ErrIngestionBusy
	}

	activeText := cc.pipeline.ActiveText()
	activeChunks := cc.pipeline.ActiveChunks()
	if activeText == "" && len(activeChunks) == 0 {
		return nil, ErrNoDocument
	}

	userParts := make([]models.Part, 0, 2)
	if message != "" {
		userParts = append(userParts, models.Part{Text: message})
	}
	if req.ImageData != "" {
		userParts = append(userParts, models.Part{InlineData: &models.InlineData{
			MimeType: req.ImageMime,
			Data:     req.ImageData,
		}})
	}

	cc.mu.Lock()
	prior := make([]models.Content, len(cc.history))
	copy(prior, cc.history)
	cc.history = append(cc.history, models.Content{Role: models.RoleUser, Parts: userParts})
	cc.mu.Unlock()

	// The just-appended turn is not sent as plain history; it is re-injected
	// as a synthetic turn carrying the grounding preamble, so the document
	// text is included exactly once per request.
	grounded := make([]models.Part, 0, len(userParts)+1)
	grounded = append(grounded, models.Part{Text: answerPreamble + activeText})
	grounded = append(grounded, userParts...)
	contents := append(prior, models.Content{Role: models.RoleUser, Parts: grounded})

	outcome, err := cc.chat.GenerateContent(ctx, contents)
	if err != nil {
		cc.rollbackUserTurn()
		logger.Error("Chat request failed", "error", err)
		return nil, err
	}

	if outcome.Blocked {
		cc.rollbackUserTurn()
		logger.Warn("Chat response blocked", "reason", outcome.BlockReason)
		return &models.TurnResult{Blocked: true, BlockReason: outcome.BlockReason, Similarity: -1}, nil
	}

	cc.mu.Lock()
	cc.history = append(cc.history, models.Content{
		Role:  models.RoleModel,
		Parts: []models.Part{{Text: outcome.Text}},
	})
	cc.mu.Unlock()

	result := &models.TurnResult{Reply: outcome.Text, Similarity: -1}

	if cc.cfg.SimilarityEnabled && len(activeChunks) > 0 {
		if vec, err := cc.embedder.EmbedText(ctx, outcome.Text); err != nil {
			logger.Warn("Answer embedding failed, skipping similarity score", "error", err)
		} else {
			result.Similarity = MaxSimilarity(vec, activeChunks)
		}
	}

	return result, nil
}

// rollbackUserTurn pops the optimistically appended user turn.
func (cc *ConversationController) rollbackUserTurn() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if n := len(cc.history); n > 0 && cc.history[n-1].Role == models.RoleUser {
		cc.history = cc.history[:n-1]
	}
}

// History returns a copy of the conversation so far.
func (cc *ConversationController) History() []models.Content {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	out := make([]models.Content, len(cc.history))
	copy(out, cc.history)
	return out
}

// ClearHistory drops all turns.
func (cc *ConversationController) ClearHistory() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.history = nil
}

// EmbedText exposes the embedding endpoint for similarity scoring use
// cases. It fails soft: any error is logged and reported as a nil vector.
func (cc *ConversationController) EmbedText(ctx context.Context, text string) []float64 {
	vec, err := cc.embedder.EmbedText(ctx, text)
	if err != nil {
		logger.Warn("Embedding request failed", "error", err)
		return nil
	}
	return vec
}
