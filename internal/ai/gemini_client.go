package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"pdf-chat-assistant/internal/config"
	"pdf-chat-assistant/internal/logger"
	"pdf-chat-assistant/models"
)

// GeminiClient talks to the Gemini REST API for both embeddings and chat
// generation. All calls go through a shared circuit breaker and rate limiter.
type GeminiClient struct {
	apiKey         string
	baseURL        string
	chatModel      string
	embeddingModel string
	httpClient     *http.Client
	breaker        *gobreaker.CircuitBreaker
	rateLimiter    *rate.Limiter
}

// ChatOutcome is the domain-level result of a generate call. A content-safety
// block is a normal variant here, not an error.
type ChatOutcome struct {
	Text        string
	Blocked     bool
	BlockReason string
}

func NewGeminiClient(cfg *config.Config) *GeminiClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &GeminiClient{
		apiKey:         cfg.GeminiAPIKey,
		baseURL:        cfg.GeminiAPIBase,
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
		httpClient:     &http.Client{Timeout: cfg.RequestTimeout},
		breaker:        breaker,
		rateLimiter:    rate.NewLimiter(rate.Limit(2), 10),
	}
}

type embedRequest struct {
	Content models.Content `json:"content"`
}

type embedResponse struct {
	Embedding struct {
		Values []float64 `json:"values"`
	} `json:"embedding"`
	Error *apiError `json:"error,omitempty"`
}

type generateRequest struct {
	Contents []models.Content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content models.Content `json:"content"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// EmbedText returns an embedding vector for the given text. Callers treat an
// error as a soft failure: log it and continue with a nil vector.
func (g *GeminiClient) EmbedText(ctx context.Context, text string) ([]float64, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.embed_content")
	defer span.End()
	span.SetAttributes(
		attribute.String("gemini.model", g.embeddingModel),
		attribute.Int("gemini.text_chars", len(text)),
	)

	request := embedRequest{
		Content: models.Content{
			Parts: []models.Part{{Text: text}},
		},
	}

	url := fmt.Sprintf("%s/%s:embedContent", g.baseURL, g.embeddingModel)
	body, err := g.post(ctx, url, request)
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return nil, err
	}

	var parsed embedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal embedding response: %v", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("API error: %s (code: %d)", parsed.Error.Message, parsed.Error.Code)
	}
	if len(parsed.Embedding.Values) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	span.SetAttributes(attribute.Int("gemini.embedding_dim", len(parsed.Embedding.Values)))
	return parsed.Embedding.Values, nil
}

// GenerateContent sends the conversation contents to the chat model. Zero
// candidates in the response is reported as a blocked outcome, not an error.
func (g *GeminiClient) GenerateContent(ctx context.Context, contents []models.Content) (*ChatOutcome, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.generate_content")
	defer span.End()
	span.SetAttributes(
		attribute.String("gemini.model", g.chatModel),
		attribute.Int("gemini.history_turns", len(contents)),
	)

	url := fmt.Sprintf("%s/%s:generateContent", g.baseURL, g.chatModel)
	body, err := g.post(ctx, url, generateRequest{Contents: contents})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return nil, err
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %v", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("API error: %s (code: %d)", parsed.Error.Message, parsed.Error.Code)
	}

	if len(parsed.Candidates) == 0 {
		reason := "unknown"
		if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
			reason = parsed.PromptFeedback.BlockReason
		}
		span.SetAttributes(attribute.String("gemini.block_reason", reason))
		return &ChatOutcome{Blocked: true, BlockReason: reason}, nil
	}

	text := ""
	for _, part := range parsed.Candidates[0].Content.Parts {
		text += part.Text
	}

	span.SetAttributes(attribute.Int("gemini.reply_chars", len(text)))
	return &ChatOutcome{Text: text}, nil
}

func (g *GeminiClient) post(ctx context.Context, url string, payload any) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %v", err)
	}

	if err := g.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", g.apiKey)

		resp, err := g.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %v", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			var envelope struct {
				Error *apiError `json:"error"`
			}
			if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
				return nil, fmt.Errorf("API error: %s (code: %d)", envelope.Error.Message, envelope.Error.Code)
			}
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}
