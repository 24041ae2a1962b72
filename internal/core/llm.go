package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const (
	generationModelName = "gemini-1.5-flash-latest"
	embeddingModelName  = "text-embedding-004"

	// Decoding is pinned: deterministic, temperature 0, at most 500 new
	// tokens, a single candidate. The model returns only the generated
	// continuation, never the prompt.
	generationTemperature = 0.0
	generationMaxTokens   = 500
)

// LLMService provides embeddings and text generation through the Gemini
// API. The gate bounds in-flight generation calls to the number of model
// replicas; embedding calls are cheap and not gated.
type LLMService struct {
	client *genai.Client
	gate   chan struct{}
	logger *zap.Logger
}

func NewLLMService(ctx context.Context, apiKey string, maxConcurrent int, logger *zap.Logger) (*LLMService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &LLMService{
		client: client,
		gate:   make(chan struct{}, maxConcurrent),
		logger: logger,
	}, nil
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.logger.Warn("error closing GenAI client", zap.Error(err))
		}
	}
}

// Embed computes the embedding vector for a piece of text. The signature
// matches chromem's EmbeddingFunc so the vector index can call it directly.
func (s *LLMService) Embed(ctx context.Context, text string) ([]float32, error) {
	em := s.client.EmbeddingModel(embeddingModelName)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}

	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("no embedding data received")
	}
	return res.Embedding.Values, nil
}

// Generate runs the prompt through the generation model and returns the
// first generated continuation. Errors propagate unmodified: no retries,
// no fallback answer.
func (s *LLMService) Generate(ctx context.Context, prompt string) (string, error) {
	select {
	case s.gate <- struct{}{}:
		defer func() { <-s.gate }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	model := s.client.GenerativeModel(generationModelName)

	temp := float32(generationTemperature)
	maxTokens := int32(generationMaxTokens)
	candidates := int32(1)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:     &temp,
		MaxOutputTokens: &maxTokens,
		CandidateCount:  &candidates,
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generation request failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("generation returned no candidates")
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			out.WriteString(string(txt))
		} else {
			s.logger.Warn("non-text part in generation response", zap.String("type", fmt.Sprintf("%T", part)))
		}
	}

	if out.Len() == 0 {
		return "", fmt.Errorf("generation returned no text")
	}
	return out.String(), nil
}
