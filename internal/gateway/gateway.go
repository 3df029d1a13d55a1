// Package gateway provides the model inference surface: structured claim
// opinions from the configured verifier models and text embeddings for the
// vector index. All providers speak the OpenAI-compatible API.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/aegisproof/aegis/internal/consensus"
	"github.com/aegisproof/aegis/pkg/formatting"
)

// Verifier identifies one configured verifier model and its vote weight.
type Verifier struct {
	Name   string
	Weight float64
}

// OpinionRequest carries the sanitized claim material a verifier sees.
type OpinionRequest struct {
	ClaimText string
	Evidence  []string
	Similar   []SimilarClaim
	Domain    string
}

// SimilarClaim is prior-claim context from the search stage.
type SimilarClaim struct {
	ClaimID string  `json:"claim_id"`
	Cosine  float64 `json:"cosine"`
}

// System is the inference contract used by the verify and embed stages.
type System interface {
	// Verifiers lists the configured verifier models.
	Verifiers() []Verifier

	// Opinion requests a structured opinion from one verifier. A transport
	// failure or unparseable response yields an error; the caller records
	// it as an error vote.
	Opinion(ctx context.Context, verifier string, req OpinionRequest) (consensus.Vote, error)

	// Embed produces a fixed-dimension embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Ready reports whether the embedding provider answers.
	Ready(ctx context.Context) bool
}

type verifierClient struct {
	client *openai.Client
	model  string
	weight float64
}

type system struct {
	verifiers map[string]*verifierClient
	order     []string
	embedder  *openai.Client
	embedCfg  EmbeddingConfig
	timeout   time.Duration
	logger    *slog.Logger
}

// New creates a gateway from the given configuration.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	if len(cfg.Verifiers) == 0 {
		return nil, fmt.Errorf("gateway: no verifier models configured")
	}

	verifiers := make(map[string]*verifierClient, len(cfg.Verifiers))
	order := make([]string, 0, len(cfg.Verifiers))
	for _, vc := range cfg.Verifiers {
		verifiers[vc.Name] = &verifierClient{
			client: newClient(vc.BaseURL, vc.APIKey),
			model:  vc.Model,
			weight: vc.Weight,
		}
		order = append(order, vc.Name)
	}

	return &system{
		verifiers: verifiers,
		order:     order,
		embedder:  newClient(cfg.Embedding.BaseURL, cfg.Embedding.APIKey),
		embedCfg:  cfg.Embedding,
		timeout:   cfg.CallTimeoutDuration(),
		logger:    logger.With("system", "gateway"),
	}, nil
}

func newClient(baseURL, apiKey string) *openai.Client {
	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

func (s *system) Verifiers() []Verifier {
	out := make([]Verifier, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, Verifier{Name: name, Weight: s.verifiers[name].weight})
	}
	return out
}

type opinionResponse struct {
	Verdict    string  `json:"verdict"`
	Confidence float64 `json:"confidence"`
	Coherence  float64 `json:"coherence"`
	Reasoning  string  `json:"reasoning"`
}

func (s *system) Opinion(ctx context.Context, verifier string, req OpinionRequest) (consensus.Vote, error) {
	vc, ok := s.verifiers[verifier]
	if !ok {
		return consensus.Vote{}, fmt.Errorf("%w: %s", ErrUnknownVerifier, verifier)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := vc.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:       vc.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: opinionSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: composeOpinionPrompt(req)},
		},
	})
	if err != nil {
		return consensus.Vote{}, fmt.Errorf("%w: %s: %v", ErrInference, verifier, err)
	}
	if len(resp.Choices) == 0 {
		return consensus.Vote{}, fmt.Errorf("%w: %s: empty response", ErrInference, verifier)
	}

	parsed, err := formatting.Parse[opinionResponse](resp.Choices[0].Message.Content)
	if err != nil {
		return consensus.Vote{}, fmt.Errorf("%w: %s: %v", ErrUnparseable, verifier, err)
	}

	vote := consensus.Vote{
		ModelID:    verifier,
		Verdict:    consensus.Verdict(parsed.Verdict),
		Confidence: parsed.Confidence,
		Coherence:  parsed.Coherence,
		Weight:     vc.weight,
		Reasoning:  parsed.Reasoning,
		ReceivedAt: time.Now().UTC(),
	}
	if err := vote.Validate(); err != nil {
		return consensus.Vote{}, fmt.Errorf("%w: %s: %v", ErrUnparseable, verifier, err)
	}

	return vote, nil
}

func (s *system) Embed(ctx context.Context, text string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.embedder.CreateEmbeddings(callCtx, openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(s.embedCfg.Model),
		Input:      []string{text},
		Dimensions: s.embedCfg.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: empty embedding response", ErrInference)
	}

	embedding := resp.Data[0].Embedding
	if len(embedding) != s.embedCfg.Dimensions {
		return nil, fmt.Errorf(
			"%w: got %d dimensions, want %d",
			ErrInference, len(embedding), s.embedCfg.Dimensions,
		)
	}
	return embedding, nil
}

func (s *system) Ready(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.embedder.ListModels(probeCtx)
	return err == nil
}
