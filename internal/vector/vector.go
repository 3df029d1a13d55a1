// Package vector provides the claim vector index over Weaviate.
// Claim and evidence embeddings are upserted keyed by claim id; search
// returns nearest prior claims by cosine similarity.
package vector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/aegisproof/aegis/pkg/lifecycle"
)

// ClassName is the Weaviate class holding claim vectors.
const ClassName = "ClaimVector"

// Dimensions is the fixed embedding width.
const Dimensions = 768

// Vector kinds stored per claim.
const (
	KindBody     = "body"
	KindEvidence = "evidence"
)

// Match is one search hit: a prior claim and its cosine similarity to the
// query vector.
type Match struct {
	ClaimID string  `json:"claim_id"`
	Domain  string  `json:"domain"`
	Cosine  float64 `json:"cosine"`
}

// System is the vector index contract used by the embed and search stages.
type System interface {
	Start(lc *lifecycle.Coordinator) error

	// Upsert stores the body and evidence vectors for a claim. The
	// evidence vector may be nil when the claim carries no evidence.
	Upsert(ctx context.Context, claimID, domain string, body, evidence []float32) error

	// Search returns up to limit prior claim body vectors nearest to the
	// query, excluding the given claim id.
	Search(ctx context.Context, query []float32, excludeClaimID string, limit int) ([]Match, error)

	// Ready reports whether the index answers readiness probes.
	Ready(ctx context.Context) bool
}

type system struct {
	client *weaviate.Client
	logger *slog.Logger
}

// New creates a vector index system. The schema is ensured on Start.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	client, err := weaviate.NewClient(weaviate.Config{
		Host:   cfg.Host,
		Scheme: cfg.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}

	return &system{
		client: client,
		logger: logger.With("system", "vector"),
	}, nil
}

func (s *system) Start(lc *lifecycle.Coordinator) error {
	s.logger.Info("starting vector index")

	lc.OnStartup(func() {
		if err := s.ensureSchema(lc.Context()); err != nil {
			s.logger.Error("vector schema initialization failed", "error", err)
			return
		}
		s.logger.Info("vector index ready", "class", ClassName)
	})

	return nil
}

func (s *system) ensureSchema(ctx context.Context) error {
	exists, err := s.client.Schema().ClassExistenceChecker().
		WithClassName(ClassName).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("check class: %w", err)
	}
	if exists {
		return nil
	}

	class := &models.Class{
		Class:      ClassName,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "claimId", DataType: []string{"text"}},
			{Name: "domain", DataType: []string{"text"}},
			{Name: "kind", DataType: []string{"text"}},
		},
	}

	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

func (s *system) Upsert(ctx context.Context, claimID, domain string, body, evidence []float32) error {
	if err := s.upsertOne(ctx, claimID, domain, KindBody, body); err != nil {
		return err
	}
	if evidence != nil {
		if err := s.upsertOne(ctx, claimID, domain, KindEvidence, evidence); err != nil {
			return err
		}
	}
	return nil
}

func (s *system) upsertOne(ctx context.Context, claimID, domain, kind string, vec []float32) error {
	if len(vec) != Dimensions {
		return fmt.Errorf("%w: got %d dimensions, want %d", ErrInvalidVector, len(vec), Dimensions)
	}

	id := ObjectID(claimID, kind)
	props := map[string]any{
		"claimId": claimID,
		"domain":  domain,
		"kind":    kind,
	}

	_, err := s.client.Data().Creator().
		WithClassName(ClassName).
		WithID(id).
		WithProperties(props).
		WithVector(vec).
		Do(ctx)
	if err == nil {
		return nil
	}

	// Re-running the embed stage hits the existing object; update in place.
	if updErr := s.client.Data().Updater().
		WithClassName(ClassName).
		WithID(id).
		WithProperties(props).
		WithVector(vec).
		Do(ctx); updErr != nil {
		return fmt.Errorf("upsert %s/%s: %w", claimID, kind, updErr)
	}
	return nil
}

func (s *system) Search(ctx context.Context, query []float32, excludeClaimID string, limit int) ([]Match, error) {
	if len(query) != Dimensions {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d", ErrInvalidVector, len(query), Dimensions)
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(query)

	where := filters.Where().
		WithPath([]string{"kind"}).
		WithOperator(filters.Equal).
		WithValueString(KindBody)

	fields := []graphql.Field{
		{Name: "claimId"},
		{Name: "domain"},
		{Name: "_additional { certainty }"},
	}

	// Fetch one extra so excluding self still fills the limit.
	result, err := s.client.GraphQL().Get().
		WithClassName(ClassName).
		WithFields(fields...).
		WithWhere(where).
		WithNearVector(nearVector).
		WithLimit(limit + 1).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("vector search: %s", result.Errors[0].Message)
	}

	matches := parseMatches(result, excludeClaimID)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *system) Ready(ctx context.Context) bool {
	ready, err := s.client.Misc().ReadyChecker().Do(ctx)
	return err == nil && ready
}

// ObjectID derives the deterministic Weaviate object id for a claim's
// vector of the given kind. Weaviate requires UUID ids while claim ids
// are caller-supplied strings.
func ObjectID(claimID, kind string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("aegis:vector:"+kind+":"+claimID)).String()
}

func parseMatches(result *models.GraphQLResponse, excludeClaimID string) []Match {
	data, ok := result.Data["Get"].(map[string]any)
	if !ok {
		return nil
	}

	objects, ok := data[ClassName].([]any)
	if !ok {
		return nil
	}

	var matches []Match
	for _, raw := range objects {
		obj, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		claimID, _ := obj["claimId"].(string)
		if claimID == "" || claimID == excludeClaimID {
			continue
		}
		domain, _ := obj["domain"].(string)

		additional, _ := obj["_additional"].(map[string]any)
		certainty, _ := additional["certainty"].(float64)

		matches = append(matches, Match{
			ClaimID: claimID,
			Domain:  domain,
			// Weaviate reports certainty = (1 + cosine) / 2.
			Cosine: 2*certainty - 1,
		})
	}
	return matches
}
