package ai

import (
	"context"
	"math"

	"github.com/plantops/defect-triage/internal/domain"
)

// SimilarCaseFinder is the retrieval contract the classifier consumes.
type SimilarCaseFinder interface {
	FindSimilar(ctx context.Context, text string, topK int) ([]domain.SimilarCase, error)
}

// Retriever composes the embedding service and the vector index into a
// semantic nearest-neighbor lookup over past defects.
type Retriever struct {
	embedder Embedder
	index    VectorIndex
}

// NewRetriever wires an embedder and an index.
func NewRetriever(embedder Embedder, index VectorIndex) *Retriever {
	return &Retriever{embedder: embedder, index: index}
}

// FindSimilar embeds the query text and returns the topK nearest stored
// defects. Errors are returned to the caller, which treats retrieval as a
// soft dependency.
func (r *Retriever) FindSimilar(ctx context.Context, text string, topK int) ([]domain.SimilarCase, error) {
	vector, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	matches, err := r.index.Query(ctx, vector, topK)
	if err != nil {
		return nil, err
	}

	cases := make([]domain.SimilarCase, 0, len(matches))
	for _, match := range matches {
		ticketID := match.Metadata["ticket_id"]
		if ticketID == "" {
			ticketID = match.ID
		}
		cases = append(cases, domain.SimilarCase{
			TicketID:    ticketID,
			Description: match.Metadata["description"],
			Category:    domain.DefectCategory(match.Metadata["category"]),
			Priority:    domain.DefectPriority(match.Metadata["priority"]),
			Resolution:  match.Metadata["resolution"],
			Score:       roundScore(match.Score),
		})
	}
	return cases, nil
}

// StoreDefect embeds a defect description and upserts it with metadata so
// future classifications can retrieve it. Re-upserting the same ticket id
// overwrites the prior entry.
func (r *Retriever) StoreDefect(ctx context.Context, ticketID, description string, metadata map[string]string) error {
	vector, err := r.embedder.Embed(ctx, description)
	if err != nil {
		return err
	}
	return r.index.Upsert(ctx, ticketID, vector, metadata)
}

func roundScore(score float64) float64 {
	return math.Round(score*1000) / 1000
}
