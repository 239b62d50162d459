package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantops/defect-triage/internal/domain"
)

type stubEmbedder struct {
	vector []float32
	err    error
	texts  []string
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.texts = append(s.texts, text)
	if s.err != nil {
		return nil, s.err
	}
	return s.vector, nil
}

type stubIndex struct {
	matches  []Match
	queryErr error

	upsertID       string
	upsertVector   []float32
	upsertMetadata map[string]string
	upsertErr      error
}

func (s *stubIndex) Upsert(_ context.Context, id string, vector []float32, metadata map[string]string) error {
	s.upsertID = id
	s.upsertVector = vector
	s.upsertMetadata = metadata
	return s.upsertErr
}

func (s *stubIndex) Query(context.Context, []float32, int) ([]Match, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.matches, nil
}

func TestFindSimilarMapsMetadata(t *testing.T) {
	index := &stubIndex{matches: []Match{
		{
			ID:    "SAFE-20260815-002",
			Score: 0.91234,
			Metadata: map[string]string{
				"ticket_id":   "SAFE-20260815-002",
				"description": "Seal failure on press 1",
				"category":    "Safety",
				"priority":    "CRITICAL",
				"resolution":  "Replaced seal",
			},
		},
		{ID: "vec-legacy-7", Score: 0.5, Metadata: map[string]string{"description": "old entry"}},
	}}
	retriever := NewRetriever(&stubEmbedder{vector: []float32{0.1, 0.2}}, index)

	cases, err := retriever.FindSimilar(context.Background(), "press leaking", 3)
	require.NoError(t, err)
	require.Len(t, cases, 2)

	assert.Equal(t, "SAFE-20260815-002", cases[0].TicketID)
	assert.Equal(t, domain.CategorySafety, cases[0].Category)
	assert.Equal(t, domain.DefectPriorityCritical, cases[0].Priority)
	assert.Equal(t, "Replaced seal", cases[0].Resolution)
	assert.Equal(t, 0.912, cases[0].Score)

	// missing ticket_id metadata falls back to the vector id
	assert.Equal(t, "vec-legacy-7", cases[1].TicketID)
}

func TestFindSimilarEmbedderFailure(t *testing.T) {
	retriever := NewRetriever(&stubEmbedder{err: errors.New("quota exceeded")}, &stubIndex{})

	_, err := retriever.FindSimilar(context.Background(), "press leaking", 3)
	assert.Error(t, err)
}

func TestFindSimilarIndexFailure(t *testing.T) {
	retriever := NewRetriever(&stubEmbedder{vector: []float32{0.1}}, &stubIndex{queryErr: errors.New("index unreachable")})

	_, err := retriever.FindSimilar(context.Background(), "press leaking", 3)
	assert.Error(t, err)
}

func TestStoreDefectUpserts(t *testing.T) {
	embedder := &stubEmbedder{vector: []float32{0.3, 0.4}}
	index := &stubIndex{}
	retriever := NewRetriever(embedder, index)

	metadata := map[string]string{"category": "Mechanical", "priority": "HIGH"}
	err := retriever.StoreDefect(context.Background(), "MECH-20260831-004", "bearing noise on conveyor", metadata)
	require.NoError(t, err)

	assert.Equal(t, []string{"bearing noise on conveyor"}, embedder.texts)
	assert.Equal(t, "MECH-20260831-004", index.upsertID)
	assert.Equal(t, []float32{0.3, 0.4}, index.upsertVector)
	assert.Equal(t, metadata, index.upsertMetadata)
}
