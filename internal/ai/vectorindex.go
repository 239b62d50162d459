package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/plantops/defect-triage/internal/config"
)

// Match is one scored result from the vector index.
type Match struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata"`
}

// VectorIndex abstracts the hosted nearest-neighbor index. Upsert is
// idempotent per id.
type VectorIndex interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)
}

// PineconeIndex talks to the Pinecone data-plane REST API. No pack library
// covers this SaaS contract; it is two JSON endpoints on the index host.
type PineconeIndex struct {
	cfg        config.PineconeConfig
	httpClient *http.Client
}

// NewPineconeIndex builds an index client from config.
func NewPineconeIndex(cfg config.PineconeConfig) *PineconeIndex {
	return &PineconeIndex{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout()},
	}
}

type pineconeVector struct {
	ID       string            `json:"id"`
	Values   []float32         `json:"values"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type pineconeUpsertRequest struct {
	Vectors   []pineconeVector `json:"vectors"`
	Namespace string           `json:"namespace,omitempty"`
}

type pineconeQueryRequest struct {
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeMetadata bool      `json:"includeMetadata"`
	Namespace       string    `json:"namespace,omitempty"`
}

type pineconeQueryResponse struct {
	Matches []Match `json:"matches"`
}

// Upsert writes or overwrites one vector with metadata.
func (p *PineconeIndex) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	payload := pineconeUpsertRequest{
		Vectors:   []pineconeVector{{ID: id, Values: vector, Metadata: metadata}},
		Namespace: p.cfg.Namespace,
	}
	return p.post(ctx, "/vectors/upsert", payload, nil)
}

// Query returns up to topK nearest matches with metadata, ordered by
// descending score.
func (p *PineconeIndex) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	payload := pineconeQueryRequest{
		Vector:          vector,
		TopK:            topK,
		IncludeMetadata: true,
		Namespace:       p.cfg.Namespace,
	}
	var parsed pineconeQueryResponse
	if err := p.post(ctx, "/query", payload, &parsed); err != nil {
		return nil, err
	}
	return parsed.Matches, nil
}

func (p *PineconeIndex) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://"+p.cfg.IndexHost+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", p.cfg.APIKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pinecone %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("pinecone %s: status %d: %s", path, resp.StatusCode, payload)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("pinecone %s: decode response: %w", path, err)
	}
	return nil
}
