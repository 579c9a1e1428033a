// Package searchindex maintains a bleve full-text index over completed
// analysis answers so past work is searchable from the CLI and the API.
package searchindex

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/blevesearch/bleve"
)

// Entry is one indexed sub-task answer.
type Entry struct {
	RunID     string    `json:"run_id"`
	TaskID    string    `json:"task_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

// Hit is one search result.
type Hit struct {
	RunID    string  `json:"run_id"`
	TaskID   string  `json:"task_id"`
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Score    float64 `json:"score"`
}

type Index struct {
	idx bleve.Index
}

// Open opens the index at path, creating it on first use.
func Open(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if err != nil {
		if _, statErr := os.Stat(path); statErr == nil && err != bleve.ErrorIndexMetaMissing {
			return nil, fmt.Errorf("opening search index: %w", err)
		}
		idx, err = bleve.New(path, bleve.NewIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("creating search index: %w", err)
		}
	}
	return &Index{idx: idx}, nil
}

func (i *Index) Close() error { return i.idx.Close() }

// Add indexes one answer under "<run>/<task>".
func (i *Index) Add(e Entry) error {
	id := e.RunID + "/" + e.TaskID
	if err := i.idx.Index(id, e); err != nil {
		return fmt.Errorf("indexing %s: %w", id, err)
	}
	return nil
}

// Search runs a match query over questions and answers.
func (i *Index) Search(ctx context.Context, q string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(q), limit, 0, false)
	req.Fields = []string{"run_id", "task_id", "question", "answer"}
	res, err := i.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{Score: h.Score}
		if v, ok := h.Fields["run_id"].(string); ok {
			hit.RunID = v
		}
		if v, ok := h.Fields["task_id"].(string); ok {
			hit.TaskID = v
		}
		if v, ok := h.Fields["question"].(string); ok {
			hit.Question = v
		}
		if v, ok := h.Fields["answer"].(string); ok {
			hit.Answer = v
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
