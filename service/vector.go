package service

import (
	"context"
	"time"

	"seqquest/platform"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// SimilarityIndex is the auxiliary semantic index over prior contexts.
// Both operations are best-effort: a failing or absent index degrades to
// no hints, never to a failed request.
type SimilarityIndex interface {
	SimilarContexts(ctx context.Context, text string, limit int) []string
	IndexQuestion(ctx context.Context, text, conversationID, sessionID string)
}

type VectorService struct {
	Timeout time.Duration
}

func (s *VectorService) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return 5 * time.Second
}

func (s *VectorService) SimilarContexts(ctx context.Context, text string, limit int) []string {
	store := platform.VectorStore
	if store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	docs, err := store.SimilaritySearch(ctx, text, limit,
		vectorstores.WithScoreThreshold(0))
	if err != nil {
		logger.Warnf("similarity search failed: %s", err)
		return nil
	}

	contexts := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc.PageContent != "" {
			contexts = append(contexts, doc.PageContent)
		}
	}
	return contexts
}

func (s *VectorService) IndexQuestion(ctx context.Context, text, conversationID, sessionID string) {
	store := platform.VectorStore
	if store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	_, err := store.AddDocuments(ctx, []schema.Document{
		{
			PageContent: text,
			Metadata: map[string]any{
				"type":            "question",
				"conversation_id": conversationID,
				"session_id":      sessionID,
				"timestamp":       time.Now().Format(time.RFC3339),
			},
		},
	})
	if err != nil {
		logger.Warnf("question indexing failed for conversation %s: %s", conversationID, err)
	}
}
