package platform

import (
	"net/url"
	"os"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/vectorstores/qdrant"
)

var (
	VectorStore *qdrant.Store
)

// InitVectorStore connects the Qdrant similarity index. The index is
// auxiliary: when the connection cannot be established the service keeps
// running and similarity lookups return nothing.
func InitVectorStore() {
	qdrantURL := os.Getenv("QDRANT_URL")
	if qdrantURL == "" {
		Logger.Warn("QDRANT_URL not set, similarity search disabled")
		return
	}

	urlAPI, err := url.Parse(qdrantURL)
	if err != nil {
		Logger.Warnf("invalid QDRANT_URL %s, similarity search disabled: %s", qdrantURL, err)
		return
	}

	llm, err := openai.New(
		openai.WithToken(os.Getenv("LLM_API_KEY")),
	)
	if err != nil {
		Logger.Warnf("embedding client init failed, similarity search disabled: %s", err)
		return
	}

	e, err := embeddings.NewEmbedder(llm)
	if err != nil {
		Logger.Warnf("embedder init failed, similarity search disabled: %s", err)
		return
	}

	collection := os.Getenv("QDRANT_COLLECTION")
	if collection == "" {
		collection = "sequential_questioning"
	}

	store, err := qdrant.New(
		qdrant.WithURL(*urlAPI),
		qdrant.WithCollectionName(collection),
		qdrant.WithEmbedder(e),
	)
	if err != nil {
		Logger.Warnf("qdrant store init failed, similarity search disabled: %s", err)
		return
	}
	VectorStore = &store
}
