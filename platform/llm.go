package platform

import (
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var (
	LLMClient *openai.Client
)

func InitLLMClient() {
	LLMClient = openai.NewClient(
		option.WithBaseURL(os.Getenv("LLM_BASE_URL")),
		option.WithAPIKey(os.Getenv("LLM_API_KEY")),
	)
}

// LLMModel returns the chat model to request, defaulting to gpt-3.5-turbo.
func LLMModel() string {
	if model := os.Getenv("LLM_MODEL"); model != "" {
		return model
	}
	return "gpt-3.5-turbo"
}
