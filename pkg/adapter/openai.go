package adapter

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAI is the interface for the OpenAI client used by the GPT-backed
// labeler, voter and embedding backends.
type OpenAI interface {
	ChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	Embeddings(ctx context.Context, texts []string, model string, dim int) ([][]float32, error)
}

type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAI creates an OpenAI API client.
func NewOpenAI(apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, goerr.New("OpenAI API key is required")
	}
	return &OpenAIClient{client: openai.NewClient(apiKey)}, nil
}

func (c *OpenAIClient) ChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return openai.ChatCompletionResponse{}, goerr.Wrap(err, "failed to create chat completion")
	}
	return resp, nil
}

func (c *OpenAIClient) Embeddings(ctx context.Context, texts []string, model string, dim int) ([][]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(model),
		Dimensions: dim,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embeddings")
	}

	vectors := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, goerr.New("embedding index out of range", goerr.V("index", d.Index))
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}
