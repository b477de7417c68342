package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	openai "github.com/sashabaranov/go-openai"

	"github.com/m-mizutani/bubbly/pkg/adapter"
	"github.com/m-mizutani/bubbly/pkg/model"
	"github.com/m-mizutani/bubbly/pkg/utils/logging"
)

// OpenAIEmbedder computes embeddings through the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client    adapter.OpenAI
	modelName string
	dim       int
}

// NewOpenAIEmbedder creates an OpenAIEmbedder for the given model and
// requested dimension.
func NewOpenAIEmbedder(client adapter.OpenAI, modelName string, dim int) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: client, modelName: modelName, dim: dim}
}

func (e *OpenAIEmbedder) Dim() int          { return e.dim }
func (e *OpenAIEmbedder) ModelName() string { return e.modelName }

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) (model.Embedding, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return model.Embedding{}, err
	}
	return embeddings[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]model.Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	trimmed := make([]string, 0, len(texts))
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, goerr.New("text must not be empty")
		}
		trimmed = append(trimmed, truncate(text, maxInputChars))
	}

	vectors, err := e.client.Embeddings(ctx, trimmed, e.modelName, e.dim)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate embeddings")
	}
	if len(vectors) != len(trimmed) {
		return nil, goerr.New("embedding count mismatch",
			goerr.V("want", len(trimmed)), goerr.V("got", len(vectors)))
	}

	embeddings := make([]model.Embedding, 0, len(trimmed))
	for i, text := range trimmed {
		vec := make([]float64, len(vectors[i]))
		for j, v := range vectors[i] {
			vec[j] = float64(v)
		}
		embeddings = append(embeddings, model.Embedding{
			Vector: vec,
			Dim:    e.dim,
			Model:  e.modelName,
			Hash:   model.SHA256(e.modelName + ":" + text),
		})
	}
	return embeddings, nil
}

// OpenAILabeler generates bubble labels with an OpenAI chat model, degrading
// to the generic fallback on API failure.
type OpenAILabeler struct {
	client             adapter.OpenAI
	chatModel          string
	maxRepresentatives int
}

// NewOpenAILabeler creates an OpenAILabeler.
func NewOpenAILabeler(client adapter.OpenAI, chatModel string, max int) *OpenAILabeler {
	if max <= 0 {
		max = 5
	}
	return &OpenAILabeler{client: client, chatModel: chatModel, maxRepresentatives: max}
}

func (l *OpenAILabeler) Mode() string { return "live" }

func (l *OpenAILabeler) Label(ctx context.Context, version *model.BubbleVersion, comments map[model.CommentID]*model.Comment) LabelResult {
	repIDs := chooseRepresentatives(version.CommentIDs, l.maxRepresentatives)
	repTexts := make([]string, 0, len(repIDs))
	total := 0
	for _, cid := range repIDs {
		if c, ok := comments[cid]; ok {
			repTexts = append(repTexts, c.Text)
			total += len(c.Text)
		}
	}
	if len(repTexts) == 0 {
		return LabelResult{Label: "Miscellaneous", Essence: "No comments available."}
	}
	if total > 4000 && len(repTexts) > 3 {
		repTexts = repTexts[:3]
	}

	result := LabelResult{
		Label:             "Miscellaneous",
		Essence:           "People are discussing various topics.",
		Confidence:        labelConfidence(len(version.CommentIDs)),
		RepresentativeIDs: repIDs,
	}

	var prompt strings.Builder
	prompt.WriteString("Analyze the following comments and provide:\n")
	prompt.WriteString("1. A concise label (2-4 words, use \" / \" to separate multiple topics)\n")
	prompt.WriteString("2. A brief essence (1-2 sentences describing what people are discussing)\n\nComments:\n")
	for i, text := range repTexts {
		fmt.Fprintf(&prompt, "Comment %d: %s\n\n", i+1, text)
	}
	prompt.WriteString("Respond in this exact format:\nLABEL: [your label here]\nESSENCE: [your essence here]")

	resp, err := l.client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: l.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a helpful assistant that analyzes comment clusters and generates concise labels and summaries.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt.String(),
			},
		},
		Temperature: 0.7,
		MaxTokens:   200,
	})
	if err != nil {
		logging.From(ctx).Warn("labeler degraded to fallback", "error", err)
		return result
	}

	if len(resp.Choices) > 0 {
		label, essence := parseLabelResponse(resp.Choices[0].Message.Content)
		if label != "" {
			result.Label = label
		}
		if essence != "" {
			result.Essence = essence
		}
	}
	return result
}

// OpenAIVoter classifies comment stance with an OpenAI chat model, degrading
// to VotePass on any failure.
type OpenAIVoter struct {
	client    adapter.OpenAI
	chatModel string
}

// NewOpenAIVoter creates an OpenAIVoter.
func NewOpenAIVoter(client adapter.OpenAI, chatModel string) *OpenAIVoter {
	return &OpenAIVoter{client: client, chatModel: chatModel}
}

func (v *OpenAIVoter) Classify(ctx context.Context, title, body, text string) model.Vote {
	resp, err := v.client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: v.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a helpful assistant that classifies comment stances.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: votePrompt(title, body, text),
			},
		},
		Temperature: 0.3,
		MaxTokens:   10,
	})
	if err != nil {
		logging.From(ctx).Warn("voter degraded to pass", "error", err)
		return model.VotePass
	}

	if len(resp.Choices) == 0 {
		return model.VotePass
	}
	return parseVote(resp.Choices[0].Message.Content)
}
