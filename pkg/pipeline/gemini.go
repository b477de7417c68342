package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"

	"github.com/m-mizutani/bubbly/pkg/adapter"
	"github.com/m-mizutani/bubbly/pkg/model"
	"github.com/m-mizutani/bubbly/pkg/utils/logging"
)

// GeminiEmbedder computes embeddings through the Vertex AI Gemini API.
type GeminiEmbedder struct {
	client    adapter.Gemini
	modelName string
	dim       int
}

// NewGeminiEmbedder creates a GeminiEmbedder. The model name is recorded on
// every produced embedding; dim must match what the embedding model emits.
func NewGeminiEmbedder(client adapter.Gemini, modelName string, dim int) *GeminiEmbedder {
	return &GeminiEmbedder{client: client, modelName: modelName, dim: dim}
}

func (e *GeminiEmbedder) Dim() int          { return e.dim }
func (e *GeminiEmbedder) ModelName() string { return e.modelName }

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) (model.Embedding, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return model.Embedding{}, err
	}
	return embeddings[0], nil
}

func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]model.Embedding, error) {
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

	resp, err := e.client.Embedding(ctx, trimmed)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate embeddings")
	}
	if len(resp.Embeddings) != len(trimmed) {
		return nil, goerr.New("embedding count mismatch",
			goerr.V("want", len(trimmed)), goerr.V("got", len(resp.Embeddings)))
	}

	embeddings := make([]model.Embedding, 0, len(trimmed))
	for i, text := range trimmed {
		values := resp.Embeddings[i].Values
		vec := make([]float64, len(values))
		for j, v := range values {
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

// GeminiLabeler generates bubble labels and essences with the Gemini
// generative model. API failures degrade to the generic fallback label; they
// never abort the pipeline.
type GeminiLabeler struct {
	client             adapter.Gemini
	maxRepresentatives int
}

// NewGeminiLabeler creates a GeminiLabeler keeping at most max
// representative comments per version.
func NewGeminiLabeler(client adapter.Gemini, max int) *GeminiLabeler {
	if max <= 0 {
		max = 5
	}
	return &GeminiLabeler{client: client, maxRepresentatives: max}
}

func (l *GeminiLabeler) Mode() string { return "live" }

func (l *GeminiLabeler) Label(ctx context.Context, version *model.BubbleVersion, comments map[model.CommentID]*model.Comment) LabelResult {
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

	resp, err := l.client.GenerateContent(ctx, labelPrompt(repTexts), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.7),
		MaxOutputTokens: 200,
	})
	if err != nil {
		logging.From(ctx).Warn("labeler degraded to fallback", "error", err)
		return result
	}

	label, essence := parseLabelResponse(responseText(resp))
	if label != "" {
		result.Label = label
	}
	if essence != "" {
		result.Essence = essence
	}
	return result
}

func labelPrompt(repTexts []string) []*genai.Content {
	var sb strings.Builder
	sb.WriteString("Analyze the following comments and provide:\n")
	sb.WriteString("1. A concise label (2-4 words, use \" / \" to separate multiple topics)\n")
	sb.WriteString("2. A brief essence (1-2 sentences describing what people are discussing)\n\nComments:\n")
	for i, text := range repTexts {
		fmt.Fprintf(&sb, "Comment %d: %s\n\n", i+1, text)
	}
	sb.WriteString("Respond in this exact format:\nLABEL: [your label here]\nESSENCE: [your essence here]")

	return genai.Text(sb.String())
}

func parseLabelResponse(text string) (label, essence string) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "LABEL:"):
			label = strings.TrimSpace(line[len("LABEL:"):])
		case strings.HasPrefix(upper, "ESSENCE:"):
			essence = strings.TrimSpace(line[len("ESSENCE:"):])
		}
	}
	return label, essence
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String()
}

// GeminiVoter classifies comment stance with the Gemini generative model,
// degrading to VotePass on any failure.
type GeminiVoter struct {
	client adapter.Gemini
}

// NewGeminiVoter creates a GeminiVoter.
func NewGeminiVoter(client adapter.Gemini) *GeminiVoter {
	return &GeminiVoter{client: client}
}

func (v *GeminiVoter) Classify(ctx context.Context, title, body, text string) model.Vote {
	resp, err := v.client.GenerateContent(ctx, genai.Text(votePrompt(title, body, text)), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.3),
		MaxOutputTokens: 10,
	})
	if err != nil {
		logging.From(ctx).Warn("voter degraded to pass", "error", err)
		return model.VotePass
	}

	return parseVote(responseText(resp))
}

func votePrompt(title, body, text string) string {
	return fmt.Sprintf(`You are analyzing a comment on a discussion post. Classify the comment's stance relative to the post.

Post Title: %s
Post Body: %s

Comment: %s

Classify the comment as one of:
- "agree" if the comment supports, agrees with, or positively responds to the post
- "disagree" if the comment opposes, disagrees with, or negatively responds to the post
- "pass" if the comment is neutral, asks a question, provides information without taking a stance, or doesn't clearly agree/disagree

Respond with ONLY one word: agree, disagree, or pass`,
		title, truncate(body, 500), truncate(text, 1000))
}

func parseVote(text string) model.Vote {
	result := strings.ToLower(strings.TrimSpace(text))
	switch {
	case strings.HasPrefix(result, "agree"):
		return model.VoteAgree
	case strings.HasPrefix(result, "disagree"):
		return model.VoteDisagree
	default:
		return model.VotePass
	}
}
