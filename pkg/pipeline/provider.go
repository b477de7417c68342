// Package pipeline orchestrates the per-comment processing flow: embedding,
// stance classification, cluster assignment and labeling. The embedding,
// labeler and voter backends are swappable; the variant is chosen once at
// construction, never inferred at call time.
package pipeline

import (
	"context"
	"math"

	"github.com/m-mizutani/bubbly/pkg/model"
)

// EmbeddingProvider computes embedding vectors for comment texts. An
// instance must yield a consistent dimension and model name across calls.
// Embedding failures abort the whole pipeline run for the item.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) (model.Embedding, error)
	EmbedBatch(ctx context.Context, texts []string) ([]model.Embedding, error)
	Dim() int
	ModelName() string
}

// LabelResult is the labeler output for one bubble version.
type LabelResult struct {
	Label             string
	Essence           string
	Confidence        float64
	RepresentativeIDs []model.CommentID
}

// Labeler generates a label and essence for a bubble version from its
// member comments. Implementations degrade to a generic fallback instead of
// failing; labeling must never abort the pipeline.
type Labeler interface {
	Label(ctx context.Context, version *model.BubbleVersion, comments map[model.CommentID]*model.Comment) LabelResult
	Mode() string
}

// Voter classifies a comment's stance relative to the conversation's root
// content. Implementations degrade to VotePass instead of failing.
type Voter interface {
	Classify(ctx context.Context, title, body, text string) model.Vote
}

// maxInputChars caps the text handed to embedding and labeling backends.
const maxInputChars = 8000

func truncate(text string, limit int) string {
	if len(text) > limit {
		return text[:limit]
	}
	return text
}

// labelConfidence grows with the member count and saturates at 1.0 around
// ten members.
func labelConfidence(members int) float64 {
	return math.Min(1.0, math.Log(1+float64(members))/math.Log(11))
}

// chooseRepresentatives picks up to max member ids, evenly spaced over the
// membership so early and late comments are both represented.
func chooseRepresentatives(commentIDs []model.CommentID, max int) []model.CommentID {
	if len(commentIDs) == 0 {
		return nil
	}
	if len(commentIDs) <= max {
		return append([]model.CommentID(nil), commentIDs...)
	}

	picked := make([]model.CommentID, 0, max)
	seen := make(map[model.CommentID]bool, max)
	for i := 0; i < max; i++ {
		t := float64(i) / float64(max-1)
		idx := int(math.Round(t * float64(len(commentIDs)-1)))
		cid := commentIDs[idx]
		if !seen[cid] {
			seen[cid] = true
			picked = append(picked, cid)
		}
	}
	return picked
}
