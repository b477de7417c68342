package pipeline_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/bubbly/pkg/model"
	"github.com/m-mizutani/bubbly/pkg/pipeline"
)

func TestLocalEmbedder(t *testing.T) {
	ctx := context.Background()
	embedder := pipeline.NewLocalEmbedder(64)

	t.Run("metadata", func(t *testing.T) {
		gt.Equal(t, embedder.Dim(), 64)
		gt.Equal(t, embedder.ModelName(), "feature-hash-64")
	})

	t.Run("deterministic", func(t *testing.T) {
		a, err := embedder.Embed(ctx, "the quick brown fox")
		gt.NoError(t, err)
		b, err := embedder.Embed(ctx, "the quick brown fox")
		gt.NoError(t, err)
		gt.Equal(t, a, b)
	})

	t.Run("unit norm", func(t *testing.T) {
		emb, err := embedder.Embed(ctx, "some meaningful text about climate policy")
		gt.NoError(t, err)
		gt.A(t, emb.Vector).Length(64)

		var norm float64
		for _, x := range emb.Vector {
			norm += x * x
		}
		gt.True(t, norm > 0.999 && norm < 1.001)
	})

	t.Run("different texts differ", func(t *testing.T) {
		a, err := embedder.Embed(ctx, "public transit and trains")
		gt.NoError(t, err)
		b, err := embedder.Embed(ctx, "cryptocurrency market prices")
		gt.NoError(t, err)
		gt.NotEqual(t, a.Vector, b.Vector)
	})

	t.Run("empty text rejected", func(t *testing.T) {
		_, err := embedder.Embed(ctx, "   ")
		gt.Error(t, err)
	})

	t.Run("batch matches single", func(t *testing.T) {
		single, err := embedder.Embed(ctx, "hello world")
		gt.NoError(t, err)
		batch, err := embedder.EmbedBatch(ctx, []string{"hello world", "other"})
		gt.NoError(t, err)
		gt.A(t, batch).Length(2)
		gt.Equal(t, batch[0], single)
	})

	t.Run("zero dim falls back to default", func(t *testing.T) {
		e := pipeline.NewLocalEmbedder(0)
		gt.Equal(t, e.Dim(), 256)
	})
}

func localVersion(texts []string) (*model.BubbleVersion, map[model.CommentID]*model.Comment) {
	conv := model.NewConversationID()
	comments := map[model.CommentID]*model.Comment{}
	var ids []model.CommentID
	base := time.Now()
	for i, text := range texts {
		c := &model.Comment{
			ID:             model.NewCommentID(),
			ConversationID: conv,
			Text:           text,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		comments[c.ID] = c
		ids = append(ids, c.ID)
	}
	version := &model.BubbleVersion{
		ID:             model.NewBubbleVersionID(),
		ConversationID: conv,
		CommentIDs:     ids,
	}
	return version, comments
}

func TestLocalLabeler(t *testing.T) {
	ctx := context.Background()
	labeler := pipeline.NewLocalLabeler(5)

	t.Run("mode", func(t *testing.T) {
		gt.Equal(t, labeler.Mode(), "local")
	})

	t.Run("keyword label from frequent words", func(t *testing.T) {
		version, comments := localVersion([]string{
			"Bicycle lanes make bicycle commuting safer.",
			"More bicycle lanes would reduce traffic downtown.",
		})
		result := labeler.Label(ctx, version, comments)

		gt.True(t, strings.Contains(result.Label, "Bicycle"))
		gt.True(t, strings.Contains(result.Label, "Lanes"))
		gt.A(t, result.RepresentativeIDs).Length(2)
	})

	t.Run("confidence follows member count", func(t *testing.T) {
		version, comments := localVersion([]string{"one topic here"})
		result := labeler.Label(ctx, version, comments)
		gt.True(t, result.Confidence > 0.28 && result.Confidence < 0.30)

		texts := make([]string, 10)
		for i := range texts {
			texts[i] = "repeated topic text"
		}
		version, comments = localVersion(texts)
		result = labeler.Label(ctx, version, comments)
		gt.Equal(t, result.Confidence, 1.0)
	})

	t.Run("representatives capped and evenly spaced", func(t *testing.T) {
		texts := make([]string, 12)
		for i := range texts {
			texts[i] = "some comment text"
		}
		version, comments := localVersion(texts)
		result := labeler.Label(ctx, version, comments)

		gt.A(t, result.RepresentativeIDs).Length(5)
		gt.Equal(t, result.RepresentativeIDs[0], version.CommentIDs[0])
		gt.Equal(t, result.RepresentativeIDs[4], version.CommentIDs[11])
	})

	t.Run("essence is first sentence of first representative", func(t *testing.T) {
		version, comments := localVersion([]string{
			"Trains are reliable. Unlike buses.",
		})
		result := labeler.Label(ctx, version, comments)
		gt.Equal(t, result.Essence, "Trains are reliable...")
	})

	t.Run("no members", func(t *testing.T) {
		version := &model.BubbleVersion{ID: model.NewBubbleVersionID()}
		result := labeler.Label(ctx, version, map[model.CommentID]*model.Comment{})
		gt.Equal(t, result.Label, "Miscellaneous")
	})
}

func TestLocalVoter(t *testing.T) {
	ctx := context.Background()
	voter := pipeline.NewLocalVoter()

	cases := []struct {
		name string
		text string
		want model.Vote
	}{
		{"agreement", "Yes I agree, this is a great idea", model.VoteAgree},
		{"disagreement", "No this is wrong and a terrible plan", model.VoteDisagree},
		{"neutral", "When does the next phase of construction begin", model.VotePass},
		{"empty", "", model.VotePass},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gt.Equal(t, voter.Classify(ctx, "title", "body", tc.text), tc.want)
		})
	}
}
