package pipeline_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/bubbly/pkg/model"
	"github.com/m-mizutani/bubbly/pkg/pipeline"
)

type mockEmbedder struct {
	vectors map[string][]float64
	err     error
	calls   int
}

func (m *mockEmbedder) Dim() int          { return 3 }
func (m *mockEmbedder) ModelName() string { return "mock-embed" }

func (m *mockEmbedder) Embed(ctx context.Context, text string) (model.Embedding, error) {
	m.calls++
	if m.err != nil {
		return model.Embedding{}, m.err
	}
	vec, ok := m.vectors[text]
	if !ok {
		vec = []float64{1, 0, 0}
	}
	return model.Embedding{
		Vector: vec,
		Dim:    3,
		Model:  "mock-embed",
		Hash:   model.SHA256("mock-embed:" + text),
	}, nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]model.Embedding, error) {
	embeddings := make([]model.Embedding, 0, len(texts))
	for _, text := range texts {
		emb, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, emb)
	}
	return embeddings, nil
}

type mockLabeler struct {
	calls int
}

func (m *mockLabeler) Mode() string { return "mock" }

func (m *mockLabeler) Label(ctx context.Context, version *model.BubbleVersion, comments map[model.CommentID]*model.Comment) pipeline.LabelResult {
	m.calls++
	reps := version.CommentIDs
	if len(reps) > 2 {
		reps = reps[:2]
	}
	return pipeline.LabelResult{
		Label:             "Mock Topic",
		Essence:           "Mock essence.",
		Confidence:        0.5,
		RepresentativeIDs: reps,
	}
}

type mockVoter struct {
	vote  model.Vote
	calls int
}

func (m *mockVoter) Classify(ctx context.Context, title, body, text string) model.Vote {
	m.calls++
	return m.vote
}

func newComment(conv model.ConversationID, text string, at time.Time) *model.Comment {
	return &model.Comment{
		ID:             model.NewCommentID(),
		ConversationID: conv,
		Text:           text,
		CreatedAt:      at,
	}
}

func testConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.AssignThreshold = 0.58
	return cfg
}

func TestProcessCommentNewBubble(t *testing.T) {
	ctx := context.Background()
	embedder := &mockEmbedder{}
	labeler := &mockLabeler{}
	p := pipeline.New(testConfig(), embedder, labeler)

	conv := &model.Conversation{ID: model.NewConversationID(), Title: "t", Body: "b"}
	state := model.NewConversationState(conv)
	comment := newComment(conv.ID, "hello world", time.Now())
	state.Comments[comment.ID] = comment

	edge, run, err := p.ProcessComment(ctx, comment, state)
	gt.NoError(t, err)
	gt.V(t, edge).Nil()
	gt.V(t, run).NotNil()

	gt.True(t, run.Decision.CreatedNewBubble)
	gt.Equal(t, run.Decision.Similarity, 1.0)
	gt.Equal(t, run.Decision.Threshold, 0.58)
	gt.Equal(t, run.CommentID, comment.ID)
	gt.Equal(t, run.EmbeddingModel, "mock-embed")
	gt.Equal(t, run.Labeler.Mode, "mock")

	gt.Equal(t, labeler.calls, 1)
	gt.False(t, comment.Embedding.Empty())

	version := state.Versions[comment.AssignedVersionID]
	gt.V(t, version).NotNil()
	gt.Equal(t, version.Label, "Mock Topic")
	gt.Equal(t, version.Essence, "Mock essence.")
	gt.Equal(t, version.Confidence, 0.5)
}

func TestProcessCommentJoinsExistingBubble(t *testing.T) {
	ctx := context.Background()
	embedder := &mockEmbedder{
		vectors: map[string][]float64{
			"first":  {1, 0, 0},
			"second": {1, 0, 0},
		},
	}
	labeler := &mockLabeler{}
	p := pipeline.New(testConfig(), embedder, labeler)

	conv := &model.Conversation{ID: model.NewConversationID()}
	state := model.NewConversationState(conv)

	c1 := newComment(conv.ID, "first", time.Now())
	state.Comments[c1.ID] = c1
	_, _, err := p.ProcessComment(ctx, c1, state)
	gt.NoError(t, err)

	c2 := newComment(conv.ID, "second", time.Now())
	state.Comments[c2.ID] = c2
	edge, run, err := p.ProcessComment(ctx, c2, state)
	gt.NoError(t, err)

	gt.False(t, run.Decision.CreatedNewBubble)
	gt.Equal(t, run.Decision.Similarity, 1.0)
	gt.Equal(t, c1.AssignedBubbleID, c2.AssignedBubbleID)
	gt.A(t, state.LatestVersions()).Length(1)

	gt.V(t, edge).NotNil()
	gt.Equal(t, edge.Type, model.EdgeContinue)
	gt.Equal(t, edge.FromVersionID, c1.AssignedVersionID)
	gt.Equal(t, edge.ToVersionID, c2.AssignedVersionID)

	// Both versions got labeled independently.
	gt.Equal(t, labeler.calls, 2)
	gt.Equal(t, state.Versions[c2.AssignedVersionID].Label, "Mock Topic")
}

func TestProcessCommentEmbeddingError(t *testing.T) {
	ctx := context.Background()
	embedErr := goerr.New("embedding backend down")
	embedder := &mockEmbedder{err: embedErr}
	labeler := &mockLabeler{}
	p := pipeline.New(testConfig(), embedder, labeler)

	conv := &model.Conversation{ID: model.NewConversationID()}
	state := model.NewConversationState(conv)
	comment := newComment(conv.ID, "hello", time.Now())
	state.Comments[comment.ID] = comment

	_, _, err := p.ProcessComment(ctx, comment, state)
	gt.Error(t, err)

	// Nothing was clustered.
	gt.Equal(t, labeler.calls, 0)
	gt.A(t, state.LatestVersions()).Length(0)
	gt.Equal(t, comment.AssignedBubbleID, model.BubbleID(""))
}

func TestProcessCommentSkipsEmbeddingWhenPresent(t *testing.T) {
	ctx := context.Background()
	embedder := &mockEmbedder{}
	labeler := &mockLabeler{}
	p := pipeline.New(testConfig(), embedder, labeler)

	conv := &model.Conversation{ID: model.NewConversationID()}
	state := model.NewConversationState(conv)
	comment := newComment(conv.ID, "already embedded", time.Now())
	comment.Embedding = model.Embedding{
		Vector: []float64{0, 1, 0},
		Dim:    3,
		Model:  "mock-embed",
		Hash:   "precomputed",
	}
	state.Comments[comment.ID] = comment

	_, _, err := p.ProcessComment(ctx, comment, state)
	gt.NoError(t, err)
	gt.Equal(t, embedder.calls, 0)
	gt.Equal(t, comment.Embedding.Hash, "precomputed")
}

func TestProcessCommentVoterRules(t *testing.T) {
	ctx := context.Background()

	type testCase struct {
		title    string
		body     string
		preVote  model.Vote
		useVoter bool
		calls    int
		want     model.Vote
	}

	run := func(tc testCase) func(t *testing.T) {
		return func(t *testing.T) {
			embedder := &mockEmbedder{}
			labeler := &mockLabeler{}
			voter := &mockVoter{vote: model.VoteAgree}

			var opts []pipeline.Option
			if tc.useVoter {
				opts = append(opts, pipeline.WithVoter(voter))
			}
			p := pipeline.New(testConfig(), embedder, labeler, opts...)

			conv := &model.Conversation{
				ID:    model.NewConversationID(),
				Title: tc.title,
				Body:  tc.body,
			}
			state := model.NewConversationState(conv)
			comment := newComment(conv.ID, "some comment", time.Now())
			comment.Vote = tc.preVote
			state.Comments[comment.ID] = comment

			_, _, err := p.ProcessComment(ctx, comment, state)
			gt.NoError(t, err)
			gt.Equal(t, voter.calls, tc.calls)
			gt.Equal(t, comment.Vote, tc.want)
		}
	}

	t.Run("classifies when title and body present", run(testCase{
		title: "t", body: "b", useVoter: true, calls: 1, want: model.VoteAgree,
	}))
	t.Run("skips without voter", run(testCase{
		title: "t", body: "b", useVoter: false, calls: 0, want: "",
	}))
	t.Run("skips without body", run(testCase{
		title: "t", useVoter: true, calls: 0, want: "",
	}))
	t.Run("keeps existing vote", run(testCase{
		title: "t", body: "b", preVote: model.VoteDisagree, useVoter: true,
		calls: 0, want: model.VoteDisagree,
	}))
}

func writeFile(path, data string) error {
	return os.WriteFile(path, []byte(data), 0600)
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := pipeline.DefaultConfig()
		gt.Equal(t, cfg.AssignThreshold, 0.58)
		gt.Equal(t, cfg.Backend, "local")
	})

	t.Run("overlay from file", func(t *testing.T) {
		path := t.TempDir() + "/profile.yml"
		data := "assign_threshold: 0.7\nbackend: openai\n"
		gt.NoError(t, writeFile(path, data))

		cfg, err := pipeline.LoadConfig(path)
		gt.NoError(t, err)
		gt.Equal(t, cfg.AssignThreshold, 0.7)
		gt.Equal(t, cfg.Backend, "openai")
		gt.Equal(t, cfg.EmbeddingDim, 1536)
	})

	t.Run("rejects out-of-range threshold", func(t *testing.T) {
		path := t.TempDir() + "/profile.yml"
		gt.NoError(t, writeFile(path, "assign_threshold: 1.5\n"))

		_, err := pipeline.LoadConfig(path)
		gt.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := pipeline.LoadConfig("/no/such/profile.yml")
		gt.Error(t, err)
	})
}
