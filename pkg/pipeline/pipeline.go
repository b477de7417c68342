package pipeline

import (
	"context"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"

	"github.com/m-mizutani/bubbly/pkg/cluster"
	"github.com/m-mizutani/bubbly/pkg/model"
	"github.com/m-mizutani/bubbly/pkg/utils/logging"
)

// Config holds the tunable pipeline settings. It can be loaded from a YAML
// profile; zero values fall back to the defaults.
type Config struct {
	AssignThreshold float64 `yaml:"assign_threshold"`
	EmbeddingModel  string  `yaml:"embedding_model"`
	EmbeddingDim    int     `yaml:"embedding_dim"`
	Backend         string  `yaml:"backend"`
	ChatModel       string  `yaml:"chat_model"`
}

// DefaultConfig returns the default pipeline settings.
func DefaultConfig() Config {
	return Config{
		AssignThreshold: 0.58,
		EmbeddingModel:  "text-embedding-3-small",
		EmbeddingDim:    1536,
		Backend:         "local",
		ChatModel:       "gpt-4o-mini",
	}
}

// LoadConfig reads a YAML profile and overlays it on the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, goerr.Wrap(err, "failed to read pipeline config", goerr.Value("path", path))
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, goerr.Wrap(err, "failed to parse pipeline config", goerr.Value("path", path))
	}

	if cfg.AssignThreshold <= 0 || cfg.AssignThreshold >= 1 {
		return cfg, goerr.New("assign_threshold must be in (0, 1)",
			goerr.Value("assign_threshold", cfg.AssignThreshold))
	}
	return cfg, nil
}

// Pipeline sequences embedding, stance classification, clustering, labeling
// and audit-record creation for one new comment against a conversation's
// state.
type Pipeline struct {
	cfg       Config
	clusterer *cluster.Clusterer
	embedder  EmbeddingProvider
	labeler   Labeler
	voter     Voter
}

// Option is a functional option for Pipeline
type Option func(*Pipeline)

// WithVoter enables stance classification with the given voter.
func WithVoter(v Voter) Option {
	return func(p *Pipeline) {
		p.voter = v
	}
}

// New creates a Pipeline. The embedder and labeler are required; the voter
// is optional and stance classification is skipped without one.
func New(cfg Config, embedder EmbeddingProvider, labeler Labeler, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg: cfg,
		clusterer: cluster.New(cluster.Config{
			AssignThreshold: cfg.AssignThreshold,
			EmbeddingModel:  embedder.ModelName(),
			EmbeddingDim:    embedder.Dim(),
		}),
		embedder: embedder,
		labeler:  labeler,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Threshold returns the configured assignment threshold.
func (p *Pipeline) Threshold() float64 {
	return p.cfg.AssignThreshold
}

// Embedder returns the configured embedding provider, for callers that
// pre-embed batches before processing.
func (p *Pipeline) Embedder() EmbeddingProvider {
	return p.embedder
}

// ProcessComment runs one comment through embedding, stance classification,
// assignment and labeling, and builds the audit record. The comment must
// already be part of state.Comments; on error the caller owns removing it
// again, no partial-state cleanup happens here. Comments of one conversation
// must be processed strictly sequentially.
func (p *Pipeline) ProcessComment(ctx context.Context, comment *model.Comment, state *model.ConversationState) (*model.BubbleEdge, *model.PipelineRun, error) {
	logger := logging.From(ctx)

	if comment.Embedding.Empty() {
		embedding, err := p.embedder.Embed(ctx, comment.Text)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to embed comment",
				goerr.Value("comment_id", comment.ID))
		}
		comment.Embedding = embedding
	}

	conv := state.Conversation
	if p.voter != nil && conv != nil && conv.Title != "" && conv.Body != "" && comment.Vote == "" {
		comment.Vote = p.voter.Classify(ctx, conv.Title, conv.Body, comment.Text)
	}

	assignment := p.clusterer.Assign(comment.ConversationID, comment, state)
	logger.Debug("assigned comment",
		"comment_id", comment.ID,
		"bubble_id", assignment.BubbleID,
		"similarity", assignment.Similarity,
		"new_bubble", assignment.CreatedNewBubble)

	// The label is fully regenerated for every new version, never merged
	// with the prior label.
	label := p.labeler.Label(ctx, assignment.Version, state.Comments)
	assignment.Version.Label = label.Label
	assignment.Version.Essence = label.Essence
	assignment.Version.Confidence = label.Confidence
	assignment.Version.RepresentativeIDs = label.RepresentativeIDs

	run := &model.PipelineRun{
		ID:             model.NewRunID(),
		ConversationID: comment.ConversationID,
		CommentID:      comment.ID,
		CreatedAt:      time.Now(),
		EmbeddingModel: p.embedder.ModelName(),
		Decision: model.ClusterDecision{
			AssignedBubbleID: assignment.BubbleID,
			Similarity:       assignment.Similarity,
			Threshold:        p.cfg.AssignThreshold,
			CreatedNewBubble: assignment.CreatedNewBubble,
		},
		Labeler: model.LabelerRecord{
			Mode:              p.labeler.Mode(),
			RepresentativeIDs: label.RepresentativeIDs,
		},
	}

	return assignment.Edge, run, nil
}
