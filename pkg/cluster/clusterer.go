// Package cluster implements the online, threshold-gated nearest-centroid
// assignment of comments to bubbles. Each decision either extends an
// existing bubble with a new immutable version or spawns a new bubble; the
// whole history is never re-clustered.
package cluster

import (
	"strings"
	"time"

	"github.com/m-mizutani/bubbly/pkg/model"
	"github.com/m-mizutani/bubbly/pkg/utils/vector"
)

// Config controls the assignment threshold and the centroid embedding
// metadata.
type Config struct {
	AssignThreshold float64
	EmbeddingModel  string
	EmbeddingDim    int
}

// Clusterer assigns comments one at a time against a conversation's
// cumulative state. It performs no I/O and never fails: without a viable
// candidate it falls back to creating a new bubble.
type Clusterer struct {
	cfg Config
}

// New creates a Clusterer with the given configuration.
func New(cfg Config) *Clusterer {
	return &Clusterer{cfg: cfg}
}

// Assignment is the outcome of one clustering decision.
type Assignment struct {
	BubbleID         model.BubbleID
	Similarity       float64
	CreatedNewBubble bool
	Bubble           *model.Bubble
	Version          *model.BubbleVersion
	// Edge is the continue edge from the superseded version, nil when a new
	// bubble was created.
	Edge *model.BubbleEdge
}

// Assign decides whether the comment joins an existing bubble or spawns a
// new one, mutating state accordingly: it adds the new bubble/version,
// advances the lane counter, updates the winning bubble's latest-version
// pointer and sets the comment's assignment fields. The caller persists the
// returned edge. Not idempotent: callers must invoke it at most once per
// comment.
//
// Candidates are active bubbles with a latest version, visited in lane
// order; the highest similarity wins and an exact tie goes to the earliest
// created bubble (smallest lane).
func (c *Clusterer) Assign(conversationID model.ConversationID, comment *model.Comment, state *model.ConversationState) *Assignment {
	bestBubble, bestSim := c.findBestBubble(comment.Embedding, state)

	var bubble *model.Bubble
	var prevVersionID model.BubbleVersionID
	createdNew := false
	assignedSim := bestSim

	if bestBubble == nil || bestSim < c.cfg.AssignThreshold {
		bubble = &model.Bubble{
			ID:             model.NewBubbleID(),
			ConversationID: conversationID,
			CreatedAt:      time.Now(),
			Active:         true,
			Lane:           state.NextLane,
		}
		state.Bubbles[bubble.ID] = bubble
		state.NextLane++
		createdNew = true
		assignedSim = 1.0
	} else {
		bubble = bestBubble
		prevVersionID = bubble.LatestVersionID
	}

	version, edge := c.newVersion(conversationID, bubble, prevVersionID, comment, state, assignedSim)

	bubble.LatestVersionID = version.ID
	comment.AssignedBubbleID = bubble.ID
	comment.AssignedVersionID = version.ID

	return &Assignment{
		BubbleID:         bubble.ID,
		Similarity:       assignedSim,
		CreatedNewBubble: createdNew,
		Bubble:           bubble,
		Version:          version,
		Edge:             edge,
	}
}

// findBestBubble scans active bubbles in lane order and returns the one
// whose latest centroid is most similar to the embedding. Strictly greater
// similarity wins, so on an exact tie the earliest bubble is kept.
func (c *Clusterer) findBestBubble(embedding model.Embedding, state *model.ConversationState) (*model.Bubble, float64) {
	var best *model.Bubble
	bestSim := -1.0

	for _, bubble := range state.SortedBubbles() {
		if !bubble.Active || bubble.LatestVersionID == "" {
			continue
		}
		version, ok := state.Versions[bubble.LatestVersionID]
		if !ok {
			continue
		}
		sim := vector.Cosine(embedding.Vector, version.Centroid.Vector)
		if sim > bestSim {
			bestSim = sim
			best = bubble
		}
	}

	return best, bestSim
}

// newVersion creates the immutable snapshot for this decision. Membership is
// the prior version's list plus the new comment; the centroid is recomputed
// as the mean over all current members rather than updated incrementally, an
// O(n) cost accepted so the centroid is always exactly the mean.
func (c *Clusterer) newVersion(
	conversationID model.ConversationID,
	bubble *model.Bubble,
	prevVersionID model.BubbleVersionID,
	comment *model.Comment,
	state *model.ConversationState,
	similarity float64,
) (*model.BubbleVersion, *model.BubbleEdge) {
	createdAt := time.Now()

	var commentIDs []model.CommentID
	var window model.TimeWindow
	var edge *model.BubbleEdge

	if prevVersionID == "" {
		commentIDs = []model.CommentID{comment.ID}
		window = model.TimeWindow{StartAt: createdAt, EndAt: createdAt}
	} else {
		prev := state.Versions[prevVersionID]
		commentIDs = append(append([]model.CommentID(nil), prev.CommentIDs...), comment.ID)
		window = model.TimeWindow{StartAt: prev.Window.StartAt, EndAt: createdAt}
		edge = &model.BubbleEdge{
			ID:             model.NewEdgeID(),
			ConversationID: conversationID,
			FromVersionID:  prev.ID,
			Type:           model.EdgeContinue,
			Weight:         similarity,
		}
	}

	version := &model.BubbleVersion{
		ID:             model.NewBubbleVersionID(),
		BubbleID:       bubble.ID,
		ConversationID: conversationID,
		CreatedAt:      createdAt,
		Window:         window,
		CommentIDs:     commentIDs,
		Centroid:       c.centroid(commentIDs, state),
	}
	state.Versions[version.ID] = version

	if edge != nil {
		edge.ToVersionID = version.ID
	}

	return version, edge
}

// centroid computes the mean embedding over the members. The hash is derived
// from the member embedding hashes so equal memberships hash equally.
func (c *Clusterer) centroid(commentIDs []model.CommentID, state *model.ConversationState) model.Embedding {
	vectors := make([][]float64, 0, len(commentIDs))
	hashes := make([]string, 0, len(commentIDs))
	for _, cid := range commentIDs {
		if member, ok := state.Comments[cid]; ok {
			vectors = append(vectors, member.Embedding.Vector)
			hashes = append(hashes, member.Embedding.Hash)
		}
	}

	return model.Embedding{
		Vector: vector.Mean(vectors, c.cfg.EmbeddingDim),
		Dim:    c.cfg.EmbeddingDim,
		Model:  c.cfg.EmbeddingModel,
		Hash:   model.SHA256("centroid:" + strings.Join(hashes, "|")),
	}
}
