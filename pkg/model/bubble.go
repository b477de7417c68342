package model

import (
	"time"

	"github.com/google/uuid"
)

type BubbleID string

// NewBubbleID generates a new unique BubbleID
func NewBubbleID() BubbleID {
	return BubbleID(uuid.New().String())
}

type BubbleVersionID string

// NewBubbleVersionID generates a new unique BubbleVersionID
func NewBubbleVersionID() BubbleVersionID {
	return BubbleVersionID(uuid.New().String())
}

type EdgeID string

// NewEdgeID generates a new unique EdgeID
func NewEdgeID() EdgeID {
	return EdgeID(uuid.New().String())
}

// Bubble is a topic cluster. LatestVersionID is the only mutable field; the
// snapshots it points at are immutable. Lane is assigned once at creation
// from the conversation's strictly increasing counter and never reused.
type Bubble struct {
	ID              BubbleID        `json:"id" firestore:"id"`
	ConversationID  ConversationID  `json:"conversation_id" firestore:"conversation_id"`
	CreatedAt       time.Time       `json:"created_at" firestore:"created_at"`
	Active          bool            `json:"is_active" firestore:"is_active"`
	Lane            int             `json:"lane" firestore:"lane"`
	LatestVersionID BubbleVersionID `json:"latest_bubble_version_id,omitempty" firestore:"latest_bubble_version_id,omitempty"`
}

// TimeWindow spans from the first member's arrival to the version's creation.
type TimeWindow struct {
	StartAt time.Time `json:"start_at" firestore:"start_at"`
	EndAt   time.Time `json:"end_at" firestore:"end_at"`
}

// BubbleVersion is an immutable snapshot of a bubble created by one
// clustering decision. Membership is append-only across the version chain
// and the centroid is always the mean over all current members, recomputed
// from scratch.
type BubbleVersion struct {
	ID             BubbleVersionID `json:"id" firestore:"id"`
	BubbleID       BubbleID        `json:"bubble_id" firestore:"bubble_id"`
	ConversationID ConversationID  `json:"conversation_id" firestore:"conversation_id"`
	CreatedAt      time.Time       `json:"created_at" firestore:"created_at"`
	Window         TimeWindow      `json:"window" firestore:"window"`

	Label      string  `json:"label" firestore:"label"`
	Essence    string  `json:"essence" firestore:"essence"`
	Confidence float64 `json:"confidence" firestore:"confidence"`

	CommentIDs        []CommentID `json:"comment_ids" firestore:"comment_ids"`
	RepresentativeIDs []CommentID `json:"representative_comment_ids" firestore:"representative_comment_ids"`

	Centroid Embedding `json:"centroid_embedding" firestore:"centroid_embedding"`
}

// Size returns the number of member comments.
func (v *BubbleVersion) Size() int {
	return len(v.CommentIDs)
}

// Contains reports whether the comment is a member of this version.
func (v *BubbleVersion) Contains(id CommentID) bool {
	for _, cid := range v.CommentIDs {
		if cid == id {
			return true
		}
	}
	return false
}

// EdgeType tags the provenance relation between two bubble versions.
type EdgeType string

const (
	// EdgeContinue links a version to its successor when a comment extends
	// an existing bubble.
	EdgeContinue EdgeType = "continue"
	// EdgeMergeFrom and EdgeSplitFrom are declared for consumers of the
	// graph; the online clusterer never produces them.
	EdgeMergeFrom EdgeType = "merge_from"
	EdgeSplitFrom EdgeType = "split_from"
)

// BubbleEdge is a directed, weighted provenance link between two bubble
// versions. Weight is the similarity score that justified the transition.
type BubbleEdge struct {
	ID             EdgeID          `json:"id" firestore:"id"`
	ConversationID ConversationID  `json:"conversation_id" firestore:"conversation_id"`
	FromVersionID  BubbleVersionID `json:"from_bubble_version_id" firestore:"from_bubble_version_id"`
	ToVersionID    BubbleVersionID `json:"to_bubble_version_id" firestore:"to_bubble_version_id"`
	Type           EdgeType        `json:"type" firestore:"type"`
	Weight         float64         `json:"weight" firestore:"weight"`
}
