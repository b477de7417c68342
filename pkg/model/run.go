package model

import (
	"time"

	"github.com/google/uuid"
)

type RunID string

// NewRunID generates a new unique RunID
func NewRunID() RunID {
	return RunID(uuid.New().String())
}

// ClusterDecision captures the fields of one assignment decision.
type ClusterDecision struct {
	AssignedBubbleID BubbleID `json:"assigned_bubble_id" firestore:"assigned_bubble_id"`
	Similarity       float64  `json:"similarity_to_assigned" firestore:"similarity_to_assigned"`
	Threshold        float64  `json:"threshold" firestore:"threshold"`
	CreatedNewBubble bool     `json:"created_new_bubble" firestore:"created_new_bubble"`
}

// LabelerRecord records which labeler backend produced the version's label
// and which members it considered representative.
type LabelerRecord struct {
	Mode              string      `json:"mode" firestore:"mode"`
	RepresentativeIDs []CommentID `json:"representative_comment_ids" firestore:"representative_comment_ids"`
}

// PipelineRun is the audit record produced for every processed comment.
type PipelineRun struct {
	ID             RunID          `json:"id" firestore:"id"`
	ConversationID ConversationID `json:"conversation_id" firestore:"conversation_id"`
	CommentID      CommentID      `json:"comment_id" firestore:"comment_id"`
	CreatedAt      time.Time      `json:"created_at" firestore:"created_at"`
	EmbeddingModel string         `json:"embedding_model" firestore:"embedding_model"`

	Decision ClusterDecision `json:"cluster_decision" firestore:"cluster_decision"`
	Labeler  LabelerRecord   `json:"labeler" firestore:"labeler"`
}
