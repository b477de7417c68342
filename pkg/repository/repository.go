// Package repository persists conversations and their clustering state. All
// writes for one conversation must come from a single goroutine; the
// repository guarantees that a read observes all prior writes for that
// conversation.
package repository

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/bubbly/pkg/model"
)

var ErrConversationNotFound = goerr.New("conversation not found")

// Repository defines the interface for conversation state persistence
type Repository interface {
	// PutConversation saves a conversation root
	PutConversation(ctx context.Context, conv *model.Conversation) error

	// GetConversation retrieves a conversation by ID
	GetConversation(ctx context.Context, id model.ConversationID) (*model.Conversation, error)

	// ListConversations retrieves conversations, newest first
	ListConversations(ctx context.Context, offset, limit int) ([]*model.Conversation, error)

	// GetState loads the full clustering state of a conversation
	GetState(ctx context.Context, id model.ConversationID) (*model.ConversationState, error)

	// PutComment saves a comment
	PutComment(ctx context.Context, comment *model.Comment) error

	// DeleteComment removes a comment, used to undo a tentative insertion
	// after a failed pipeline run
	DeleteComment(ctx context.Context, convID model.ConversationID, id model.CommentID) error

	// PutBubble saves a bubble, including its latest-version pointer
	PutBubble(ctx context.Context, bubble *model.Bubble) error

	// PutVersion saves an immutable bubble version
	PutVersion(ctx context.Context, version *model.BubbleVersion) error

	// PutEdge saves a provenance edge
	PutEdge(ctx context.Context, edge *model.BubbleEdge) error

	// PutRun saves a pipeline audit record
	PutRun(ctx context.Context, run *model.PipelineRun) error

	// SetNextLane persists the conversation's lane counter
	SetNextLane(ctx context.Context, id model.ConversationID, nextLane int) error

	// DeactivateBubble marks a bubble inactive so the clusterer skips it
	DeactivateBubble(ctx context.Context, convID model.ConversationID, id model.BubbleID) error
}
