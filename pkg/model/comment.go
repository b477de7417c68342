package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

var ErrInvalidVote = goerr.New("invalid vote")

type ConversationID string

// NewConversationID generates a new unique ConversationID
func NewConversationID() ConversationID {
	return ConversationID(uuid.New().String())
}

type CommentID string

// NewCommentID generates a new unique CommentID
func NewCommentID() CommentID {
	return CommentID(uuid.New().String())
}

// Vote is a stance classification of a comment relative to the conversation's
// root content.
type Vote string

const (
	VoteAgree    Vote = "agree"
	VoteDisagree Vote = "disagree"
	VotePass     Vote = "pass"
)

// Validate checks if the vote is one of the known stances
func (v Vote) Validate() error {
	switch v {
	case VoteAgree, VoteDisagree, VotePass:
		return nil
	default:
		return goerr.Wrap(ErrInvalidVote, "unknown stance", goerr.V("vote", v))
	}
}

// Embedding is a dense vector with its provenance metadata. The hash covers
// the model and the embedded text so identical inputs are recognizable.
type Embedding struct {
	Vector []float64 `json:"vector" firestore:"vector"`
	Dim    int       `json:"dim" firestore:"dim"`
	Model  string    `json:"model" firestore:"model"`
	Hash   string    `json:"hash" firestore:"hash"`
}

// Empty reports whether the embedding has not been computed yet.
func (e Embedding) Empty() bool {
	return len(e.Vector) == 0 || e.Dim == 0
}

// SHA256 returns the hex SHA-256 digest of data, used for embedding and
// centroid hashes.
func SHA256(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// Conversation is the root content that comments respond to.
type Conversation struct {
	ID        ConversationID `json:"id" firestore:"id"`
	Title     string         `json:"title" firestore:"title"`
	Body      string         `json:"body" firestore:"body"`
	CreatedAt time.Time      `json:"created_at" firestore:"created_at"`
}

// Author identifies who wrote a comment.
type Author struct {
	ID          string `json:"id" firestore:"id"`
	DisplayName string `json:"display_name" firestore:"display_name"`
}

// Comment is a short text item in a conversation. Once embedded and assigned
// it is immutable; the assignment fields are set exactly once by the
// clusterer.
type Comment struct {
	ID             CommentID      `json:"id" firestore:"id"`
	ConversationID ConversationID `json:"conversation_id" firestore:"conversation_id"`
	Author         Author         `json:"author" firestore:"author"`
	Text           string         `json:"text" firestore:"text"`
	ReplyToID      CommentID      `json:"reply_to_comment_id,omitempty" firestore:"reply_to_comment_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at" firestore:"created_at"`

	Embedding Embedding `json:"embedding" firestore:"embedding"`
	Vote      Vote      `json:"vote,omitempty" firestore:"vote,omitempty"`

	AssignedBubbleID  BubbleID        `json:"assigned_bubble_id,omitempty" firestore:"assigned_bubble_id,omitempty"`
	AssignedVersionID BubbleVersionID `json:"assigned_bubble_version_id,omitempty" firestore:"assigned_bubble_version_id,omitempty"`
}
