package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/bubbly/pkg/model"
	"github.com/m-mizutani/bubbly/pkg/repository"
)

func setupFirestore(t *testing.T) *repository.Firestore {
	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")

	if projectID == "" || databaseID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID and TEST_FIRESTORE_DATABASE_ID must be set to run Firestore tests")
	}

	repo, err := repository.New(context.Background(), projectID, databaseID)
	gt.NoError(t, err)
	t.Cleanup(func() {
		gt.NoError(t, repo.Close())
	})

	return repo
}

func TestFirestorePutConversation(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()

	conv := newConversation()
	gt.NoError(t, repo.PutConversation(ctx, conv))

	retrieved, err := repo.GetConversation(ctx, conv.ID)
	gt.NoError(t, err)
	gt.V(t, retrieved).NotNil()
	gt.Equal(t, retrieved.ID, conv.ID)
	gt.Equal(t, retrieved.Title, conv.Title)
}

func TestFirestoreGetConversationNotFound(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()

	_, err := repo.GetConversation(ctx, model.ConversationID("non-existent-conversation"))
	gt.Error(t, err)
}

func TestFirestoreListConversations(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()

	now := time.Now()
	for i := 0; i < 3; i++ {
		conv := newConversation()
		conv.CreatedAt = now.Add(time.Duration(-i) * time.Hour)
		gt.NoError(t, repo.PutConversation(ctx, conv))
	}

	retrieved, err := repo.ListConversations(ctx, 0, 10)
	gt.NoError(t, err)
	gt.A(t, retrieved).Longer(2)

	for i := 0; i < len(retrieved)-1; i++ {
		gt.True(t, !retrieved[i].CreatedAt.Before(retrieved[i+1].CreatedAt))
	}
}

func TestFirestoreState(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()

	conv := newConversation()
	gt.NoError(t, repo.PutConversation(ctx, conv))

	comment := &model.Comment{
		ID:             model.NewCommentID(),
		ConversationID: conv.ID,
		Text:           "stateful comment",
		CreatedAt:      time.Now(),
		Embedding: model.Embedding{
			Vector: []float64{0.1, 0.2, 0.3},
			Dim:    3,
			Model:  "test-model",
			Hash:   "test-hash",
		},
	}
	gt.NoError(t, repo.PutComment(ctx, comment))

	bubble := &model.Bubble{
		ID:             model.NewBubbleID(),
		ConversationID: conv.ID,
		CreatedAt:      time.Now(),
		Active:         true,
	}
	gt.NoError(t, repo.PutBubble(ctx, bubble))

	version := &model.BubbleVersion{
		ID:             model.NewBubbleVersionID(),
		BubbleID:       bubble.ID,
		ConversationID: conv.ID,
		CreatedAt:      time.Now(),
		Label:          "Test Label",
		CommentIDs:     []model.CommentID{comment.ID},
		Centroid: model.Embedding{
			Vector: []float64{0.1, 0.2, 0.3},
			Dim:    3,
		},
	}
	gt.NoError(t, repo.PutVersion(ctx, version))

	bubble.LatestVersionID = version.ID
	gt.NoError(t, repo.PutBubble(ctx, bubble))
	gt.NoError(t, repo.SetNextLane(ctx, conv.ID, 1))

	state, err := repo.GetState(ctx, conv.ID)
	gt.NoError(t, err)
	gt.Equal(t, state.Conversation.ID, conv.ID)
	gt.Equal(t, state.NextLane, 1)
	gt.Map(t, state.Comments).HasKey(comment.ID)
	gt.Map(t, state.Bubbles).HasKey(bubble.ID)
	gt.Map(t, state.Versions).HasKey(version.ID)
	gt.Equal(t, state.Comments[comment.ID].Embedding.Vector, comment.Embedding.Vector)
	gt.Equal(t, state.Versions[version.ID].Label, "Test Label")
}

func TestFirestoreDeleteComment(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()

	conv := newConversation()
	gt.NoError(t, repo.PutConversation(ctx, conv))

	comment := &model.Comment{
		ID:             model.NewCommentID(),
		ConversationID: conv.ID,
		Text:           "will be rolled back",
		CreatedAt:      time.Now(),
	}
	gt.NoError(t, repo.PutComment(ctx, comment))
	gt.NoError(t, repo.DeleteComment(ctx, conv.ID, comment.ID))

	state, err := repo.GetState(ctx, conv.ID)
	gt.NoError(t, err)
	gt.A(t, state.SortedComments()).Length(0)
}

func TestFirestoreDeactivateBubble(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()

	conv := newConversation()
	gt.NoError(t, repo.PutConversation(ctx, conv))

	bubble := &model.Bubble{
		ID:             model.NewBubbleID(),
		ConversationID: conv.ID,
		CreatedAt:      time.Now(),
		Active:         true,
	}
	gt.NoError(t, repo.PutBubble(ctx, bubble))
	gt.NoError(t, repo.DeactivateBubble(ctx, conv.ID, bubble.ID))

	state, err := repo.GetState(ctx, conv.ID)
	gt.NoError(t, err)
	gt.False(t, state.Bubbles[bubble.ID].Active)
}
