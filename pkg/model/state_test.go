package model_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/bubbly/pkg/model"
)

func testState() *model.ConversationState {
	conv := &model.Conversation{
		ID:        model.NewConversationID(),
		Title:     "test",
		Body:      "body",
		CreatedAt: time.Now(),
	}
	return model.NewConversationState(conv)
}

func TestSnapshotIsolation(t *testing.T) {
	state := testState()

	c := &model.Comment{
		ID:             model.NewCommentID(),
		ConversationID: state.Conversation.ID,
		Text:           "first",
		CreatedAt:      time.Now(),
		Embedding:      model.Embedding{Vector: []float64{1, 0}, Dim: 2, Model: "m"},
	}
	state.Comments[c.ID] = c

	b := &model.Bubble{
		ID:             model.NewBubbleID(),
		ConversationID: state.Conversation.ID,
		CreatedAt:      time.Now(),
		Active:         true,
		Lane:           0,
	}
	state.Bubbles[b.ID] = b

	v := &model.BubbleVersion{
		ID:         model.NewBubbleVersionID(),
		BubbleID:   b.ID,
		CreatedAt:  time.Now(),
		CommentIDs: []model.CommentID{c.ID},
		Centroid:   model.Embedding{Vector: []float64{1, 0}, Dim: 2},
	}
	state.Versions[v.ID] = v
	b.LatestVersionID = v.ID

	snap := state.Snapshot()

	// Mutations on the live state must not leak into the snapshot
	c.Embedding.Vector[0] = 99
	c.AssignedBubbleID = b.ID
	v.CommentIDs = append(v.CommentIDs, model.NewCommentID())
	b.Active = false
	state.NextLane = 7

	snapComment := snap.Comments[c.ID]
	gt.Equal(t, snapComment.Embedding.Vector[0], 1.0)
	gt.V(t, snapComment.AssignedBubbleID).Equal(model.BubbleID(""))
	gt.A(t, snap.Versions[v.ID].CommentIDs).Length(1)
	gt.True(t, snap.Bubbles[b.ID].Active)
	gt.Equal(t, snap.NextLane, 0)
}

func TestSortedCommentsStableOrder(t *testing.T) {
	state := testState()
	at := time.Now()

	ids := []model.CommentID{"c", "a", "b"}
	for _, id := range ids {
		state.Comments[id] = &model.Comment{ID: id, CreatedAt: at}
	}

	sorted := state.SortedComments()
	gt.A(t, sorted).Length(3)
	gt.V(t, sorted[0].ID).Equal(model.CommentID("a"))
	gt.V(t, sorted[1].ID).Equal(model.CommentID("b"))
	gt.V(t, sorted[2].ID).Equal(model.CommentID("c"))
}

func TestLayout(t *testing.T) {
	state := testState()
	at := time.Now()

	c1 := &model.Comment{ID: "c1", CreatedAt: at}
	c2 := &model.Comment{ID: "c2", CreatedAt: at.Add(time.Minute)}
	state.Comments[c1.ID] = c1
	state.Comments[c2.ID] = c2

	b := &model.Bubble{ID: "b1", Lane: 3, Active: true, CreatedAt: at}
	state.Bubbles[b.ID] = b
	v := &model.BubbleVersion{
		ID:         "v1",
		BubbleID:   b.ID,
		CreatedAt:  at.Add(time.Minute),
		CommentIDs: []model.CommentID{"c1", "c2"},
	}
	state.Versions[v.ID] = v

	layout := state.Layout()
	pos := layout["v1"]
	gt.Equal(t, pos.Lane, 3)
	gt.Equal(t, pos.T, 1.0)
	if pos.Size < 1.41 || pos.Size > 1.42 {
		t.Errorf("unexpected size: %f", pos.Size)
	}
}

func TestVoteValidate(t *testing.T) {
	gt.NoError(t, model.VoteAgree.Validate())
	gt.NoError(t, model.VoteDisagree.Validate())
	gt.NoError(t, model.VotePass.Validate())
	gt.Error(t, model.Vote("maybe").Validate())
}
