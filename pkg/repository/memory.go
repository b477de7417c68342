package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/bubbly/pkg/model"
)

// Memory is an in-process Repository for tests and the interactive demo.
type Memory struct {
	mu     sync.RWMutex
	states map[model.ConversationID]*model.ConversationState
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		states: map[model.ConversationID]*model.ConversationState{},
	}
}

func (r *Memory) state(id model.ConversationID) (*model.ConversationState, error) {
	state, ok := r.states[id]
	if !ok {
		return nil, goerr.Wrap(ErrConversationNotFound, "unknown conversation", goerr.V("id", id))
	}
	return state, nil
}

func (r *Memory) PutConversation(ctx context.Context, conv *model.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state, ok := r.states[conv.ID]; ok {
		state.Conversation = conv
		return nil
	}
	r.states[conv.ID] = model.NewConversationState(conv)
	return nil
}

func (r *Memory) GetConversation(ctx context.Context, id model.ConversationID) (*model.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, err := r.state(id)
	if err != nil {
		return nil, err
	}
	conv := *state.Conversation
	return &conv, nil
}

func (r *Memory) ListConversations(ctx context.Context, offset, limit int) ([]*model.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conversations := make([]*model.Conversation, 0, len(r.states))
	for _, state := range r.states {
		conv := *state.Conversation
		conversations = append(conversations, &conv)
	}
	sort.Slice(conversations, func(i, j int) bool {
		if !conversations[i].CreatedAt.Equal(conversations[j].CreatedAt) {
			return conversations[i].CreatedAt.After(conversations[j].CreatedAt)
		}
		return conversations[i].ID < conversations[j].ID
	})

	if offset >= len(conversations) {
		return nil, nil
	}
	conversations = conversations[offset:]
	if limit > 0 && len(conversations) > limit {
		conversations = conversations[:limit]
	}
	return conversations, nil
}

func (r *Memory) GetState(ctx context.Context, id model.ConversationID) (*model.ConversationState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, err := r.state(id)
	if err != nil {
		return nil, err
	}
	return state.Snapshot(), nil
}

func (r *Memory) PutComment(ctx context.Context, comment *model.Comment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.state(comment.ConversationID)
	if err != nil {
		return err
	}
	c := *comment
	state.Comments[c.ID] = &c
	return nil
}

func (r *Memory) DeleteComment(ctx context.Context, convID model.ConversationID, id model.CommentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.state(convID)
	if err != nil {
		return err
	}
	delete(state.Comments, id)
	return nil
}

func (r *Memory) PutBubble(ctx context.Context, bubble *model.Bubble) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.state(bubble.ConversationID)
	if err != nil {
		return err
	}
	b := *bubble
	state.Bubbles[b.ID] = &b
	return nil
}

func (r *Memory) PutVersion(ctx context.Context, version *model.BubbleVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.state(version.ConversationID)
	if err != nil {
		return err
	}
	v := *version
	state.Versions[v.ID] = &v
	return nil
}

func (r *Memory) PutEdge(ctx context.Context, edge *model.BubbleEdge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.state(edge.ConversationID)
	if err != nil {
		return err
	}
	e := *edge
	state.Edges = append(state.Edges, &e)
	return nil
}

func (r *Memory) PutRun(ctx context.Context, run *model.PipelineRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.state(run.ConversationID)
	if err != nil {
		return err
	}
	rec := *run
	state.Runs = append(state.Runs, &rec)
	return nil
}

func (r *Memory) SetNextLane(ctx context.Context, id model.ConversationID, nextLane int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.state(id)
	if err != nil {
		return err
	}
	state.NextLane = nextLane
	return nil
}

func (r *Memory) DeactivateBubble(ctx context.Context, convID model.ConversationID, id model.BubbleID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.state(convID)
	if err != nil {
		return err
	}
	bubble, ok := state.Bubbles[id]
	if !ok {
		return goerr.New("unknown bubble", goerr.V("conversation_id", convID), goerr.V("bubble_id", id))
	}
	bubble.Active = false
	return nil
}
