package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/m-mizutani/bubbly/pkg/model"
)

const (
	collectionConversations = "conversations"
	collectionComments      = "comments"
	collectionBubbles       = "bubbles"
	collectionVersions      = "bubble_versions"
	collectionEdges         = "edges"
	collectionRuns          = "runs"
)

// conversationDoc is the root document. The lane counter lives here so a
// single read restores it together with the conversation.
type conversationDoc struct {
	Conversation *model.Conversation `firestore:"conversation"`
	NextLane     int                 `firestore:"next_lane"`
}

// Firestore implements Repository using Cloud Firestore. Each conversation
// is one root document with the comments, bubbles, versions, edges and runs
// in subcollections underneath it.
type Firestore struct {
	client *firestore.Client
}

// New creates a Firestore repository for the given project and database.
func New(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project_id", projectID), goerr.V("database_id", databaseID))
	}
	return &Firestore{client: client}, nil
}

// Close releases the underlying client.
func (r *Firestore) Close() error {
	return r.client.Close()
}

func (r *Firestore) conversation(id model.ConversationID) *firestore.DocumentRef {
	return r.client.Collection(collectionConversations).Doc(string(id))
}

func (r *Firestore) PutConversation(ctx context.Context, conv *model.Conversation) error {
	doc := r.conversation(conv.ID)

	snapshot, err := doc.Get(ctx)
	nextLane := 0
	if err == nil {
		var existing conversationDoc
		if err := snapshot.DataTo(&existing); err == nil {
			nextLane = existing.NextLane
		}
	} else if status.Code(err) != codes.NotFound {
		return goerr.Wrap(err, "failed to get conversation", goerr.V("id", conv.ID))
	}

	if _, err := doc.Set(ctx, conversationDoc{Conversation: conv, NextLane: nextLane}); err != nil {
		return goerr.Wrap(err, "failed to put conversation", goerr.V("id", conv.ID))
	}
	return nil
}

func (r *Firestore) GetConversation(ctx context.Context, id model.ConversationID) (*model.Conversation, error) {
	snapshot, err := r.conversation(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrConversationNotFound, "unknown conversation", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get conversation", goerr.V("id", id))
	}

	var doc conversationDoc
	if err := snapshot.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode conversation", goerr.V("id", id))
	}
	return doc.Conversation, nil
}

func (r *Firestore) ListConversations(ctx context.Context, offset, limit int) ([]*model.Conversation, error) {
	query := r.client.Collection(collectionConversations).
		OrderBy("conversation.created_at", firestore.Desc).
		Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var conversations []*model.Conversation
	for {
		snapshot, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list conversations")
		}
		var doc conversationDoc
		if err := snapshot.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode conversation")
		}
		conversations = append(conversations, doc.Conversation)
	}
	return conversations, nil
}

func (r *Firestore) GetState(ctx context.Context, id model.ConversationID) (*model.ConversationState, error) {
	snapshot, err := r.conversation(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrConversationNotFound, "unknown conversation", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get conversation", goerr.V("id", id))
	}

	var doc conversationDoc
	if err := snapshot.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode conversation", goerr.V("id", id))
	}

	state := model.NewConversationState(doc.Conversation)
	state.NextLane = doc.NextLane

	ref := r.conversation(id)

	if err := forEach(ctx, ref.Collection(collectionComments), func(s *firestore.DocumentSnapshot) error {
		var c model.Comment
		if err := s.DataTo(&c); err != nil {
			return err
		}
		state.Comments[c.ID] = &c
		return nil
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to load comments", goerr.V("id", id))
	}

	if err := forEach(ctx, ref.Collection(collectionBubbles), func(s *firestore.DocumentSnapshot) error {
		var b model.Bubble
		if err := s.DataTo(&b); err != nil {
			return err
		}
		state.Bubbles[b.ID] = &b
		return nil
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to load bubbles", goerr.V("id", id))
	}

	if err := forEach(ctx, ref.Collection(collectionVersions), func(s *firestore.DocumentSnapshot) error {
		var v model.BubbleVersion
		if err := s.DataTo(&v); err != nil {
			return err
		}
		state.Versions[v.ID] = &v
		return nil
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to load bubble versions", goerr.V("id", id))
	}

	if err := forEach(ctx, ref.Collection(collectionEdges), func(s *firestore.DocumentSnapshot) error {
		var e model.BubbleEdge
		if err := s.DataTo(&e); err != nil {
			return err
		}
		state.Edges = append(state.Edges, &e)
		return nil
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to load edges", goerr.V("id", id))
	}

	if err := forEach(ctx, ref.Collection(collectionRuns), func(s *firestore.DocumentSnapshot) error {
		var run model.PipelineRun
		if err := s.DataTo(&run); err != nil {
			return err
		}
		state.Runs = append(state.Runs, &run)
		return nil
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to load runs", goerr.V("id", id))
	}

	return state, nil
}

func forEach(ctx context.Context, col *firestore.CollectionRef, fn func(*firestore.DocumentSnapshot) error) error {
	iter := col.Documents(ctx)
	defer iter.Stop()

	for {
		snapshot, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(snapshot); err != nil {
			return err
		}
	}
}

func (r *Firestore) PutComment(ctx context.Context, comment *model.Comment) error {
	doc := r.conversation(comment.ConversationID).Collection(collectionComments).Doc(string(comment.ID))
	if _, err := doc.Set(ctx, comment); err != nil {
		return goerr.Wrap(err, "failed to put comment", goerr.V("id", comment.ID))
	}
	return nil
}

func (r *Firestore) DeleteComment(ctx context.Context, convID model.ConversationID, id model.CommentID) error {
	doc := r.conversation(convID).Collection(collectionComments).Doc(string(id))
	if _, err := doc.Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete comment", goerr.V("id", id))
	}
	return nil
}

func (r *Firestore) PutBubble(ctx context.Context, bubble *model.Bubble) error {
	doc := r.conversation(bubble.ConversationID).Collection(collectionBubbles).Doc(string(bubble.ID))
	if _, err := doc.Set(ctx, bubble); err != nil {
		return goerr.Wrap(err, "failed to put bubble", goerr.V("id", bubble.ID))
	}
	return nil
}

func (r *Firestore) PutVersion(ctx context.Context, version *model.BubbleVersion) error {
	doc := r.conversation(version.ConversationID).Collection(collectionVersions).Doc(string(version.ID))
	if _, err := doc.Set(ctx, version); err != nil {
		return goerr.Wrap(err, "failed to put bubble version", goerr.V("id", version.ID))
	}
	return nil
}

func (r *Firestore) PutEdge(ctx context.Context, edge *model.BubbleEdge) error {
	doc := r.conversation(edge.ConversationID).Collection(collectionEdges).Doc(string(edge.ID))
	if _, err := doc.Set(ctx, edge); err != nil {
		return goerr.Wrap(err, "failed to put edge", goerr.V("id", edge.ID))
	}
	return nil
}

func (r *Firestore) PutRun(ctx context.Context, run *model.PipelineRun) error {
	doc := r.conversation(run.ConversationID).Collection(collectionRuns).Doc(string(run.ID))
	if _, err := doc.Set(ctx, run); err != nil {
		return goerr.Wrap(err, "failed to put run", goerr.V("id", run.ID))
	}
	return nil
}

func (r *Firestore) SetNextLane(ctx context.Context, id model.ConversationID, nextLane int) error {
	doc := r.conversation(id)
	if _, err := doc.Update(ctx, []firestore.Update{{Path: "next_lane", Value: nextLane}}); err != nil {
		return goerr.Wrap(err, "failed to set next lane", goerr.V("id", id))
	}
	return nil
}

func (r *Firestore) DeactivateBubble(ctx context.Context, convID model.ConversationID, id model.BubbleID) error {
	doc := r.conversation(convID).Collection(collectionBubbles).Doc(string(id))
	if _, err := doc.Update(ctx, []firestore.Update{{Path: "is_active", Value: false}}); err != nil {
		return goerr.Wrap(err, "failed to deactivate bubble", goerr.V("id", id))
	}
	return nil
}
