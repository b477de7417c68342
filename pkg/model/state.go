package model

import (
	"math"
	"sort"
)

// ConversationState is the live session object for one conversation. Every
// clustering decision depends on the cumulative state left by prior
// decisions, so mutations for the same conversation must be strictly
// sequential; the repository owning the state is responsible for
// serialization. Readers that may run concurrently with writes must work on
// a Snapshot.
type ConversationState struct {
	Conversation *Conversation
	Comments     map[CommentID]*Comment
	Bubbles      map[BubbleID]*Bubble
	Versions     map[BubbleVersionID]*BubbleVersion
	Edges        []*BubbleEdge
	Runs         []*PipelineRun

	// NextLane is the strictly increasing lane counter for new bubbles.
	NextLane int
}

// NewConversationState creates an empty state for the conversation.
func NewConversationState(conv *Conversation) *ConversationState {
	return &ConversationState{
		Conversation: conv,
		Comments:     map[CommentID]*Comment{},
		Bubbles:      map[BubbleID]*Bubble{},
		Versions:     map[BubbleVersionID]*BubbleVersion{},
	}
}

// SortedComments returns comments ordered by creation time, then ID for a
// stable order on equal timestamps.
func (s *ConversationState) SortedComments() []*Comment {
	comments := make([]*Comment, 0, len(s.Comments))
	for _, c := range s.Comments {
		comments = append(comments, c)
	}
	sort.Slice(comments, func(i, j int) bool {
		if !comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].CreatedAt.Before(comments[j].CreatedAt)
		}
		return comments[i].ID < comments[j].ID
	})
	return comments
}

// SortedBubbles returns bubbles in lane order, which is creation order.
func (s *ConversationState) SortedBubbles() []*Bubble {
	bubbles := make([]*Bubble, 0, len(s.Bubbles))
	for _, b := range s.Bubbles {
		bubbles = append(bubbles, b)
	}
	sort.Slice(bubbles, func(i, j int) bool {
		return bubbles[i].Lane < bubbles[j].Lane
	})
	return bubbles
}

// SortedVersions returns bubble versions ordered by creation time, then ID.
func (s *ConversationState) SortedVersions() []*BubbleVersion {
	versions := make([]*BubbleVersion, 0, len(s.Versions))
	for _, v := range s.Versions {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool {
		if !versions[i].CreatedAt.Equal(versions[j].CreatedAt) {
			return versions[i].CreatedAt.Before(versions[j].CreatedAt)
		}
		return versions[i].ID < versions[j].ID
	})
	return versions
}

// LatestVersions returns the latest version of each bubble, in lane order.
// Bubbles without a version yet are skipped.
func (s *ConversationState) LatestVersions() []*BubbleVersion {
	var versions []*BubbleVersion
	for _, b := range s.SortedBubbles() {
		if v, ok := s.Versions[b.LatestVersionID]; ok {
			versions = append(versions, v)
		}
	}
	return versions
}

// Snapshot returns a deep copy of the state for read-only consumers such as
// the evaluation engine, so their reads cannot tear against an in-flight
// write.
func (s *ConversationState) Snapshot() *ConversationState {
	snap := &ConversationState{
		Comments: make(map[CommentID]*Comment, len(s.Comments)),
		Bubbles:  make(map[BubbleID]*Bubble, len(s.Bubbles)),
		Versions: make(map[BubbleVersionID]*BubbleVersion, len(s.Versions)),
		Edges:    make([]*BubbleEdge, 0, len(s.Edges)),
		Runs:     make([]*PipelineRun, 0, len(s.Runs)),
		NextLane: s.NextLane,
	}

	if s.Conversation != nil {
		conv := *s.Conversation
		snap.Conversation = &conv
	}
	for id, c := range s.Comments {
		cc := *c
		cc.Embedding.Vector = append([]float64(nil), c.Embedding.Vector...)
		snap.Comments[id] = &cc
	}
	for id, b := range s.Bubbles {
		bb := *b
		snap.Bubbles[id] = &bb
	}
	for id, v := range s.Versions {
		vv := *v
		vv.CommentIDs = append([]CommentID(nil), v.CommentIDs...)
		vv.RepresentativeIDs = append([]CommentID(nil), v.RepresentativeIDs...)
		vv.Centroid.Vector = append([]float64(nil), v.Centroid.Vector...)
		snap.Versions[id] = &vv
	}
	for _, e := range s.Edges {
		ee := *e
		snap.Edges = append(snap.Edges, &ee)
	}
	for _, r := range s.Runs {
		rr := *r
		rr.Labeler.RepresentativeIDs = append([]CommentID(nil), r.Labeler.RepresentativeIDs...)
		snap.Runs = append(snap.Runs, &rr)
	}

	return snap
}

// Position is a display hint for one bubble version: its bubble's lane, a
// time coordinate (index of the newest member) and a size proportional to
// sqrt of the member count.
type Position struct {
	Lane int     `json:"lane"`
	T    float64 `json:"t"`
	Size float64 `json:"size"`
}

// Layout computes display positions for all bubble versions.
func (s *ConversationState) Layout() map[BubbleVersionID]Position {
	comments := s.SortedComments()
	index := make(map[CommentID]int, len(comments))
	for i, c := range comments {
		index[c.ID] = i
	}

	positions := make(map[BubbleVersionID]Position, len(s.Versions))
	for _, v := range s.SortedVersions() {
		t := 0.0
		for _, cid := range v.CommentIDs {
			if i, ok := index[cid]; ok && float64(i) > t {
				t = float64(i)
			}
		}

		lane := 0
		if b, ok := s.Bubbles[v.BubbleID]; ok {
			lane = b.Lane
		}

		size := 1.0
		if len(v.CommentIDs) > 0 {
			size = math.Sqrt(float64(len(v.CommentIDs)))
		}

		positions[v.ID] = Position{Lane: lane, T: t, Size: size}
	}
	return positions
}
