package evaluate_test

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/bubbly/pkg/evaluate"
	"github.com/m-mizutani/bubbly/pkg/model"
)

// addVersion inserts a version with a hand-set centroid, chained onto the
// bubble's latest.
func addVersion(state *model.ConversationState, bubble *model.Bubble, centroid []float64) *model.BubbleVersion {
	v := &model.BubbleVersion{
		ID:        model.NewBubbleVersionID(),
		BubbleID:  bubble.ID,
		CreatedAt: time.Now(),
		Centroid:  model.Embedding{Vector: centroid, Dim: len(centroid)},
	}
	state.Versions[v.ID] = v
	bubble.LatestVersionID = v.ID
	return v
}

func addEmptyBubble(state *model.ConversationState) *model.Bubble {
	bubble := &model.Bubble{
		ID:        model.NewBubbleID(),
		CreatedAt: time.Now(),
		Active:    true,
		Lane:      state.NextLane,
	}
	state.Bubbles[bubble.ID] = bubble
	state.NextLane++
	return bubble
}

func hasRecommendation(recs []string, substr string) bool {
	for _, r := range recs {
		if strings.Contains(r, substr) {
			return true
		}
	}
	return false
}

func TestLowCohesionRecommendation(t *testing.T) {
	evaluator := evaluate.New(0.58)

	t.Run("fires when a bubble has cohesion below half", func(t *testing.T) {
		state := newState()
		addBubble(state, [][]float64{{1, 0}, {0, 1}})

		report := evaluator.Evaluate(state)
		gt.A(t, report.Bubbles).Length(1)
		gt.Equal(t, report.Bubbles[0].Cohesion, 0.0)
		gt.True(t, hasRecommendation(report.Recommendations, "low cohesion"))
	})

	t.Run("silent when all bubbles are cohesive", func(t *testing.T) {
		state := newState()
		addBubble(state, [][]float64{{1, 0}, {1, 0}})

		report := evaluator.Evaluate(state)
		gt.Equal(t, report.Bubbles[0].Cohesion, 1.0)
		gt.False(t, hasRecommendation(report.Recommendations, "low cohesion"))
	})
}

func TestThresholdAnalysis(t *testing.T) {
	evaluator := evaluate.New(0.58)

	t.Run("suggests midpoint of weakest intra and strongest inter", func(t *testing.T) {
		state := newState()
		a := addEmptyBubble(state)
		b := addEmptyBubble(state)

		// Intra similarities 0.6 and ~0.70, inter at most 0.3, so the
		// suggestion is (0.6 + 0.3) / 2.
		addVersion(state, a, []float64{1, 0, 0})
		addVersion(state, a, []float64{0.6, 0.8, 0})
		addVersion(state, b, []float64{0.3, 0, math.Sqrt(0.91)})
		addVersion(state, b, []float64{0, -0.6794, 0.7338})

		report := evaluator.Evaluate(state)
		analysis := report.Threshold

		gt.Equal(t, analysis.CurrentThreshold, 0.58)
		gt.True(t, math.Abs(analysis.MinIntraBubbleSimilarity-0.6) < 1e-9)
		gt.True(t, math.Abs(analysis.MaxInterBubbleSimilarity-0.3) < 1e-9)

		gt.A(t, analysis.SuggestedThresholds).Length(1)
		gt.True(t, math.Abs(analysis.SuggestedThresholds[0].Threshold-0.45) < 1e-9)

		// 0.45 is more than 0.05 away from 0.58.
		gt.True(t, hasRecommendation(report.Recommendations, "adjusting threshold"))
	})

	t.Run("no suggestion without inter pairs", func(t *testing.T) {
		state := newState()
		a := addEmptyBubble(state)
		addVersion(state, a, []float64{1, 0, 0})
		addVersion(state, a, []float64{1, 0, 0})

		report := evaluator.Evaluate(state)
		gt.A(t, report.Threshold.SuggestedThresholds).Length(0)
	})

	t.Run("no suggestion without intra pairs", func(t *testing.T) {
		state := newState()
		addVersion(state, addEmptyBubble(state), []float64{1, 0, 0})
		addVersion(state, addEmptyBubble(state), []float64{0, 1, 0})

		report := evaluator.Evaluate(state)
		gt.A(t, report.Threshold.SuggestedThresholds).Length(0)
	})
}

func TestDecisionAudit(t *testing.T) {
	evaluator := evaluate.New(0.58)

	state := newState()
	b1 := addBubble(state, [][]float64{{1, 0}, {1, 0}})
	b2 := addBubble(state, [][]float64{{0, 1}})
	state.Versions[b1.LatestVersionID].Label = "First Topic"
	state.Versions[b2.LatestVersionID].Label = "Second Topic"

	var first model.CommentID
	for _, c := range state.SortedComments() {
		if c.AssignedBubbleID == b1.ID {
			first = c.ID
			break
		}
	}
	state.Runs = append(state.Runs, &model.PipelineRun{
		ID:        model.NewRunID(),
		CommentID: first,
		Decision: model.ClusterDecision{
			AssignedBubbleID: b1.ID,
			CreatedNewBubble: true,
		},
	})

	report := evaluator.Evaluate(state)
	gt.A(t, report.Decisions).Length(3)

	byComment := map[model.CommentID]evaluate.DecisionAudit{}
	for _, d := range report.Decisions {
		byComment[d.CommentID] = d
	}

	d := byComment[first]
	gt.True(t, d.CreatedNewBubble)
	gt.True(t, strings.Contains(d.Reasoning, "Created new bubble"))

	for _, c := range state.SortedComments() {
		d := byComment[c.ID]
		gt.Equal(t, d.AssignedBubbleID, c.AssignedBubbleID)
		gt.Equal(t, d.Threshold, 0.58)

		// The only alternative is the other bubble.
		gt.A(t, d.Alternatives).Length(1)
		gt.NotEqual(t, d.Alternatives[0].BubbleID, c.AssignedBubbleID)
		if c.AssignedBubbleID == b1.ID {
			gt.Equal(t, d.Similarity, 1.0)
			gt.Equal(t, d.Alternatives[0].Similarity, 0.0)
			gt.Equal(t, d.Alternatives[0].Label, "Second Topic")
		}
		if !d.CreatedNewBubble {
			gt.True(t, strings.Contains(d.Reasoning, "margin"))
		}
	}
}

func TestBubbleAnalysis(t *testing.T) {
	evaluator := evaluate.New(0.58)

	t.Run("singleton flagged", func(t *testing.T) {
		state := newState()
		addBubble(state, [][]float64{{1, 0}})

		report := evaluator.Evaluate(state)
		gt.A(t, report.Bubbles).Length(1)
		a := report.Bubbles[0]
		gt.Equal(t, a.Size, 1)
		gt.True(t, hasIssue(a.Issues, "Single-comment bubble"))
	})

	t.Run("merge candidates for near-identical bubbles", func(t *testing.T) {
		state := newState()
		addBubble(state, [][]float64{{1, 0}})
		addBubble(state, [][]float64{{1, 0.01}})

		report := evaluator.Evaluate(state)
		gt.A(t, report.Bubbles).Length(2)
		for _, a := range report.Bubbles {
			gt.A(t, a.PotentialMerges).Length(1)
		}
		gt.True(t, hasRecommendation(report.Recommendations, "merge opportunities"))
	})

	t.Run("split candidates for dissimilar members", func(t *testing.T) {
		state := newState()
		addBubble(state, [][]float64{{1, 0}, {0, 1}, {1, 1}})

		report := evaluator.Evaluate(state)
		a := report.Bubbles[0]

		// Only the orthogonal pair falls under 0.7x threshold.
		gt.A(t, a.PotentialSplits).Length(1)
		gt.Equal(t, a.PotentialSplits[0].Similarity, 0.0)
	})

	t.Run("no split scan for pairs", func(t *testing.T) {
		state := newState()
		addBubble(state, [][]float64{{1, 0}, {0, 1}})

		report := evaluator.Evaluate(state)
		gt.A(t, report.Bubbles[0].PotentialSplits).Length(0)
	})

	t.Run("inactive bubbles excluded", func(t *testing.T) {
		state := newState()
		b := addBubble(state, [][]float64{{1, 0}})
		b.Active = false

		report := evaluator.Evaluate(state)
		gt.A(t, report.Bubbles).Length(0)
	})
}

func hasIssue(issues []string, substr string) bool {
	for _, issue := range issues {
		if strings.Contains(issue, substr) {
			return true
		}
	}
	return false
}

func TestEvaluateEmptyState(t *testing.T) {
	report := evaluate.New(0.58).Evaluate(newState())
	gt.A(t, report.Decisions).Length(0)
	gt.A(t, report.Bubbles).Length(0)
	gt.A(t, report.Recommendations).Length(0)
	gt.Equal(t, report.Summary.NumBubbles, 0)
}
