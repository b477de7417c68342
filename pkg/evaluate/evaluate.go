package evaluate

import (
	"fmt"
	"math"
	"sort"

	"github.com/m-mizutani/bubbly/pkg/model"
	"github.com/m-mizutani/bubbly/pkg/utils/vector"
)

const (
	auditTextLimit    = 200
	analysisTextLimit = 100
	maxAlternatives   = 5
	maxMergeCandidates = 3
	maxSplitCandidates = 3
)

// AlternativeBubble is a rejected candidate in a clustering decision, ranked
// by similarity.
type AlternativeBubble struct {
	BubbleID   model.BubbleID `json:"bubble_id" firestore:"bubble_id"`
	Similarity float64        `json:"similarity" firestore:"similarity"`
	Label      string         `json:"label" firestore:"label"`
}

// DecisionAudit replays one clustering decision: the similarity to the
// assigned version's centroid, the ranked alternatives, and a human-readable
// explanation of the margins.
type DecisionAudit struct {
	CommentID        model.CommentID     `json:"comment_id" firestore:"comment_id"`
	CommentText      string              `json:"comment_text" firestore:"comment_text"`
	AssignedBubbleID model.BubbleID      `json:"assigned_bubble_id" firestore:"assigned_bubble_id"`
	Similarity       float64             `json:"similarity_score" firestore:"similarity_score"`
	Threshold        float64             `json:"threshold" firestore:"threshold"`
	CreatedNewBubble bool                `json:"created_new_bubble" firestore:"created_new_bubble"`
	Alternatives     []AlternativeBubble `json:"alternative_bubbles" firestore:"alternative_bubbles"`
	Reasoning        string              `json:"reasoning" firestore:"reasoning"`
}

// MergeCandidate is another active bubble similar enough to consider merging.
type MergeCandidate struct {
	BubbleID   model.BubbleID `json:"bubble_id" firestore:"bubble_id"`
	Similarity float64        `json:"similarity" firestore:"similarity"`
	Label      string         `json:"label" firestore:"label"`
}

// SplitCandidate is an intra-bubble comment pair dissimilar enough to
// consider splitting.
type SplitCandidate struct {
	FirstCommentID  model.CommentID `json:"first_comment_id" firestore:"first_comment_id"`
	SecondCommentID model.CommentID `json:"second_comment_id" firestore:"second_comment_id"`
	Similarity      float64         `json:"similarity" firestore:"similarity"`
}

// BubbleAnalysis is the per-bubble quality diagnostic over its latest
// version.
type BubbleAnalysis struct {
	BubbleID               model.BubbleID   `json:"bubble_id" firestore:"bubble_id"`
	Label                  string           `json:"label" firestore:"label"`
	Size                   int              `json:"size" firestore:"size"`
	Cohesion               float64          `json:"cohesion" firestore:"cohesion"`
	AvgSimilarityToCentroid float64         `json:"avg_similarity_to_centroid" firestore:"avg_similarity_to_centroid"`
	MinSimilarity          float64          `json:"min_similarity" firestore:"min_similarity"`
	MaxSimilarity          float64          `json:"max_similarity" firestore:"max_similarity"`
	CommentTexts           []string         `json:"comment_texts" firestore:"comment_texts"`
	RepresentativeComments []string         `json:"representative_comments" firestore:"representative_comments"`
	PotentialMerges        []MergeCandidate `json:"potential_merges" firestore:"potential_merges"`
	PotentialSplits        []SplitCandidate `json:"potential_splits" firestore:"potential_splits"`
	Issues                 []string         `json:"issues" firestore:"issues"`
}

// ThresholdSuggestion is a proposed assignment threshold with its rationale.
type ThresholdSuggestion struct {
	Threshold float64 `json:"threshold" firestore:"threshold"`
	Reasoning string  `json:"reasoning" firestore:"reasoning"`
}

// ThresholdAnalysis partitions centroid similarities over the full version
// history into same-bubble and different-bubble sets. Superseded versions are
// compared too, so chains contribute multiple pairs.
type ThresholdAnalysis struct {
	CurrentThreshold          float64               `json:"current_threshold" firestore:"current_threshold"`
	AvgIntraBubbleSimilarity  float64               `json:"avg_intra_bubble_similarity" firestore:"avg_intra_bubble_similarity"`
	AvgInterBubbleSimilarity  float64               `json:"avg_inter_bubble_similarity" firestore:"avg_inter_bubble_similarity"`
	MinIntraBubbleSimilarity  float64               `json:"min_intra_bubble_similarity" firestore:"min_intra_bubble_similarity"`
	MaxInterBubbleSimilarity  float64               `json:"max_inter_bubble_similarity" firestore:"max_inter_bubble_similarity"`
	SuggestedThresholds       []ThresholdSuggestion `json:"suggested_thresholds" firestore:"suggested_thresholds"`
}

// MetricsSummary is the quick-overview subset of the full metrics.
type MetricsSummary struct {
	NumBubbles           int     `json:"num_bubbles" firestore:"num_bubbles"`
	NumComments          int     `json:"num_comments" firestore:"num_comments"`
	AvgCommentsPerBubble float64 `json:"avg_comments_per_bubble" firestore:"avg_comments_per_bubble"`
	SilhouetteScore      float64 `json:"silhouette_score" firestore:"silhouette_score"`
	Cohesion             float64 `json:"cohesion" firestore:"cohesion"`
	Separation           float64 `json:"separation" firestore:"separation"`
	LabelUniqueness      float64 `json:"label_uniqueness" firestore:"label_uniqueness"`
	AvgConfidence        float64 `json:"avg_confidence" firestore:"avg_confidence"`
}

// Report is the full evaluation output for one snapshot.
type Report struct {
	Decisions       []DecisionAudit   `json:"clustering_decisions" firestore:"clustering_decisions"`
	Bubbles         []BubbleAnalysis  `json:"bubble_analyses" firestore:"bubble_analyses"`
	Threshold       ThresholdAnalysis `json:"threshold_analysis" firestore:"threshold_analysis"`
	Recommendations []string          `json:"recommendations" firestore:"recommendations"`
	Summary         MetricsSummary    `json:"metrics_summary" firestore:"metrics_summary"`
	Metrics         MetricsReport     `json:"metrics" firestore:"metrics"`
}

// Evaluator analyzes a conversation snapshot against an assignment threshold.
// It is read-only and side-effect free; callers hand it a Snapshot when other
// writers may be active.
type Evaluator struct {
	threshold float64
}

// New creates an Evaluator for the given assignment threshold.
func New(threshold float64) *Evaluator {
	return &Evaluator{threshold: threshold}
}

// Evaluate produces the full report for the snapshot.
func (x *Evaluator) Evaluate(state *model.ConversationState) *Report {
	decisions := x.auditDecisions(state)
	analyses := x.analyzeBubbles(state)
	threshold := x.analyzeThreshold(state)
	metrics := ComputeMetrics(state)

	return &Report{
		Decisions:       decisions,
		Bubbles:         analyses,
		Threshold:       threshold,
		Recommendations: x.recommend(decisions, analyses, threshold),
		Summary: MetricsSummary{
			NumBubbles:           metrics.Clustering.NumBubbles,
			NumComments:          metrics.Clustering.NumComments,
			AvgCommentsPerBubble: metrics.Clustering.AvgCommentsPerBubble,
			SilhouetteScore:      metrics.Clustering.SilhouetteScore,
			Cohesion:             metrics.Clustering.IntraClusterCohesion,
			Separation:           metrics.Clustering.InterClusterSeparation,
			LabelUniqueness:      metrics.Labeling.LabelUniqueness,
			AvgConfidence:        metrics.Labeling.AvgConfidence,
		},
		Metrics: metrics,
	}
}

// auditDecisions replays every assignment. Whether the decision created a new
// bubble is read from the pipeline run record when one exists.
func (x *Evaluator) auditDecisions(state *model.ConversationState) []DecisionAudit {
	createdNew := map[model.CommentID]bool{}
	for _, run := range state.Runs {
		createdNew[run.CommentID] = run.Decision.CreatedNewBubble
	}

	var audits []DecisionAudit
	for _, comment := range state.SortedComments() {
		if comment.AssignedBubbleID == "" {
			continue
		}
		assigned, ok := state.Versions[comment.AssignedVersionID]
		if !ok {
			continue
		}

		similarity := vector.Cosine(comment.Embedding.Vector, assigned.Centroid.Vector)
		alternatives := x.rankAlternatives(comment, state)

		audits = append(audits, DecisionAudit{
			CommentID:        comment.ID,
			CommentText:      truncate(comment.Text, auditTextLimit),
			AssignedBubbleID: comment.AssignedBubbleID,
			Similarity:       similarity,
			Threshold:        x.threshold,
			CreatedNewBubble: createdNew[comment.ID],
			Alternatives:     alternatives,
			Reasoning:        x.explainDecision(similarity, createdNew[comment.ID], alternatives),
		})
	}
	return audits
}

// rankAlternatives scores the comment against every other active bubble's
// latest centroid, best first.
func (x *Evaluator) rankAlternatives(comment *model.Comment, state *model.ConversationState) []AlternativeBubble {
	var alternatives []AlternativeBubble
	for _, bubble := range state.SortedBubbles() {
		if bubble.ID == comment.AssignedBubbleID || !bubble.Active {
			continue
		}
		bv, ok := state.Versions[bubble.LatestVersionID]
		if !ok {
			continue
		}
		alternatives = append(alternatives, AlternativeBubble{
			BubbleID:   bubble.ID,
			Similarity: vector.Cosine(comment.Embedding.Vector, bv.Centroid.Vector),
			Label:      bv.Label,
		})
	}

	sort.SliceStable(alternatives, func(i, j int) bool {
		return alternatives[i].Similarity > alternatives[j].Similarity
	})
	if len(alternatives) > maxAlternatives {
		alternatives = alternatives[:maxAlternatives]
	}
	return alternatives
}

func (x *Evaluator) explainDecision(similarity float64, createdNew bool, alternatives []AlternativeBubble) string {
	if createdNew {
		if len(alternatives) > 0 {
			best := alternatives[0]
			return fmt.Sprintf("Created new bubble. Best alternative was '%s' with similarity %.3f (below threshold %.3f)",
				best.Label, best.Similarity, x.threshold)
		}
		return "Created new bubble (first comment or no suitable matches)"
	}

	margin := similarity - x.threshold
	if len(alternatives) > 0 {
		best := alternatives[0]
		return fmt.Sprintf("Assigned to bubble with similarity %.3f (threshold: %.3f, margin: %.3f). Next best: '%s' at %.3f (margin: %.3f)",
			similarity, x.threshold, margin, best.Label, best.Similarity, similarity-best.Similarity)
	}
	return fmt.Sprintf("Assigned to bubble with similarity %.3f (threshold: %.3f, margin: %.3f)",
		similarity, x.threshold, margin)
}

// analyzeBubbles diagnoses each active bubble's latest version.
func (x *Evaluator) analyzeBubbles(state *model.ConversationState) []BubbleAnalysis {
	var analyses []BubbleAnalysis

	for _, bubble := range state.SortedBubbles() {
		if !bubble.Active {
			continue
		}
		bv, ok := state.Versions[bubble.LatestVersionID]
		if !ok {
			continue
		}

		members := memberVectors(bv, state.Comments)
		if len(members) == 0 {
			continue
		}

		toCentroid := make([]float64, 0, len(members))
		for _, emb := range members {
			toCentroid = append(toCentroid, vector.Cosine(emb, bv.Centroid.Vector))
		}
		minSim, maxSim, avgSim := toCentroid[0], toCentroid[0], 0.0
		for _, sim := range toCentroid {
			avgSim += sim
			if sim < minSim {
				minSim = sim
			}
			if sim > maxSim {
				maxSim = sim
			}
		}
		avgSim /= float64(len(toCentroid))

		cohesion, _ := meanPairwiseSimilarity(members)

		analysis := BubbleAnalysis{
			BubbleID:                bubble.ID,
			Label:                   bv.Label,
			Size:                    bv.Size(),
			Cohesion:                cohesion,
			AvgSimilarityToCentroid: avgSim,
			MinSimilarity:           minSim,
			MaxSimilarity:           maxSim,
			CommentTexts:            commentTexts(bv.CommentIDs, state.Comments),
			RepresentativeComments:  commentTexts(bv.RepresentativeIDs, state.Comments),
			PotentialMerges:         x.findMergeCandidates(bubble, bv, state),
			PotentialSplits:         x.findSplitCandidates(bv, state.Comments),
		}

		if cohesion < 0.5 {
			analysis.Issues = append(analysis.Issues,
				fmt.Sprintf("Low cohesion (%.2f) - comments may not belong together", cohesion))
		}
		if minSim < x.threshold*0.7 {
			analysis.Issues = append(analysis.Issues,
				fmt.Sprintf("Some comments have low similarity to centroid (%.2f)", minSim))
		}
		if len(analysis.PotentialMerges) > 0 {
			analysis.Issues = append(analysis.Issues,
				fmt.Sprintf("Potential merge candidates found: %d", len(analysis.PotentialMerges)))
		}
		if bv.Size() == 1 {
			analysis.Issues = append(analysis.Issues, "Single-comment bubble - consider merging")
		}

		analyses = append(analyses, analysis)
	}
	return analyses
}

// findMergeCandidates lists other active bubbles whose latest centroid is
// within 0.9x threshold of this bubble's, best first, capped.
func (x *Evaluator) findMergeCandidates(bubble *model.Bubble, bv *model.BubbleVersion, state *model.ConversationState) []MergeCandidate {
	var merges []MergeCandidate
	for _, other := range state.SortedBubbles() {
		if other.ID == bubble.ID || !other.Active {
			continue
		}
		otherBV, ok := state.Versions[other.LatestVersionID]
		if !ok {
			continue
		}
		sim := vector.Cosine(bv.Centroid.Vector, otherBV.Centroid.Vector)
		if sim >= x.threshold*0.9 {
			merges = append(merges, MergeCandidate{
				BubbleID:   other.ID,
				Similarity: sim,
				Label:      otherBV.Label,
			})
		}
	}

	sort.SliceStable(merges, func(i, j int) bool {
		return merges[i].Similarity > merges[j].Similarity
	})
	if len(merges) > maxMergeCandidates {
		merges = merges[:maxMergeCandidates]
	}
	return merges
}

// findSplitCandidates lists intra-bubble comment pairs whose similarity falls
// under 0.7x threshold, only for bubbles with more than two members.
func (x *Evaluator) findSplitCandidates(bv *model.BubbleVersion, comments map[model.CommentID]*model.Comment) []SplitCandidate {
	if bv.Size() <= 2 {
		return nil
	}

	var splits []SplitCandidate
	for i := 0; i < len(bv.CommentIDs); i++ {
		for j := i + 1; j < len(bv.CommentIDs); j++ {
			c1, ok1 := comments[bv.CommentIDs[i]]
			c2, ok2 := comments[bv.CommentIDs[j]]
			if !ok1 || !ok2 {
				continue
			}
			sim := vector.Cosine(c1.Embedding.Vector, c2.Embedding.Vector)
			if sim < x.threshold*0.7 {
				splits = append(splits, SplitCandidate{
					FirstCommentID:  c1.ID,
					SecondCommentID: c2.ID,
					Similarity:      sim,
				})
			}
		}
	}

	if len(splits) > maxSplitCandidates {
		splits = splits[:maxSplitCandidates]
	}
	return splits
}

// analyzeThreshold partitions centroid similarities over all version pairs
// into same-bubble and different-bubble sets and suggests the midpoint
// between the weakest intra and strongest inter similarity.
func (x *Evaluator) analyzeThreshold(state *model.ConversationState) ThresholdAnalysis {
	analysis := ThresholdAnalysis{CurrentThreshold: x.threshold}

	versions := state.SortedVersions()
	var intra, inter []float64
	for i := 0; i < len(versions); i++ {
		for j := 0; j < len(versions); j++ {
			if i == j {
				continue
			}
			sim := vector.Cosine(versions[i].Centroid.Vector, versions[j].Centroid.Vector)
			if versions[i].BubbleID == versions[j].BubbleID {
				intra = append(intra, sim)
			} else {
				inter = append(inter, sim)
			}
		}
	}

	if len(intra) > 0 {
		analysis.AvgIntraBubbleSimilarity = mean(intra)
		analysis.MinIntraBubbleSimilarity = minOf(intra)
	}
	if len(inter) > 0 {
		analysis.AvgInterBubbleSimilarity = mean(inter)
		analysis.MaxInterBubbleSimilarity = maxOf(inter)
	}

	if len(intra) > 0 && len(inter) > 0 {
		minIntra := analysis.MinIntraBubbleSimilarity
		maxInter := analysis.MaxInterBubbleSimilarity
		analysis.SuggestedThresholds = append(analysis.SuggestedThresholds, ThresholdSuggestion{
			Threshold: (minIntra + maxInter) / 2.0,
			Reasoning: fmt.Sprintf("Optimal separation point between intra-cluster (%.3f) and inter-cluster (%.3f) similarities",
				minIntra, maxInter),
		})
	}

	return analysis
}

// recommend synthesizes the textual recommendations from the audit,
// per-bubble and threshold results.
func (x *Evaluator) recommend(decisions []DecisionAudit, analyses []BubbleAnalysis, threshold ThresholdAnalysis) []string {
	var recommendations []string

	singletons := 0
	lowCohesion := 0
	merges := 0
	for _, a := range analyses {
		if a.Size == 1 {
			singletons++
		}
		if a.Cohesion < 0.5 {
			lowCohesion++
		}
		merges += len(a.PotentialMerges)
	}

	if float64(singletons) > float64(len(analyses))*0.3 {
		recommendations = append(recommendations, fmt.Sprintf(
			"High number of single-comment bubbles (%d/%d). Consider lowering threshold from %.3f to encourage more merging.",
			singletons, len(analyses), x.threshold))
	}
	if lowCohesion > 0 {
		recommendations = append(recommendations, fmt.Sprintf(
			"%d bubbles have low cohesion (<0.5). These may contain unrelated comments and could benefit from splitting.",
			lowCohesion))
	}
	if merges > 0 {
		recommendations = append(recommendations, fmt.Sprintf(
			"Found %d potential merge opportunities. Consider reviewing these bubbles for consolidation.", merges))
	}
	if len(threshold.SuggestedThresholds) > 0 {
		suggested := threshold.SuggestedThresholds[0].Threshold
		if math.Abs(suggested-x.threshold) > 0.05 {
			recommendations = append(recommendations, fmt.Sprintf(
				"Consider adjusting threshold from %.3f to %.3f for better separation between clusters.",
				x.threshold, suggested))
		}
	}

	closeCalls := 0
	for _, d := range decisions {
		if math.Abs(d.Similarity-d.Threshold) < 0.05 {
			closeCalls++
		}
	}
	if float64(closeCalls) > float64(len(decisions))*0.2 {
		recommendations = append(recommendations, fmt.Sprintf(
			"Many decisions (%d) are close to threshold. System may be sensitive to small embedding variations.",
			closeCalls))
	}

	return recommendations
}

func commentTexts(ids []model.CommentID, comments map[model.CommentID]*model.Comment) []string {
	texts := make([]string, 0, len(ids))
	for _, cid := range ids {
		if c, ok := comments[cid]; ok {
			texts = append(texts, truncate(c.Text, analysisTextLimit))
		}
	}
	return texts
}

func truncate(text string, limit int) string {
	if len(text) > limit {
		return text[:limit]
	}
	return text
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}
