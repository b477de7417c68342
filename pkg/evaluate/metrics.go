// Package evaluate is the read-only metrics and diagnostics engine. It
// operates on a consistent snapshot of one conversation's state and degrades
// to zero-valued results on insufficient input instead of failing.
package evaluate

import (
	"math"
	"time"

	"github.com/m-mizutani/bubbly/pkg/model"
	"github.com/m-mizutani/bubbly/pkg/utils/vector"
)

// ClusteringMetrics summarizes clustering quality over the latest version of
// each bubble.
type ClusteringMetrics struct {
	NumBubbles                 int     `json:"num_bubbles" firestore:"num_bubbles"`
	NumComments                int     `json:"num_comments" firestore:"num_comments"`
	AvgCommentsPerBubble       float64 `json:"avg_comments_per_bubble" firestore:"avg_comments_per_bubble"`
	MaxCommentsPerBubble       int     `json:"max_comments_per_bubble" firestore:"max_comments_per_bubble"`
	MinCommentsPerBubble       int     `json:"min_comments_per_bubble" firestore:"min_comments_per_bubble"`
	BubbleSizeStd              float64 `json:"bubble_size_std" firestore:"bubble_size_std"`
	SilhouetteScore            float64 `json:"silhouette_score" firestore:"silhouette_score"`
	IntraClusterCohesion       float64 `json:"intra_cluster_cohesion" firestore:"intra_cluster_cohesion"`
	InterClusterSeparation     float64 `json:"inter_cluster_separation" firestore:"inter_cluster_separation"`
	CommentDistributionEntropy float64 `json:"comment_distribution_entropy" firestore:"comment_distribution_entropy"`
}

// LabelMetrics summarizes label quality over the full version history.
type LabelMetrics struct {
	AvgLabelLength         float64 `json:"avg_label_length" firestore:"avg_label_length"`
	AvgEssenceLength       float64 `json:"avg_essence_length" firestore:"avg_essence_length"`
	AvgConfidence          float64 `json:"avg_confidence" firestore:"avg_confidence"`
	LabelUniqueness        float64 `json:"label_uniqueness" firestore:"label_uniqueness"`
	RepresentativeCoverage float64 `json:"representative_coverage" firestore:"representative_coverage"`
}

// TemporalMetrics summarizes how bubbles evolve over time.
type TemporalMetrics struct {
	BubbleCreationRate float64 `json:"bubble_creation_rate" firestore:"bubble_creation_rate"`
	AvgBubbleLifetime  float64 `json:"avg_bubble_lifetime" firestore:"avg_bubble_lifetime"`
	BubbleStability    float64 `json:"bubble_stability" firestore:"bubble_stability"`
	TemporalCoherence  float64 `json:"temporal_coherence" firestore:"temporal_coherence"`
}

// MetricsReport bundles all metric groups for one snapshot.
type MetricsReport struct {
	Clustering  ClusteringMetrics `json:"clustering" firestore:"clustering"`
	Labeling    LabelMetrics      `json:"labeling" firestore:"labeling"`
	Temporal    TemporalMetrics   `json:"temporal" firestore:"temporal"`
	GeneratedAt time.Time         `json:"generated_at" firestore:"generated_at"`
}

// ComputeMetrics calculates all metric groups for the snapshot.
func ComputeMetrics(state *model.ConversationState) MetricsReport {
	return MetricsReport{
		Clustering:  ComputeClusteringMetrics(state),
		Labeling:    ComputeLabelMetrics(state),
		Temporal:    ComputeTemporalMetrics(state),
		GeneratedAt: time.Now(),
	}
}

// ComputeClusteringMetrics calculates clustering quality metrics. Bubble size
// statistics, entropy, cohesion and the silhouette score are taken over each
// bubble's latest version; separation covers the full version history so
// superseded centroids contribute too.
func ComputeClusteringMetrics(state *model.ConversationState) ClusteringMetrics {
	m := ClusteringMetrics{
		NumBubbles:  len(state.Bubbles),
		NumComments: len(state.Comments),
	}
	if m.NumComments == 0 {
		return ClusteringMetrics{}
	}

	latest := state.LatestVersions()
	sizes := make([]int, 0, len(latest))
	for _, v := range latest {
		sizes = append(sizes, v.Size())
	}

	if len(sizes) > 0 {
		total := 0
		m.MaxCommentsPerBubble = sizes[0]
		m.MinCommentsPerBubble = sizes[0]
		for _, size := range sizes {
			total += size
			if size > m.MaxCommentsPerBubble {
				m.MaxCommentsPerBubble = size
			}
			if size < m.MinCommentsPerBubble {
				m.MinCommentsPerBubble = size
			}
		}
		m.AvgCommentsPerBubble = float64(total) / float64(len(sizes))

		var variance float64
		for _, size := range sizes {
			d := float64(size) - m.AvgCommentsPerBubble
			variance += d * d
		}
		m.BubbleSizeStd = math.Sqrt(variance / float64(len(sizes)))
		m.CommentDistributionEntropy = distributionEntropy(sizes, total)
	}

	m.SilhouetteScore = silhouetteScore(latest, state.Comments)
	m.IntraClusterCohesion = intraClusterCohesion(latest, state.Comments)
	m.InterClusterSeparation = interClusterSeparation(state.SortedVersions())

	return m
}

// distributionEntropy is the base-2 Shannon entropy of the size distribution:
// 0.0 when one bubble holds everything, log2(N) for N singletons.
func distributionEntropy(sizes []int, total int) float64 {
	if total == 0 {
		return 0.0
	}
	var entropy float64
	for _, size := range sizes {
		if size > 0 {
			p := float64(size) / float64(total)
			entropy -= p * math.Log2(p)
		}
	}
	return entropy
}

// silhouetteScore averages a per-comment score where a is the mean similarity
// to same-bubble peers and b is the minimum of the per-other-bubble mean
// similarities. Using the minimum rewards distance from the least similar
// other cluster; keep it this way, changing it to the textbook nearest-cluster
// form changes the metric's meaning.
func silhouetteScore(latest []*model.BubbleVersion, comments map[model.CommentID]*model.Comment) float64 {
	if len(latest) < 2 {
		return 0.0
	}

	var sum float64
	count := 0

	for _, bv := range latest {
		members := memberVectors(bv, comments)
		for i, emb := range members {
			var a float64
			if len(members) > 1 {
				var total float64
				for j, peer := range members {
					if j == i {
						continue
					}
					total += vector.Cosine(emb, peer)
				}
				a = total / float64(len(members)-1)
			}

			b := math.Inf(1)
			for _, other := range latest {
				if other.ID == bv.ID || other.Size() == 0 {
					continue
				}
				otherMembers := memberVectors(other, comments)
				if len(otherMembers) == 0 {
					continue
				}
				var total float64
				for _, otherEmb := range otherMembers {
					total += vector.Cosine(emb, otherEmb)
				}
				if avg := total / float64(len(otherMembers)); avg < b {
					b = avg
				}
			}
			if math.IsInf(b, 1) {
				b = 0.0
			}

			if denom := math.Max(a, b); denom > 0 {
				sum += (b - a) / denom
				count++
			}
		}
	}

	if count == 0 {
		return 0.0
	}
	return sum / float64(count)
}

// intraClusterCohesion averages, over bubbles with at least two members, the
// mean pairwise similarity among members.
func intraClusterCohesion(latest []*model.BubbleVersion, comments map[model.CommentID]*model.Comment) float64 {
	var sum float64
	count := 0

	for _, bv := range latest {
		members := memberVectors(bv, comments)
		if cohesion, ok := meanPairwiseSimilarity(members); ok {
			sum += cohesion
			count++
		}
	}

	if count == 0 {
		return 0.0
	}
	return sum / float64(count)
}

// interClusterSeparation averages 1 - similarity over all version pairs.
func interClusterSeparation(versions []*model.BubbleVersion) float64 {
	if len(versions) < 2 {
		return 0.0
	}

	var sum float64
	count := 0
	for i := 0; i < len(versions); i++ {
		for j := i + 1; j < len(versions); j++ {
			if len(versions[i].Centroid.Vector) == 0 || len(versions[j].Centroid.Vector) == 0 {
				continue
			}
			sum += 1.0 - vector.Cosine(versions[i].Centroid.Vector, versions[j].Centroid.Vector)
			count++
		}
	}

	if count == 0 {
		return 0.0
	}
	return sum / float64(count)
}

// ComputeLabelMetrics calculates label quality metrics over all versions.
func ComputeLabelMetrics(state *model.ConversationState) LabelMetrics {
	versions := state.SortedVersions()
	if len(versions) == 0 {
		return LabelMetrics{}
	}

	var m LabelMetrics
	var labelLen, essenceLen, confidence float64
	labels := 0
	essences := 0
	seen := map[string]bool{}
	totalReps := 0
	totalMembers := 0

	for _, v := range versions {
		if v.Label != "" {
			labelLen += float64(len(v.Label))
			labels++
			seen[v.Label] = true
		}
		if v.Essence != "" {
			essenceLen += float64(len(v.Essence))
			essences++
		}
		confidence += v.Confidence
		totalReps += len(v.RepresentativeIDs)
		totalMembers += v.Size()
	}

	if labels > 0 {
		m.AvgLabelLength = labelLen / float64(labels)
		m.LabelUniqueness = float64(len(seen)) / float64(labels)
	}
	if essences > 0 {
		m.AvgEssenceLength = essenceLen / float64(essences)
	}
	m.AvgConfidence = confidence / float64(len(versions))
	if totalMembers > 0 {
		m.RepresentativeCoverage = float64(totalReps) / float64(totalMembers)
	}

	return m
}

// ComputeTemporalMetrics calculates temporal evolution metrics. Creation rate
// and lifetime cover the full version history; coherence covers each bubble's
// latest membership.
func ComputeTemporalMetrics(state *model.ConversationState) TemporalMetrics {
	versions := state.SortedVersions()
	if len(versions) < 2 {
		return TemporalMetrics{}
	}

	var m TemporalMetrics

	span := versions[len(versions)-1].CreatedAt.Sub(versions[0].CreatedAt).Seconds()
	if span > 0 {
		m.BubbleCreationRate = float64(len(versions)) / span
	}

	byBubble := map[model.BubbleID][]*model.BubbleVersion{}
	for _, v := range versions {
		byBubble[v.BubbleID] = append(byBubble[v.BubbleID], v)
	}

	var lifetime float64
	lived := 0
	for _, chain := range byBubble {
		if len(chain) < 2 {
			continue
		}
		lifetime += chain[len(chain)-1].CreatedAt.Sub(chain[0].CreatedAt).Seconds()
		lived++
	}
	if lived > 0 {
		m.AvgBubbleLifetime = lifetime / float64(lived)
	}

	if len(byBubble) > 0 {
		avgVersions := float64(len(versions)) / float64(len(byBubble))
		m.BubbleStability = math.Min(1.0, 1.0/avgVersions)
	}

	m.TemporalCoherence = temporalCoherence(state)

	return m
}

// temporalCoherence averages 1/(1+avgGapHours) over bubbles whose latest
// version has at least two members, where avgGapHours is the membership's
// time span divided by the gap count.
func temporalCoherence(state *model.ConversationState) float64 {
	var sum float64
	count := 0

	for _, bv := range state.LatestVersions() {
		var times []time.Time
		for _, cid := range bv.CommentIDs {
			if c, ok := state.Comments[cid]; ok {
				times = append(times, c.CreatedAt)
			}
		}
		if len(times) < 2 {
			continue
		}

		earliest, latest := times[0], times[0]
		for _, t := range times[1:] {
			if t.Before(earliest) {
				earliest = t
			}
			if t.After(latest) {
				latest = t
			}
		}
		avgGapHours := latest.Sub(earliest).Hours() / float64(len(times)-1)
		sum += 1.0 / (1.0 + avgGapHours)
		count++
	}

	if count == 0 {
		return 0.0
	}
	return sum / float64(count)
}

func memberVectors(bv *model.BubbleVersion, comments map[model.CommentID]*model.Comment) [][]float64 {
	vectors := make([][]float64, 0, len(bv.CommentIDs))
	for _, cid := range bv.CommentIDs {
		if c, ok := comments[cid]; ok {
			vectors = append(vectors, c.Embedding.Vector)
		}
	}
	return vectors
}

// meanPairwiseSimilarity returns the mean over unordered pairs, false when
// fewer than two vectors are given.
func meanPairwiseSimilarity(vectors [][]float64) (float64, bool) {
	if len(vectors) < 2 {
		return 0.0, false
	}

	var sum float64
	count := 0
	for i := 0; i < len(vectors); i++ {
		for j := i + 1; j < len(vectors); j++ {
			sum += vector.Cosine(vectors[i], vectors[j])
			count++
		}
	}
	return sum / float64(count), true
}
