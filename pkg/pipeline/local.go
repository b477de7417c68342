package pipeline

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/bubbly/pkg/model"
)

// LocalEmbedder is a deterministic feature-hashing embedder. Each token is
// hashed into one of dim buckets with a hash-derived sign and the result is
// L2-normalized. It has none of the semantic quality of a learned model but
// needs no network access, which makes it the offline backend for tests and
// the interactive demo.
type LocalEmbedder struct {
	modelName string
	dim       int
}

// NewLocalEmbedder creates a LocalEmbedder with the given dimension.
func NewLocalEmbedder(dim int) *LocalEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &LocalEmbedder{
		modelName: fmt.Sprintf("feature-hash-%d", dim),
		dim:       dim,
	}
}

func (e *LocalEmbedder) Dim() int          { return e.dim }
func (e *LocalEmbedder) ModelName() string { return e.modelName }

func (e *LocalEmbedder) Embed(ctx context.Context, text string) (model.Embedding, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Embedding{}, goerr.New("text must not be empty")
	}
	text = truncate(text, maxInputChars)

	vec := make([]float64, e.dim)
	for _, token := range tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dim))
		sign := 1.0
		if sum&(1<<63) != 0 {
			sign = -1.0
		}
		vec[idx] += sign
	}

	var norm float64
	for _, x := range vec {
		norm += x * x
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}

	return model.Embedding{
		Vector: vec,
		Dim:    e.dim,
		Model:  e.modelName,
		Hash:   model.SHA256(e.modelName + ":" + text),
	}, nil
}

func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]model.Embedding, error) {
	embeddings := make([]model.Embedding, 0, len(texts))
	for _, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, emb)
	}
	return embeddings, nil
}

var wordPattern = regexp.MustCompile(`[a-zA-Z]+`)

func tokenize(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}

var stopWords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(
		"the a an is are was were be been being have has had do does did " +
			"will would could should may might shall can need dare ought used " +
			"to of in for on with at by from as into through during before " +
			"after above below between out off over under again further then " +
			"once here there when where why how all both each few more most " +
			"other some such no nor not only own same so than too very just " +
			"because but and or if while it its i you he she we they me him " +
			"her us them my your his their this that these those what which " +
			"who whom am about up also really like get got much one dont even " +
			"still think know going went im ive thats thing things people way " +
			"make many well something anything") {
		stopWords[w] = true
	}
}

// LocalLabeler is an extractive labeler: the label is built from the most
// frequent non-stop-word keywords and the essence from the first sentence of
// the first representative comment.
type LocalLabeler struct {
	maxRepresentatives int
}

// NewLocalLabeler creates a LocalLabeler keeping at most max representative
// comments per version.
func NewLocalLabeler(max int) *LocalLabeler {
	if max <= 0 {
		max = 5
	}
	return &LocalLabeler{maxRepresentatives: max}
}

func (l *LocalLabeler) Mode() string { return "local" }

func (l *LocalLabeler) Label(ctx context.Context, version *model.BubbleVersion, comments map[model.CommentID]*model.Comment) LabelResult {
	members := make([]*model.Comment, 0, len(version.CommentIDs))
	for _, cid := range version.CommentIDs {
		if c, ok := comments[cid]; ok {
			members = append(members, c)
		}
	}
	if len(members) == 0 {
		return LabelResult{Label: "Miscellaneous", Essence: "No comments available."}
	}

	memberIDs := make([]model.CommentID, 0, len(members))
	var allText strings.Builder
	for _, c := range members {
		memberIDs = append(memberIDs, c.ID)
		allText.WriteString(c.Text)
		allText.WriteString(" ")
	}
	repIDs := chooseRepresentatives(memberIDs, l.maxRepresentatives)

	label := keywordLabel(allText.String())
	essence := firstSentence(comments[repIDs[0]].Text)

	return LabelResult{
		Label:             label,
		Essence:           essence,
		Confidence:        labelConfidence(len(version.CommentIDs)),
		RepresentativeIDs: repIDs,
	}
}

// keywordLabel joins the top three keywords by frequency, title-cased.
func keywordLabel(text string) string {
	counts := map[string]int{}
	for _, w := range tokenize(text) {
		if len(w) > 2 && !stopWords[w] {
			counts[w]++
		}
	}
	if len(counts) == 0 {
		return "Miscellaneous"
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > 3 {
		words = words[:3]
	}

	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " / ")
}

var sentencePattern = regexp.MustCompile(`[.!?]+`)

func firstSentence(text string) string {
	sentences := sentencePattern.Split(text, -1)
	if len(sentences) == 0 || strings.TrimSpace(sentences[0]) == "" {
		return "Various discussion topics."
	}
	s := strings.TrimSpace(sentences[0])
	if len(s) > 150 {
		s = s[:150]
	}
	return s + "..."
}

// Small sentiment lexicon for the offline voter; enough to separate clearly
// positive from clearly negative social-media style comments.
var (
	positiveWords = wordSet(
		"agree yes great good love like support right true exactly correct " +
			"awesome amazing helpful thanks thank best better glad happy nice " +
			"perfect excellent wonderful absolutely definitely")
	negativeWords = wordSet(
		"disagree no wrong bad hate dislike terrible awful worst worse false " +
			"stupid dumb horrible ridiculous nonsense never doubt sad angry " +
			"annoying useless broken fail failed disappointing")
)

func wordSet(words string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(words) {
		set[w] = true
	}
	return set
}

// LocalVoter scores comment sentiment against a fixed lexicon. A normalized
// score above +0.05 reads as agreement, below -0.05 as disagreement, and
// anything in between as pass.
type LocalVoter struct{}

// NewLocalVoter creates a LocalVoter.
func NewLocalVoter() *LocalVoter {
	return &LocalVoter{}
}

func (v *LocalVoter) Classify(ctx context.Context, title, body, text string) model.Vote {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return model.VotePass
	}

	var score float64
	for _, w := range tokens {
		switch {
		case positiveWords[w]:
			score++
		case negativeWords[w]:
			score--
		}
	}
	score /= float64(len(tokens))

	switch {
	case score > 0.05:
		return model.VoteAgree
	case score < -0.05:
		return model.VoteDisagree
	default:
		return model.VotePass
	}
}
