// Package policy gates comment ingestion with Rego policies. Operators drop
// spam or off-platform content by policy instead of code changes.
package policy

import (
	"context"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/m-mizutani/bubbly/pkg/model"
)

// Gate evaluates the ingest policy for each incoming comment. A nil prepared
// query means no policy files were found and everything is allowed.
type Gate struct {
	ingest *rego.PreparedEvalQuery
}

// Decision is the policy verdict for one comment.
type Decision struct {
	Allow  bool
	Reason string
}

// Load reads all .rego files from policyDir and prepares the data.ingest
// query. An empty directory yields an allow-all gate.
func Load(ctx context.Context, policyDir string) (*Gate, error) {
	files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files")
	}
	if len(files) == 0 {
		return &Gate{}, nil
	}

	options := make([]func(*rego.Rego), 0, len(files)+1)
	options = append(options, rego.Query("data.ingest"))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.Value("path", file))
		}
		options = append(options, rego.Module(file, string(data)))
	}

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare ingest query")
	}

	return &Gate{ingest: &prepared}, nil
}

// NewAllowAll returns a gate that accepts every comment.
func NewAllowAll() *Gate {
	return &Gate{}
}

// Evaluate runs the ingest policy against the comment. Policies deny by
// setting `deny` (optionally with a `reason` string); anything else is
// allowed.
func (g *Gate) Evaluate(ctx context.Context, comment *model.Comment) (*Decision, error) {
	if g.ingest == nil {
		return &Decision{Allow: true}, nil
	}

	input := map[string]any{
		"id":              string(comment.ID),
		"conversation_id": string(comment.ConversationID),
		"text":            comment.Text,
		"author_id":       comment.Author.ID,
		"created_at":      comment.CreatedAt,
	}

	rs, err := g.ingest.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate ingest policy", goerr.V("comment_id", comment.ID))
	}

	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return &Decision{Allow: true}, nil
	}

	data, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return &Decision{Allow: true}, nil
	}

	if deny, ok := data["deny"].(bool); ok && deny {
		reason, _ := data["reason"].(string)
		return &Decision{Allow: false, Reason: reason}, nil
	}
	return &Decision{Allow: true}, nil
}
