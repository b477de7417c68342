package policy_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/bubbly/pkg/model"
	"github.com/m-mizutani/bubbly/pkg/policy"
)

const denyShortComments = `package ingest

deny if {
	count(input.text) < 4
}

reason := "comment too short" if {
	count(input.text) < 4
}
`

func writePolicy(t *testing.T, content string) string {
	dir := t.TempDir()
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "ingest.rego"), []byte(content), 0600))
	return dir
}

func TestGateDeny(t *testing.T) {
	ctx := context.Background()
	gate, err := policy.Load(ctx, writePolicy(t, denyShortComments))
	gt.NoError(t, err)

	t.Run("denies matching comments", func(t *testing.T) {
		decision, err := gate.Evaluate(ctx, &model.Comment{
			ID:   model.NewCommentID(),
			Text: "no",
		})
		gt.NoError(t, err)
		gt.False(t, decision.Allow)
		gt.Equal(t, decision.Reason, "comment too short")
	})

	t.Run("allows everything else", func(t *testing.T) {
		decision, err := gate.Evaluate(ctx, &model.Comment{
			ID:   model.NewCommentID(),
			Text: "a reasonable comment",
		})
		gt.NoError(t, err)
		gt.True(t, decision.Allow)
	})
}

func TestGateEmptyDir(t *testing.T) {
	ctx := context.Background()
	gate, err := policy.Load(ctx, t.TempDir())
	gt.NoError(t, err)

	decision, err := gate.Evaluate(ctx, &model.Comment{Text: "x"})
	gt.NoError(t, err)
	gt.True(t, decision.Allow)
}

func TestGateAllowAll(t *testing.T) {
	gate := policy.NewAllowAll()
	decision, err := gate.Evaluate(context.Background(), &model.Comment{Text: ""})
	gt.NoError(t, err)
	gt.True(t, decision.Allow)
}

func TestGateInvalidPolicy(t *testing.T) {
	_, err := policy.Load(context.Background(), writePolicy(t, "package ingest\ndeny if {"))
	gt.Error(t, err)
}
