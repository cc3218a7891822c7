package api

import (
	"testing"

	"github.com/samcharles93/dngstage/internal/classify"
	"github.com/samcharles93/dngstage/internal/materialize"
	"github.com/samcharles93/dngstage/internal/pipeline"
	"github.com/samcharles93/dngstage/internal/stage"
)

func TestSummarizeExtractionReportsSkippedOpcodes(t *testing.T) {
	t.Parallel()
	res := &pipeline.Result{
		ID:             "abc",
		Layout:         &materialize.Layout{Width: 4, Height: 2, Planes: 1},
		Stage:          stage.StageMain3,
		Strategy:       "staged",
		SkippedOpcodes: 2,
	}
	out := SummarizeExtraction(res, classify.Verdict{Decision: classify.Staged, Rule: "other"}, nil, nil)
	if out.Skipped != 2 {
		t.Fatalf("skipped = %d, want 2", out.Skipped)
	}
	if out.Stage != "main-3" || out.Layout == nil || out.Layout.Width != 4 {
		t.Fatalf("summary = %+v", out)
	}
	if out.Diagnostics == nil {
		t.Fatalf("diagnostics must encode as an empty list")
	}

	none := SummarizeExtraction(&pipeline.Result{Layout: &materialize.Layout{}}, classify.Verdict{}, nil, nil)
	if none.Skipped != 0 {
		t.Fatalf("skipped = %d, want 0", none.Skipped)
	}
}
