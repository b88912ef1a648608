package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/jbctechsolutions/invsync/internal/domain/entity"
)

// annotate renders the differing fields of a conflict for an operator.
// String fields get an inline character diff from local to remote, written
// as [-removed-]{+added+}; other values are shown side by side.
func annotate(diffs []entity.FieldDiff) string {
	if len(diffs) == 0 {
		return ""
	}

	dmp := diffmatchpatch.New()
	parts := make([]string, 0, len(diffs))
	for _, d := range diffs {
		ls, lok := d.Local.(string)
		rs, rok := d.Remote.(string)
		if lok && rok {
			parts = append(parts, d.Field+": "+inlineDiff(dmp, ls, rs))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: local=%s remote=%s", d.Field, render(d.Local), render(d.Remote)))
	}
	return strings.Join(parts, "; ")
}

func inlineDiff(dmp *diffmatchpatch.DiffMatchPatch, local, remote string) string {
	diffs := dmp.DiffMain(local, remote, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			b.WriteString(d.Text)
		case diffmatchpatch.DiffDelete:
			b.WriteString("[-" + d.Text + "-]")
		case diffmatchpatch.DiffInsert:
			b.WriteString("{+" + d.Text + "+}")
		}
	}
	return b.String()
}

func render(v any) string {
	if v == nil {
		return "<empty>"
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}
