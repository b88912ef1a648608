package output

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jbctechsolutions/invsync/internal/domain/checkpoint"
	"github.com/jbctechsolutions/invsync/internal/domain/entity"
	"github.com/jbctechsolutions/invsync/internal/domain/reconcile"
)

// KindLabel returns the display label of a kind, e.g. "Laptops".
func KindLabel(kind entity.Kind) string {
	name := kind.Collection()
	if name == "" {
		name = string(kind)
	}
	return cases.Title(language.English).String(name)
}

// maxListed caps how many ids are printed per state in text output.
const maxListed = 10

// RenderStatus writes a status report.
func RenderStatus(f *Formatter, report *reconcile.StatusReport) error {
	if f.Format() == FormatJSON {
		return f.JSON(report)
	}

	for _, kind := range sortedKinds(report.Kinds) {
		ks := report.Kinds[kind]
		if err := f.Header(KindLabel(kind)); err != nil {
			return err
		}
		if ks.Classification == nil {
			f.Error("%s (%s)", ks.Error, ks.ErrorCode)
			f.Println("")
			continue
		}

		c := ks.Classification
		counts := c.Counts()
		f.Item("ahead", countLine(counts.Ahead, c.Ahead))
		f.Item("behind", countLine(counts.Behind, c.Behind))
		f.Item("modified", countLine(counts.Modified, c.Modified))
		f.Item("unchanged", fmt.Sprintf("%d", counts.Unchanged))
		for _, e := range c.Conflicts() {
			f.Println("    %s %s", f.Colorize(e.ID, ColorYellow), f.Dim(e.Annotation))
		}
		f.Println("")
	}
	return f.Println("%s", f.Dim("checked at "+report.LastChecked.Local().Format(time.RFC3339)))
}

// RenderSyncReport writes the outcome of a sync run.
func RenderSyncReport(f *Formatter, report *reconcile.SyncReport) error {
	if f.Format() == FormatJSON {
		return f.JSON(report)
	}

	f.Item("checkpoint", report.CheckpointID)
	f.Item("run", report.RunID)
	f.Println("")

	rows := make([][]string, 0, len(report.Results))
	for _, kind := range sortedKinds(report.Results) {
		res := report.Results[kind]
		status := "ok"
		if res.Error != "" {
			status = string(res.ErrorCode)
		} else if len(res.Failed) > 0 {
			status = "partial"
		}
		rows = append(rows, []string{
			KindLabel(kind),
			fmt.Sprintf("%d", len(res.Pushed)),
			fmt.Sprintf("%d", len(res.Failed)),
			fmt.Sprintf("%d", len(res.Conflicts)),
			fmt.Sprintf("%d", res.Counts.Behind),
			status,
		})
	}
	if err := f.Table(TableData{
		Headers: []string{"KIND", "PUSHED", "FAILED", "CONFLICTS", "BEHIND", "STATUS"},
		Rows:    rows,
	}); err != nil {
		return err
	}

	for _, kind := range sortedKinds(report.Results) {
		res := report.Results[kind]
		if res.Error != "" {
			f.Error("%s: %s", KindLabel(kind), res.Error)
		}
		for _, pf := range res.Failed {
			f.Error("%s %s: %s", KindLabel(kind), pf.ID, pf.Reason)
		}
		for _, c := range res.Conflicts {
			f.Warning("%s %s not pushed: %s", KindLabel(kind), c.ID, c.Annotation)
		}
	}

	if report.CleanupError != "" {
		f.Warning("checkpoint cleanup failed: %s", report.CleanupError)
	}

	summary := report.Summarize()
	if summary.Failed == 0 && summary.KindErrors == 0 {
		return f.Success("pushed %d record(s) in %s", summary.Pushed, report.Duration().Round(time.Millisecond))
	}
	return f.Warning("pushed %d record(s), %d failed, %d kind(s) with errors",
		summary.Pushed, summary.Failed, summary.KindErrors)
}

// RenderCheckpoints writes a checkpoint list.
func RenderCheckpoints(f *Formatter, list []checkpoint.Summary) error {
	if f.Format() == FormatJSON {
		return f.JSON(list)
	}
	if len(list) == 0 {
		return f.Info("no checkpoints")
	}

	rows := make([][]string, 0, len(list))
	for _, s := range list {
		kinds := make([]string, len(s.Kinds))
		for i, k := range s.Kinds {
			kinds[i] = string(k)
		}
		rows = append(rows, []string{
			s.ID,
			s.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			s.Reason,
			strings.Join(kinds, ","),
			fmt.Sprintf("%d", s.LinkCount),
			humanBytes(s.SizeBytes),
		})
	}
	return f.Table(TableData{
		Headers: []string{"ID", "CREATED", "REASON", "KINDS", "LINKS", "SIZE"},
		Rows:    rows,
	})
}

// RenderHistory writes recent sync runs.
func RenderHistory(f *Formatter, runs []reconcile.RunSummary) error {
	if f.Format() == FormatJSON {
		return f.JSON(runs)
	}
	if len(runs) == 0 {
		return f.Info("no sync runs recorded")
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%d", r.Pushed),
			fmt.Sprintf("%d", r.Failed),
			fmt.Sprintf("%d", r.Conflicts),
			fmt.Sprintf("%d", r.KindErrors),
			r.CheckpointID,
		})
	}
	return f.Table(TableData{
		Headers: []string{"STARTED", "PUSHED", "FAILED", "CONFLICTS", "KIND ERRORS", "CHECKPOINT"},
		Rows:    rows,
	})
}

func countLine(n int, ids []string) string {
	if n == 0 {
		return "0"
	}
	shown := ids
	suffix := ""
	if len(shown) > maxListed {
		shown = shown[:maxListed]
		suffix = fmt.Sprintf(", … %d more", len(ids)-maxListed)
	}
	return fmt.Sprintf("%d (%s%s)", n, strings.Join(shown, ", "), suffix)
}

func humanBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func sortedKinds[V any](m map[entity.Kind]V) []entity.Kind {
	kinds := make([]entity.Kind, 0, len(m))
	for k := range m {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
