package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/jbctechsolutions/invsync/internal/domain/checkpoint"
	"github.com/jbctechsolutions/invsync/internal/domain/entity"
	"github.com/jbctechsolutions/invsync/internal/domain/errors"
	"github.com/jbctechsolutions/invsync/internal/domain/reconcile"
)

func plain(buf *bytes.Buffer) *Formatter {
	return NewFormatter(WithWriter(buf), WithColor(false))
}

func TestFormatter_Colorize(t *testing.T) {
	var buf bytes.Buffer
	colored := NewFormatter(WithWriter(&buf))
	if got := colored.Colorize("x", ColorRed); got != string(ColorRed)+"x"+string(ColorReset) {
		t.Errorf("unexpected colored text %q", got)
	}
	if got := plain(&buf).Colorize("x", ColorRed); got != "x" {
		t.Errorf("expected plain text, got %q", got)
	}
}

func TestFormatter_Messages(t *testing.T) {
	tests := []struct {
		name   string
		fn     func(f *Formatter) error
		prefix string
	}{
		{"success", func(f *Formatter) error { return f.Success("done %d", 1) }, "✓ done 1"},
		{"error", func(f *Formatter) error { return f.Error("bad") }, "✗ bad"},
		{"warning", func(f *Formatter) error { return f.Warning("careful") }, "⚠ careful"},
		{"info", func(f *Formatter) error { return f.Info("note") }, "ℹ note"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := tt.fn(plain(&buf)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := strings.TrimSpace(buf.String()); got != tt.prefix {
				t.Errorf("expected %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestFormatter_Table(t *testing.T) {
	var buf bytes.Buffer
	err := plain(&buf).Table(TableData{
		Headers: []string{"ID", "NAME"},
		Rows:    [][]string{{"L1", "Dell"}, {"L10", "X"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "ID   NAME\n---  ----\nL1   Dell\nL10  X\n"
	if buf.String() != want {
		t.Errorf("table mismatch:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"table", FormatText, false},
		{" JSON ", FormatJSON, false},
		{"xml", FormatText, true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestColorSupported_NoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	if ColorSupported() {
		t.Error("NO_COLOR must disable colors")
	}
}

func TestKindLabel(t *testing.T) {
	if got := KindLabel(entity.KindPerson); got != "People" {
		t.Errorf("KindLabel(person) = %q", got)
	}
	if got := KindLabel(entity.KindAccessory); got != "Accessories" {
		t.Errorf("KindLabel(accessory) = %q", got)
	}
}

func TestRenderStatus(t *testing.T) {
	c := reconcile.NewClassification(entity.KindLaptop)
	c.Ahead = []string{"L1"}
	c.Unchanged = []string{"L2", "L3"}

	report := &reconcile.StatusReport{
		LastChecked: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
		Kinds: map[entity.Kind]*reconcile.KindStatus{
			entity.KindLaptop: {Classification: c},
			entity.KindPerson: {Error: "remote down", ErrorCode: errors.CodeRemoteUnavailable},
		},
	}

	var buf bytes.Buffer
	if err := RenderStatus(plain(&buf), report); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Laptops", "ahead: 1 (L1)", "unchanged: 2", "People", "REMOTE_UNAVAILABLE"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Laptops") > strings.Index(out, "People") {
		t.Error("kinds should be sorted")
	}
}

func TestRenderSyncReport(t *testing.T) {
	laptops := reconcile.NewSyncResult(entity.KindLaptop)
	laptops.Pushed = []string{"L1", "L2"}
	laptops.Conflicts = []reconcile.Conflict{{ID: "L3", Annotation: "notes: a{+b+}"}}
	people := reconcile.NewSyncResult(entity.KindPerson)
	people.Failed = []reconcile.PushFailure{{ID: "P1", Code: errors.CodeRecordPushFailed, Reason: "rejected"}}

	start := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	report := &reconcile.SyncReport{
		RunID:        "run-1",
		CheckpointID: "cp-1",
		StartedAt:    start,
		CompletedAt:  start.Add(time.Second),
		Results:      map[entity.Kind]*reconcile.SyncResult{entity.KindLaptop: laptops, entity.KindPerson: people},
	}

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		if err := RenderSyncReport(plain(&buf), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out := buf.String()
		for _, want := range []string{"cp-1", "partial", "P1: rejected", "L3 not pushed", "pushed 2 record(s), 1 failed"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		f := NewFormatter(WithWriter(&buf), WithFormat(FormatJSON))
		if err := RenderSyncReport(f, report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var decoded reconcile.SyncReport
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if decoded.CheckpointID != "cp-1" {
			t.Errorf("checkpointId = %q", decoded.CheckpointID)
		}
	})
}

func TestRenderCheckpoints(t *testing.T) {
	var buf bytes.Buffer
	f := plain(&buf)

	if err := RenderCheckpoints(f, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "no checkpoints") {
		t.Errorf("expected empty message, got %q", buf.String())
	}

	buf.Reset()
	err := RenderCheckpoints(f, []checkpoint.Summary{{
		ID:        "cp-1",
		CreatedAt: time.Now(),
		Reason:    "sync",
		Kinds:     []entity.Kind{entity.KindLaptop, entity.KindPerson},
		LinkCount: 3,
		SizeBytes: 2048,
	}})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"cp-1", "laptop,person", "2.0 KiB"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}
}

func TestCountLine(t *testing.T) {
	ids := make([]string, 12)
	for i := range ids {
		ids[i] = "x"
	}
	if got := countLine(12, ids); !strings.HasSuffix(got, "… 2 more)") {
		t.Errorf("countLine truncated wrong: %q", got)
	}
	if got := countLine(0, nil); got != "0" {
		t.Errorf("countLine(0) = %q", got)
	}
}
