package overlay

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func sampleContext() Context {
	return Context{
		SessionID:     "sess-1",
		Project:       "alpha",
		StartedAt:     time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC),
		ActiveModes:   []string{"focus", "no-push"},
		PriorityNotes: []string{"don't touch the billing schema"},
		ProjectStack:  "go",
		BuildCommand:  "go build ./...",
	}
}

func TestGenerateOverlayIsDeterministic(t *testing.T) {
	ctx := sampleContext()
	a := GenerateOverlay(ctx)
	b := GenerateOverlay(ctx)
	if a != b {
		t.Fatalf("expected identical inputs to produce identical output:\n%q\n%q", a, b)
	}
	if !strings.HasPrefix(a, RuntimeStartMarker) || !strings.HasSuffix(strings.TrimRight(a, "\n"), RuntimeEndMarker) {
		t.Fatalf("expected output bounded by runtime markers, got %q", a)
	}
}

func TestGenerateOverlayRequiredSectionsAlwaysPresent(t *testing.T) {
	out := GenerateOverlay(Context{SessionID: "s", Project: "p", StartedAt: time.Now()})
	if !strings.Contains(out, "### session_meta") {
		t.Fatal("expected session_meta section always present")
	}
	if !strings.Contains(out, "### compaction_protocol") {
		t.Fatal("expected compaction_protocol section always present")
	}
	if strings.Contains(out, "### active_modes") {
		t.Fatal("expected active_modes omitted when empty")
	}
}

func TestGenerateOverlayDropsOptionalSectionsLowestPriorityFirst(t *testing.T) {
	ctx := sampleContext()
	ctx.TopDirectives = make([]string, 0)
	huge := strings.Repeat("x", 3000)
	ctx.ProjectConventions = huge

	out := GenerateOverlay(ctx)
	if len(out) > MaxOverlayBytes {
		t.Fatalf("expected output capped at %d bytes, got %d", MaxOverlayBytes, len(out))
	}
	if strings.Contains(out, "### project_context") {
		t.Fatal("expected project_context dropped first when oversized")
	}
	// active_modes is the highest-priority optional section and should
	// survive a single oversized field being dropped.
	if !strings.Contains(out, "### active_modes") {
		t.Fatal("expected active_modes to survive dropping project_context alone")
	}
}

func TestGenerateOverlayTruncatesLastSectionWhenStillOversized(t *testing.T) {
	// No optional sections at all: session_meta alone, inflated past the
	// cap via a huge session id, forces truncation of the last remaining
	// (required) section rather than any section drop.
	ctx := Context{
		SessionID: strings.Repeat("s", 2500),
		Project:   "p",
		StartedAt: time.Now(),
	}
	out := GenerateOverlay(ctx)
	if strings.Contains(out, "### active_modes") || strings.Contains(out, "### priority_notes") || strings.Contains(out, "### project_context") {
		t.Fatal("expected no optional sections present to drop")
	}
	if len(out) > MaxOverlayBytes {
		t.Fatalf("expected output capped at %d bytes even with only required sections, got %d", MaxOverlayBytes, len(out))
	}
	if !strings.Contains(out, "...") {
		t.Fatal("expected an ellipsis-truncated section when required sections alone overflow")
	}
}

func TestApplyIsIdempotentAndReplacesRatherThanDuplicates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "AGENTS.md")
	if err := os.WriteFile(path, []byte("# Project instructions\n\nDo the thing.\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	o := New("alpha")
	body1 := GenerateOverlay(sampleContext())
	if err := o.Apply(path, body1); err != nil {
		t.Fatalf("Apply 1: %v", err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read after first apply: %v", err)
	}
	if strings.Count(string(first), RuntimeStartMarker) != 1 {
		t.Fatalf("expected exactly one runtime block after first apply, got:\n%s", first)
	}

	ctx2 := sampleContext()
	ctx2.ActiveModes = []string{"different-mode"}
	body2 := GenerateOverlay(ctx2)
	if err := o.Apply(path, body2); err != nil {
		t.Fatalf("Apply 2: %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read after second apply: %v", err)
	}
	if strings.Count(string(second), RuntimeStartMarker) != 1 {
		t.Fatalf("expected re-applying to replace, not duplicate, the runtime block, got:\n%s", second)
	}
	if !strings.Contains(string(second), "different-mode") {
		t.Fatal("expected the second apply's content to be present")
	}
	if !strings.Contains(string(second), "Do the thing.") {
		t.Fatal("expected the original file content to survive apply")
	}
}

func TestApplyPreservesCoexistingWorkerOverlayBlock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "AGENTS.md")
	workerBlock := WorkerStartMarker + "\nteam-specific worker notes\n" + WorkerEndMarker + "\n"
	if err := os.WriteFile(path, []byte(workerBlock), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	o := New("alpha")
	if err := o.Apply(path, GenerateOverlay(sampleContext())); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(content), "team-specific worker notes") {
		t.Fatal("expected the worker-overlay block to survive a runtime Apply")
	}

	if err := o.Strip(path); err != nil {
		t.Fatalf("Strip: %v", err)
	}
	afterStrip, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read after strip: %v", err)
	}
	if !strings.Contains(string(afterStrip), "team-specific worker notes") {
		t.Fatal("expected the worker-overlay block to survive a runtime Strip")
	}
	if strings.Contains(string(afterStrip), RuntimeStartMarker) {
		t.Fatal("expected the runtime block removed by Strip")
	}
}

func TestStripIsNoOpWhenNoRuntimeBlockPresent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "AGENTS.md")
	original := "# Just plain instructions\n"
	if err := os.WriteFile(path, []byte(original), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	o := New("alpha")
	if err := o.Strip(path); err != nil {
		t.Fatalf("Strip: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(content) != original {
		t.Fatalf("expected Strip to be a no-op, got %q", content)
	}
}

func TestStripRepairsMalformedBlockMissingEndMarker(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "AGENTS.md")
	malformed := "prefix\n" + RuntimeStartMarker + "\nstray unterminated content\n" + WorkerStartMarker + "\nkeep me\n" + WorkerEndMarker + "\n"
	if err := os.WriteFile(path, []byte(malformed), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	o := New("alpha")
	if err := o.Strip(path); err != nil {
		t.Fatalf("Strip: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.Contains(string(content), "stray unterminated content") {
		t.Fatal("expected malformed block content removed")
	}
	if !strings.Contains(string(content), "keep me") {
		t.Fatal("expected the worker-overlay block to survive repair of a malformed runtime block")
	}
	if !strings.HasPrefix(string(content), "prefix\n") {
		t.Fatalf("expected content before the malformed block preserved, got %q", content)
	}
}
