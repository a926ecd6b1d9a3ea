// Package overlay implements the runtime overlay (spec.md §4.10): a
// marker-bounded, size-capped block of session context spliced into an
// agent's instructions file. Grounded on teacher internal/hooks/merge.go's
// deterministic override-merge discipline (fixed precedence order,
// replace-or-append per section) adapted here from config-merging to
// text-section-dropping, and on internal/rig/overlay.go's naming/role — a
// generated "overlay" applied to a destination file — even though that
// file copies whole files while this one splices a marker-bounded text
// block into an existing one.
package overlay

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/omx/teamctl/internal/atomicio"
	"github.com/omx/teamctl/internal/namepolicy"
)

// Markers bounding the runtime overlay block and the coexisting
// worker-overlay block (spec.md §4.10) that must never be touched by
// runtime Apply/Strip.
const (
	RuntimeStartMarker = "<!-- OMX:RUNTIME:START -->"
	RuntimeEndMarker   = "<!-- OMX:RUNTIME:END -->"
	WorkerStartMarker  = "<!-- OMX:TEAM:WORKER:START -->"
	WorkerEndMarker    = "<!-- OMX:TEAM:WORKER:END -->"
)

// MaxOverlayBytes is the hard size cap on a generated overlay body
// (spec.md §4.10, §8 property 7).
const MaxOverlayBytes = 2000

// MaxMarkerOccurrences bounds how many existing runtime blocks Strip will
// scan through before giving up (spec.md §4.10: "up to 50 occurrences").
const MaxMarkerOccurrences = 50

// compactionProtocolText is the fixed required section explaining how the
// agent should behave when context is compacted mid-session.
const compactionProtocolText = "If context is compacted, re-read this block before continuing; it is regenerated on each launch and is not authoritative once stale."

// Context carries everything GenerateOverlay needs, read best-effort by
// the caller from state, a notepad file, and a project-memory summary
// (spec.md §4.10).
type Context struct {
	SessionID           string
	Project             string
	StartedAt           time.Time
	ActiveModes         []string // current-session modes plus global base modes
	PriorityNotes       []string // lines from a priority notepad file
	ProjectStack        string
	ProjectConventions  string
	BuildCommand        string
	TopDirectives       []string // up to 3 high-priority directives
}

// section is one named, optionally-droppable piece of overlay content.
type section struct {
	name     string
	required bool
	body     string
}

// dropOrder is the deterministic "lowest priority upward" drop sequence
// (spec.md §4.10): project_context is the least load-bearing of the
// optional sections (it is a convenience summary, not live state),
// priority_notes next, active_modes last since losing visibility into
// which modes are live is the most likely to cause a worker to act on
// stale assumptions. Decision recorded in SPEC_FULL.md's Open Questions.
var dropOrder = []string{"project_context", "priority_notes", "active_modes"}

// GenerateOverlay builds the marker-bounded runtime overlay body,
// deterministically dropping optional sections (lowest priority first)
// until it fits MaxOverlayBytes, then truncating the last remaining
// section with an ellipsis if it still doesn't, and earlier sections in
// turn if the last one alone cannot absorb the excess (spec.md §4.10, §8
// property 7: identical inputs must produce identical bytes).
func GenerateOverlay(ctx Context) string {
	sections := buildSections(ctx)
	out := render(sections)
	for _, name := range dropOrder {
		if len(out) <= MaxOverlayBytes {
			break
		}
		sections = dropSection(sections, name)
		out = render(sections)
	}
	if len(out) > MaxOverlayBytes {
		sections = truncateLastSection(sections)
		out = render(sections)
	}
	return out
}

func buildSections(ctx Context) []section {
	meta := fmt.Sprintf("session=%s project=%s started=%s", ctx.SessionID, ctx.Project, ctx.StartedAt.UTC().Format(time.RFC3339))
	sections := []section{{name: "session_meta", required: true, body: meta}}

	if len(ctx.ActiveModes) > 0 {
		sections = append(sections, section{name: "active_modes", body: strings.Join(ctx.ActiveModes, ", ")})
	}
	if len(ctx.PriorityNotes) > 0 {
		sections = append(sections, section{name: "priority_notes", body: strings.Join(ctx.PriorityNotes, "\n")})
	}
	if pc := renderProjectContext(ctx); pc != "" {
		sections = append(sections, section{name: "project_context", body: pc})
	}
	sections = append(sections, section{name: "compaction_protocol", required: true, body: compactionProtocolText})
	return sections
}

func renderProjectContext(ctx Context) string {
	var lines []string
	if ctx.ProjectStack != "" {
		lines = append(lines, "stack: "+ctx.ProjectStack)
	}
	if ctx.ProjectConventions != "" {
		lines = append(lines, "conventions: "+ctx.ProjectConventions)
	}
	if ctx.BuildCommand != "" {
		lines = append(lines, "build: "+ctx.BuildCommand)
	}
	directives := ctx.TopDirectives
	if len(directives) > 3 {
		directives = directives[:3]
	}
	for _, d := range directives {
		lines = append(lines, "directive: "+d)
	}
	return strings.Join(lines, "\n")
}

func dropSection(sections []section, name string) []section {
	out := make([]section, 0, len(sections))
	for _, s := range sections {
		if s.name == name && !s.required {
			continue
		}
		out = append(out, s)
	}
	return out
}

// truncateLastSection shrinks the last section's body (appending an
// ellipsis) until the rendered overlay fits, converging over a few
// rounds since rune-boundary trimming rarely maps 1:1 to byte count.
// When the last section's body is reduced to the bare ellipsis and the
// overlay still does not fit, the section before it is trimmed the same
// way, and so on towards the first section.
func truncateLastSection(sections []section) []section {
	for idx := len(sections) - 1; idx >= 0; idx-- {
		for round := 0; round < 8; round++ {
			out := render(sections)
			over := len(out) - MaxOverlayBytes
			if over <= 0 {
				return sections
			}
			runes := []rune(sections[idx].body)
			target := len(runes) - over - 3 // reserve 3 bytes for "..."
			if target <= 0 {
				sections[idx].body = "..."
				break
			}
			sections[idx].body = string(runes[:target]) + "..."
		}
	}
	return sections
}

func render(sections []section) string {
	var b strings.Builder
	b.WriteString(RuntimeStartMarker)
	b.WriteString("\n")
	for _, s := range sections {
		b.WriteString("### ")
		b.WriteString(s.name)
		b.WriteString("\n")
		b.WriteString(s.body)
		b.WriteString("\n")
	}
	b.WriteString(RuntimeEndMarker)
	b.WriteString("\n")
	return b.String()
}

// Overlay applies/strips the runtime overlay against instructions files
// under a project's overlay lock (spec.md §4.1: "overlay lock for the
// session overlay file").
type Overlay struct {
	Project string
}

// New constructs an Overlay for project.
func New(project string) *Overlay {
	return &Overlay{Project: project}
}

// Apply strips any existing runtime block(s) from path (repairing
// malformed ones) then appends body, writing under the overlay lock.
// Idempotent: re-applying replaces rather than duplicates the block.
// A coexisting worker-overlay block is left untouched.
func (o *Overlay) Apply(path, body string) error {
	lockPath := namepolicy.OverlayLockPath(o.Project)
	return atomicio.WithLock(lockPath, atomicio.DefaultWriteLockStaleHorizon, func() error {
		existing, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		stripped := stripRuntimeBlocks(string(existing))
		stripped = ensureTrailingNewline(stripped)
		return atomicio.WriteFile(path, []byte(stripped+body), 0o644)
	})
}

// Strip removes any runtime block(s) from path; a no-op if none are
// present (spec.md §4.10).
func (o *Overlay) Strip(path string) error {
	lockPath := namepolicy.OverlayLockPath(o.Project)
	return atomicio.WithLock(lockPath, atomicio.DefaultWriteLockStaleHorizon, func() error {
		existing, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		stripped := stripRuntimeBlocks(string(existing))
		if stripped == string(existing) {
			return nil
		}
		return atomicio.WriteFile(path, []byte(stripped), 0o644)
	})
}

func ensureTrailingNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

// stripRuntimeBlocks removes every RuntimeStartMarker..RuntimeEndMarker
// span (up to MaxMarkerOccurrences), repairing a malformed block missing
// its end marker by terminating the strip at whichever recognized marker
// (another runtime start, or either worker-overlay marker) comes next, or
// at end of file. Worker-overlay blocks are never touched.
func stripRuntimeBlocks(content string) string {
	var b strings.Builder
	remaining := content
	for i := 0; i < MaxMarkerOccurrences; i++ {
		idx := strings.Index(remaining, RuntimeStartMarker)
		if idx == -1 {
			b.WriteString(remaining)
			return b.String()
		}
		b.WriteString(remaining[:idx])
		rest := remaining[idx+len(RuntimeStartMarker):]

		if endIdx := strings.Index(rest, RuntimeEndMarker); endIdx != -1 {
			remaining = rest[endIdx+len(RuntimeEndMarker):]
			continue
		}

		cut := len(rest)
		for _, marker := range []string{RuntimeStartMarker, WorkerStartMarker, WorkerEndMarker} {
			if j := strings.Index(rest, marker); j != -1 && j < cut {
				cut = j
			}
		}
		remaining = rest[cut:]
	}
	b.WriteString(remaining)
	return b.String()
}
