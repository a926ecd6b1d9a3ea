package multiplex

import (
	"fmt"
	"strings"
	"sync"
)

// FakePane is one pane tracked by FakeAdapter.
type FakePane struct {
	ID          string
	Pid         int
	Alive       bool
	Typed       []string         // literal text sends, in order
	Submits     int              // count of KeySubmit control keys received
	ControlKeys map[ControlKey]int // count of every control key received, by kind
	Buffer      string           // what CapturePane returns
}

// FakeAdapter is an in-memory Adapter for tests, recording every call so
// tests can assert on exact sequences (literal-text-then-submit, guarded
// kills, etc.) without a real tmux server.
type FakeAdapter struct {
	mu        sync.Mutex
	panes     map[string]*FakePane
	nextPid   int
	leaderID  string
	splitErr  error
	killErr   error
}

// NewFakeAdapter constructs an empty FakeAdapter with the given leader pane id.
func NewFakeAdapter(leaderPaneID string) *FakeAdapter {
	return &FakeAdapter{
		panes:    make(map[string]*FakePane),
		nextPid:  1000,
		leaderID: leaderPaneID,
	}
}

// SeedPane registers a pane as already existing, for tests that need a
// worker pane to be present before exercising bootstrap logic.
func (f *FakeAdapter) SeedPane(id string) *FakePane {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &FakePane{ID: id, Pid: f.nextPid, Alive: true, ControlKeys: make(map[ControlKey]int)}
	f.nextPid++
	f.panes[id] = p
	return p
}

func (f *FakeAdapter) ListPanes(target string) ([]PaneInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []PaneInfo
	for id, p := range f.panes {
		if !p.Alive {
			continue
		}
		if target != "" && !strings.HasPrefix(id, target) && id != target {
			continue
		}
		out = append(out, PaneInfo{PaneID: id, CurrentCommand: "fake"})
	}
	return out, nil
}

func (f *FakeAdapter) SplitPane(target string, opts SplitOpts) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.splitErr != nil {
		return "", f.splitErr
	}
	id := fmt.Sprintf("%%%d", len(f.panes)+1)
	f.panes[id] = &FakePane{ID: id, Pid: f.nextPid, Alive: true, ControlKeys: make(map[ControlKey]int)}
	f.nextPid++
	return id, nil
}

func (f *FakeAdapter) KillPane(paneID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.killErr != nil {
		return f.killErr
	}
	p, ok := f.panes[paneID]
	if !ok {
		return nil
	}
	p.Alive = false
	return nil
}

func (f *FakeAdapter) SendKeysLiteral(paneID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.panes[paneID]
	if !ok || !p.Alive {
		return ErrPaneMissing
	}
	p.Typed = append(p.Typed, text)
	p.Buffer += text
	return nil
}

func (f *FakeAdapter) SendControlKey(paneID string, key ControlKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.panes[paneID]
	if !ok || !p.Alive {
		return ErrPaneMissing
	}
	if p.ControlKeys == nil {
		p.ControlKeys = make(map[ControlKey]int)
	}
	p.ControlKeys[key]++
	if key == KeySubmit {
		p.Submits++
		p.Buffer += "\n"
	}
	return nil
}

func (f *FakeAdapter) CapturePane(paneID string, lastNLines int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.panes[paneID]
	if !ok {
		return "", ErrPaneMissing
	}
	lines := strings.Split(p.Buffer, "\n")
	if lastNLines > 0 && len(lines) > lastNLines {
		lines = lines[len(lines)-lastNLines:]
	}
	return strings.Join(lines, "\n"), nil
}

func (f *FakeAdapter) IsPaneAlive(paneID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.panes[paneID]
	return ok && p.Alive, nil
}

func (f *FakeAdapter) GetPanePid(paneID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.panes[paneID]
	if !ok {
		return 0, ErrPaneMissing
	}
	return p.Pid, nil
}

func (f *FakeAdapter) CurrentLeaderPaneID() (string, error) {
	return f.leaderID, nil
}

// SetSplitError makes every later SplitPane call fail with err until it
// is reset with nil, for rollback tests.
func (f *FakeAdapter) SetSplitError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.splitErr = err
}

// PaneState returns a snapshot copy of a tracked pane for assertions.
func (f *FakeAdapter) PaneState(id string) (FakePane, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.panes[id]
	if !ok {
		return FakePane{}, false
	}
	cp := *p
	cp.Typed = append([]string(nil), p.Typed...)
	return cp, true
}

var _ Adapter = (*FakeAdapter)(nil)
