package multiplex

import (
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// TmuxAdapter implements Adapter against a real tmux server via subprocess,
// following the request/response shelling-out discipline of the teacher's
// tmux wrapper (run tmux, inspect stderr for known phrases, wrap as typed
// errors).
type TmuxAdapter struct{}

// NewTmuxAdapter constructs a TmuxAdapter.
func NewTmuxAdapter() *TmuxAdapter { return &TmuxAdapter{} }

func (t *TmuxAdapter) run(args ...string) (string, error) {
	cmd := exec.Command("tmux", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if strings.Contains(msg, "no server running") || strings.Contains(msg, "error connecting to") {
			return "", ErrNoServer
		}
		if strings.Contains(msg, "can't find") || strings.Contains(msg, "not found") {
			return "", ErrPaneMissing
		}
		if msg != "" {
			return "", fmt.Errorf("tmux %s: %s", args[0], msg)
		}
		return "", fmt.Errorf("tmux %s: %w", args[0], err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// ListPanes lists the panes attached to target (a session or window).
func (t *TmuxAdapter) ListPanes(target string) ([]PaneInfo, error) {
	out, err := t.run("list-panes", "-t", target, "-F", "#{pane_id}|#{pane_current_command}|#{pane_start_command}")
	if err != nil {
		if err == ErrNoServer {
			return nil, nil
		}
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	var panes []PaneInfo
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(line, "|", 3)
		if len(parts) < 2 {
			continue
		}
		pi := PaneInfo{PaneID: parts[0], CurrentCommand: parts[1]}
		if len(parts) == 3 {
			pi.StartCommand = parts[2]
		}
		panes = append(panes, pi)
	}
	return panes, nil
}

// SplitPane creates a new pane under target and returns its pane id.
func (t *TmuxAdapter) SplitPane(target string, opts SplitOpts) (string, error) {
	args := []string{"split-window", "-t", target, "-P", "-F", "#{pane_id}"}
	if opts.Vertical {
		args = append(args, "-v")
	} else {
		args = append(args, "-h")
	}
	if opts.Percentage > 0 {
		args = append(args, "-p", strconv.Itoa(opts.Percentage))
	}
	if opts.WorkDir != "" {
		args = append(args, "-c", opts.WorkDir)
	}
	return t.run(args...)
}

// KillPane kills a pane; a missing pane is treated as already gone.
func (t *TmuxAdapter) KillPane(paneID string) error {
	_, err := t.run("kill-pane", "-t", paneID)
	if err == ErrPaneMissing {
		return nil
	}
	return err
}

// SendKeysLiteral sends text in literal mode, bypassing shell metacharacter
// interpretation. This is the teacher's send-keys -l discipline.
func (t *TmuxAdapter) SendKeysLiteral(paneID, text string) error {
	_, err := t.run("send-keys", "-t", paneID, "-l", text)
	return err
}

// SendControlKey sends a non-literal key. The submit key is sent as a
// separate command from any preceding literal text, per the teacher's
// "Enter arrives separately" reliability note.
func (t *TmuxAdapter) SendControlKey(paneID string, key ControlKey) error {
	var tmuxKey string
	switch key {
	case KeySubmit:
		tmuxKey = "Enter"
	case KeyInterrupt:
		tmuxKey = "C-c"
	case KeyTab:
		tmuxKey = "Tab"
	case KeyDown:
		tmuxKey = "Down"
	default:
		return fmt.Errorf("unknown control key: %q", key)
	}
	_, err := t.run("send-keys", "-t", paneID, tmuxKey)
	return err
}

// CapturePane captures the last lastNLines of visible pane content.
func (t *TmuxAdapter) CapturePane(paneID string, lastNLines int) (string, error) {
	return t.run("capture-pane", "-p", "-t", paneID, "-S", fmt.Sprintf("-%d", lastNLines))
}

// IsPaneAlive reports whether paneID still exists.
func (t *TmuxAdapter) IsPaneAlive(paneID string) (bool, error) {
	_, err := t.run("list-panes", "-t", paneID, "-F", "#{pane_id}")
	if err == ErrPaneMissing || err == ErrNoServer {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetPanePid returns the pid of the pane's foreground process.
func (t *TmuxAdapter) GetPanePid(paneID string) (int, error) {
	out, err := t.run("list-panes", "-t", paneID, "-F", "#{pane_pid}")
	if err != nil {
		return 0, err
	}
	pid, convErr := strconv.Atoi(strings.TrimSpace(out))
	if convErr != nil {
		return 0, fmt.Errorf("parsing pane pid %q: %w", out, convErr)
	}
	return pid, nil
}

// CurrentLeaderPaneID returns the pane id of the process's own controlling
// tmux pane, as reported by `tmux display-message -p '#{pane_id}'`.
func (t *TmuxAdapter) CurrentLeaderPaneID() (string, error) {
	out, err := t.run("display-message", "-p", "#{pane_id}")
	if err != nil {
		return "", err
	}
	return out, nil
}

var _ Adapter = (*TmuxAdapter)(nil)
