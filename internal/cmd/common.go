package cmd

import (
	"os"
	"path/filepath"

	"github.com/omx/teamctl/internal/config"
	"github.com/omx/teamctl/internal/lifecycle"
	"github.com/omx/teamctl/internal/multiplex"
	"github.com/omx/teamctl/internal/overlay"
	"github.com/omx/teamctl/internal/store"
	"github.com/omx/teamctl/internal/team"
)

// instructionsFileName is the leader's own instructions file the runtime
// overlay (C10) splices the session block into (spec.md §4.10/§4.12).
const instructionsFileName = "CLAUDE.md"

// projectRoot returns the current working directory, the project root
// every command resolves paths against unless overridden by a future
// --project flag (none needed yet; every verb runs from inside the
// project like the teacher's gt does).
func projectRoot() (string, error) {
	return os.Getwd()
}

// loadTeam builds a *team.Team against the current project, reading an
// optional teamctl.toml (spec.md §6's file-then-env config precedence)
// and a real tmux adapter.
func loadTeam() (*team.Team, error) {
	project, err := projectRoot()
	if err != nil {
		return nil, err
	}
	env, err := config.Load(filepath.Join(project, "teamctl.toml"))
	if err != nil {
		return nil, err
	}
	return team.New(project, multiplex.NewTmuxAdapter(), env), nil
}

// loadLifecycleHooks builds the session pre/post-launch hooks (C12) for
// the current project, wired to the same Store and Overlay the started
// team uses.
func loadLifecycleHooks(project string) *lifecycle.Hooks {
	s := store.New(project)
	ov := overlay.New(project)
	return lifecycle.New(s, ov, filepath.Join(project, instructionsFileName))
}

// reportLifecycleResult prints each fault-isolated lifecycle step failure
// as a warning rather than aborting the command — spec.md §4.12: one
// step's failure never blocks the rest of the sequence, and by the time
// this is called the sequence has already run to completion.
func reportLifecycleResult(stderr interface{ Write([]byte) (int, error) }, res *lifecycle.Result) {
	if res == nil || res.Err() == nil {
		return
	}
	for _, stepErr := range res.Errors {
		stderr.Write([]byte("warning: " + stepErr.Error() + "\n"))
	}
}
