package store

import (
	"github.com/omx/teamctl/internal/atomicio"
	"github.com/omx/teamctl/internal/core"
	"github.com/omx/teamctl/internal/namepolicy"
)

// ReadMailbox reads mailbox/<worker>.json. A missing file reports an empty
// mailbox for that worker, not an error.
func (s *Store) ReadMailbox(team, worker string) (*core.Mailbox, error) {
	var mb core.Mailbox
	ok, err := readJSON(namepolicy.MailboxPath(s.Project, team, worker), &mb)
	if err != nil {
		return nil, err
	}
	if !ok {
		mb = core.Mailbox{Worker: worker}
	}
	return &mb, nil
}

// WriteMailboxUnderLock persists a mailbox file. The caller must already
// hold the per-recipient mailbox lock (internal/mailbox acquires it so it
// can read-append-write atomically).
func (s *Store) WriteMailboxUnderLock(team string, mb *core.Mailbox) error {
	return atomicio.WriteJSON(namepolicy.MailboxPath(s.Project, team, mb.Worker), mb, 0o644)
}

// MailboxLockDir exposes the per-recipient mailbox lock path.
func (s *Store) MailboxLockDir(team, worker string) string {
	return namepolicy.MailboxLockPath(s.Project, team, worker)
}
