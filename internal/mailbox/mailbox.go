// Package mailbox implements direct/broadcast messaging with a
// per-recipient lock and the notified/delivered lifecycle (spec.md §4.7).
// Grounded on the teacher's internal/mail/delivery.go two-phase
// pending->acked delivery-state model (renamed notified/delivered here)
// and internal/mail/router.go's broadcast-as-N-sends pattern, with plain
// per-recipient JSON storage (spec.md §3) rather than the teacher's
// external `bd` CLI shellout transport.
package mailbox

import (
	"time"

	"github.com/google/uuid"
	"github.com/omx/teamctl/internal/atomicio"
	"github.com/omx/teamctl/internal/core"
	"github.com/omx/teamctl/internal/store"
)

// Mailbox wraps a Store with the mailbox operations.
type Mailbox struct {
	Store *store.Store
}

// New constructs a Mailbox backed by s.
func New(s *store.Store) *Mailbox {
	return &Mailbox{Store: s}
}

// SendDirect appends a message to to's mailbox and an accompanying
// message_received team event, serialized under to's mailbox lock.
// Concurrent sends to the same recipient must not lose messages
// (spec.md §4.7, §8 property 6).
func (m *Mailbox) SendDirect(team, from, to, body string) (*core.MailboxMessage, error) {
	lockPath := m.Store.MailboxLockDir(team, to)
	lock := atomicio.NewDirLock(lockPath, atomicio.DefaultWriteLockStaleHorizon)
	release, err := lock.Acquire()
	if err != nil {
		return nil, core.WrapError(core.CategoryLockTimeout, err)
	}
	defer release()

	mb, err := m.Store.ReadMailbox(team, to)
	if err != nil {
		return nil, err
	}
	msg := core.MailboxMessage{
		MessageID:  uuid.NewString(),
		FromWorker: from,
		ToWorker:   to,
		Body:       body,
		CreatedAt:  time.Now().UTC(),
	}
	mb.Messages = append(mb.Messages, msg)
	mb.Worker = to
	if err := m.Store.WriteMailboxUnderLock(team, mb); err != nil {
		return nil, err
	}
	if _, err := m.Store.AppendTeamEvent(team, store.EventPartial{
		Type: core.EventMessageReceived, Worker: to, MessageID: msg.MessageID,
	}); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Broadcast sends body from `from` to every other worker in workers
// (spec.md §4.7: "broadcast = one direct send per other worker").
func (m *Mailbox) Broadcast(team, from, body string, workers []string) ([]*core.MailboxMessage, error) {
	var sent []*core.MailboxMessage
	for _, w := range workers {
		if w == from {
			continue
		}
		msg, err := m.SendDirect(team, from, w, body)
		if err != nil {
			return sent, err
		}
		sent = append(sent, msg)
	}
	return sent, nil
}

// MarkNotified stamps notified_at on a message; reports false if the
// message is absent.
func (m *Mailbox) MarkNotified(team, worker, messageID string) (bool, error) {
	return m.stampTimestamp(team, worker, messageID, func(msg *core.MailboxMessage, now time.Time) {
		msg.NotifiedAt = &now
	})
}

// MarkDelivered stamps delivered_at on a message; reports false if the
// message is absent.
func (m *Mailbox) MarkDelivered(team, worker, messageID string) (bool, error) {
	return m.stampTimestamp(team, worker, messageID, func(msg *core.MailboxMessage, now time.Time) {
		msg.DeliveredAt = &now
	})
}

func (m *Mailbox) stampTimestamp(team, worker, messageID string, stamp func(*core.MailboxMessage, time.Time)) (bool, error) {
	lockPath := m.Store.MailboxLockDir(team, worker)
	lock := atomicio.NewDirLock(lockPath, atomicio.DefaultWriteLockStaleHorizon)
	release, err := lock.Acquire()
	if err != nil {
		return false, core.WrapError(core.CategoryLockTimeout, err)
	}
	defer release()

	mb, err := m.Store.ReadMailbox(team, worker)
	if err != nil {
		return false, err
	}
	found := false
	now := time.Now().UTC()
	for i := range mb.Messages {
		if mb.Messages[i].MessageID == messageID {
			stamp(&mb.Messages[i], now)
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}
	if err := m.Store.WriteMailboxUnderLock(team, mb); err != nil {
		return false, err
	}
	return true, nil
}

// ListMessages returns worker's mailbox messages in insertion order.
func (m *Mailbox) ListMessages(team, worker string) ([]core.MailboxMessage, error) {
	mb, err := m.Store.ReadMailbox(team, worker)
	if err != nil {
		return nil, err
	}
	return mb.Messages, nil
}
