package store

import (
	"bufio"
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/omx/teamctl/internal/atomicio"
	"github.com/omx/teamctl/internal/core"
	"github.com/omx/teamctl/internal/namepolicy"
)

// EventPartial is the caller-supplied subset of Event fields appendTeamEvent
// accepts; event_id and created_at are always generated.
type EventPartial struct {
	Type      core.EventType
	Worker    string
	TaskID    string
	MessageID string
	Reason    string
}

// AppendTeamEvent appends one line to events/events.ndjson with a generated
// event_id and created_at (spec.md §4.3). O_APPEND gives atomicity for
// small writes, matching spec.md §8's concurrent-append safety property.
func (s *Store) AppendTeamEvent(team string, p EventPartial) (*core.Event, error) {
	ev := &core.Event{
		EventID:   uuid.NewString(),
		Team:      team,
		Type:      p.Type,
		Worker:    p.Worker,
		TaskID:    p.TaskID,
		MessageID: p.MessageID,
		Reason:    p.Reason,
		CreatedAt: time.Now().UTC(),
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	if err := atomicio.AppendLine(namepolicy.EventsLogPath(s.Project, team), line); err != nil {
		return nil, err
	}
	return ev, nil
}

// ReadEvents reads the full event log in append order. Readers tolerate
// seeing a prefix of a concurrently-written file (spec.md §5/§8); any line
// that fails to parse is skipped rather than aborting the whole read.
func (s *Store) ReadEvents(team string) ([]*core.Event, error) {
	f, err := os.Open(namepolicy.EventsLogPath(s.Project, team))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var events []*core.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev core.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		events = append(events, &ev)
	}
	return events, nil
}
