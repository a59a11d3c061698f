package terminal

import (
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"perpdesk/pkg/journal"
)

// EventKind classifies terminal events.
type EventKind string

const (
	EventOrderSubmitted    EventKind = "orderSubmitted"
	EventOrderFailed       EventKind = "orderFailed"
	EventOrderSkipped      EventKind = "orderSkipped"
	EventCampaignStarted   EventKind = "campaignStarted"
	EventCampaignRound     EventKind = "campaignRound"
	EventCampaignFinished  EventKind = "campaignFinished"
	EventCampaignCancelled EventKind = "campaignCancelled"
)

// Event is one structured status record: every order attempt, skip, and
// campaign transition produces one. UI layers consume the channel; the same
// record is mirrored to the log and the journal.
type Event struct {
	Time     time.Time `json:"time"`
	Kind     EventKind `json:"kind"`
	Exchange string    `json:"exchange,omitempty"`
	Card     string    `json:"card,omitempty"`
	Group    int       `json:"group"`
	Action   string    `json:"action,omitempty"`
	Outcome  string    `json:"outcome,omitempty"`
	Reason   string    `json:"reason,omitempty"`
}

const eventBufferSize = 256

// EventSink fans events out to a buffered channel, the log, and the JSONL
// journal. Publishing never blocks: when the channel is full the event is
// dropped from the channel (still logged and journaled) and counted.
type EventSink struct {
	ch      chan Event
	journal *journal.Writer
}

// NewEventSink builds a sink. The journal may be nil.
func NewEventSink(j *journal.Writer) *EventSink {
	return &EventSink{
		ch:      make(chan Event, eventBufferSize),
		journal: j,
	}
}

// Events returns the consumer side of the event stream.
func (s *EventSink) Events() <-chan Event {
	return s.ch
}

// Publish records one event.
func (s *EventSink) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	switch e.Kind {
	case EventOrderFailed:
		logx.Errorf("terminal: %s exchange=%s card=%s action=%s reason=%s", e.Kind, e.Exchange, e.Card, e.Action, e.Reason)
	default:
		logx.Infof("terminal: %s exchange=%s card=%s group=%d action=%s outcome=%s reason=%s",
			e.Kind, e.Exchange, e.Card, e.Group, e.Action, e.Outcome, e.Reason)
	}
	if s.journal != nil {
		if err := s.journal.Append(e); err != nil {
			logx.Errorf("terminal: journal append: %v", err)
		}
	}
	select {
	case s.ch <- e:
	default:
		eventsDropped.Inc()
	}
}
