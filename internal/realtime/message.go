package realtime

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/progression-engine/internal/domain/learning/progression"
)

type Event string

const (
	EventDayStarted     Event = "DayStarted"
	EventDayCompleted   Event = "DayCompleted"
	EventMonthCompleted Event = "MonthCompleted"
	EventPlanCompleted  Event = "PlanCompleted"
)

var eventNames = map[types.EventType]Event{
	types.EventDayStarted:     EventDayStarted,
	types.EventDayCompleted:   EventDayCompleted,
	types.EventMonthCompleted: EventMonthCompleted,
	types.EventPlanCompleted:  EventPlanCompleted,
}

// Message is the envelope carried on the bus and streamed to subscribers.
type Message struct {
	Channel string     `json:"channel"`
	Event   Event      `json:"event"`
	Data    *EventData `json:"data,omitempty"`
}

type EventData struct {
	EventID    uuid.UUID       `json:"event_id"`
	PlanID     uuid.UUID       `json:"plan_id"`
	LearnerID  uuid.UUID       `json:"learner_id"`
	Sequence   int             `json:"sequence"`
	Month      int             `json:"month,omitempty"`
	Day        int             `json:"day,omitempty"`
	Score      *int            `json:"score,omitempty"`
	Concept    string          `json:"concept,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func LearnerChannel(learnerID uuid.UUID) string {
	return "learner:" + learnerID.String()
}

// FromEvent addresses a stored transition to its learner's channel.
func FromEvent(ev types.ProgressionEvent) Message {
	name, ok := eventNames[ev.Type]
	if !ok {
		name = Event(strings.TrimSpace(string(ev.Type)))
	}
	var payload json.RawMessage
	if len(ev.Payload) > 0 {
		payload = json.RawMessage(ev.Payload)
	}
	return Message{
		Channel: LearnerChannel(ev.LearnerID),
		Event:   name,
		Data: &EventData{
			EventID:    ev.ID,
			PlanID:     ev.PlanID,
			LearnerID:  ev.LearnerID,
			Sequence:   ev.Sequence,
			Month:      ev.MonthIndex,
			Day:        ev.DayIndex,
			Score:      ev.Score,
			Concept:    ev.Concept,
			Payload:    payload,
			OccurredAt: ev.OccurredAt,
		},
	}
}
