// Package events delivers query and error events to out-of-band sinks
// (an automation webhook and, optionally, a NATS subject). Delivery is
// fire-and-forget: callers never wait for or see the outcome.
package events

import "time"

// Event type discriminators, sent as event_type.
const (
	TypeQuery = "query"
	TypeError = "error"
)

// Event is any payload a sink accepts.
type Event interface {
	Type() string
}

// QueryEvent records the outcome of a single catalog lookup.
type QueryEvent struct {
	EventType      string   `json:"event_type"`
	Query          string   `json:"query"`
	ResultsCount   int      `json:"results_count"`
	TopResultID    *string  `json:"top_result_id"`
	TopResultScore *float64 `json:"top_result_score"`
	Timestamp      string   `json:"timestamp"`
}

func (QueryEvent) Type() string { return TypeQuery }

// ErrorEvent records a failure in the query or seeding path.
type ErrorEvent struct {
	EventType    string `json:"event_type"`
	ErrorType    string `json:"error_type"`
	ErrorMessage string `json:"error_message"`
	Timestamp    string `json:"timestamp"`
}

func (ErrorEvent) Type() string { return TypeError }

var now = time.Now

func timestamp() string { return now().Format(time.RFC3339Nano) }

// NewQueryEvent builds a query event. topID and topScore are only set when
// count > 0.
func NewQueryEvent(query string, count int, topID string, topScore float64) QueryEvent {
	ev := QueryEvent{
		EventType:    TypeQuery,
		Query:        query,
		ResultsCount: count,
		Timestamp:    timestamp(),
	}
	if count > 0 {
		ev.TopResultID = &topID
		ev.TopResultScore = &topScore
	}
	return ev
}

// NewErrorEvent builds an error event.
func NewErrorEvent(errorType string, err error) ErrorEvent {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return ErrorEvent{
		EventType:    TypeError,
		ErrorType:    errorType,
		ErrorMessage: msg,
		Timestamp:    timestamp(),
	}
}
