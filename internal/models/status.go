package models

import "strings"

type Status string

const (
	StatusNew                  Status = "new"
	StatusAssigned             Status = "assigned"
	StatusCompleted            Status = "completed"
	StatusPendingInvestigation Status = "pending_investigation"
	StatusUnableToHandle       Status = "unable_to_handle"
	StatusSentBack             Status = "sent_back"
)

var transitions = map[Status][]Status{
	StatusNew:                  {StatusNew, StatusAssigned},
	StatusAssigned:             {StatusNew, StatusCompleted, StatusPendingInvestigation, StatusUnableToHandle, StatusSentBack},
	StatusPendingInvestigation: {StatusNew, StatusAssigned, StatusCompleted, StatusUnableToHandle, StatusSentBack},
	StatusSentBack:             {StatusNew},
	StatusCompleted:            nil,
	StatusUnableToHandle:       nil,
}

func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", ValidationError{Message: "Unknown status: " + v}
	}
	return s, nil
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// Claimable reports whether a request in this status can be claimed by an agent.
func (s Status) Claimable() bool {
	return s == StatusNew || s == StatusPendingInvestigation
}

// CanTransition reports whether a request may move from one status to another.
// completed and unable_to_handle are terminal; there is no reopen flow.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SourcesOf lists every status from which to is reachable.
func SourcesOf(to Status) []Status {
	var out []Status
	for _, from := range AllStatuses() {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

func AllStatuses() []Status {
	return []Status{
		StatusNew,
		StatusAssigned,
		StatusCompleted,
		StatusPendingInvestigation,
		StatusUnableToHandle,
		StatusSentBack,
	}
}
