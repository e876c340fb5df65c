package appointment

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusRequested Status = "REQUESTED"
	StatusConfirmed Status = "CONFIRMED"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
)

// ActiveStatuses hold a reserved slot.
var ActiveStatuses = []Status{StatusRequested, StatusConfirmed}

func (s Status) Valid() bool {
	switch s {
	case StatusRequested, StatusConfirmed, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCancelled
}

type Action string

const (
	ActionConfirm Action = "CONFIRM"
	ActionReject  Action = "REJECT"
	ActionCancel  Action = "CANCEL"
)

type Actor string

const (
	ActorPatient  Actor = "patient"
	ActorProvider Actor = "provider"
)

type transition struct {
	from   Status
	action Action
}

var transitions = map[transition]Status{
	{StatusRequested, ActionConfirm}: StatusConfirmed,
	{StatusRequested, ActionReject}:  StatusRejected,
	{StatusRequested, ActionCancel}:  StatusCancelled,
	{StatusConfirmed, ActionCancel}:  StatusCancelled,
}

// Next returns the status reached by applying action, or ErrInvalidState
// when the edge does not exist.
func (s Status) Next(action Action) (Status, error) {
	to, ok := transitions[transition{s, action}]
	if !ok {
		return s, fmt.Errorf("%w: cannot %s an appointment in %s", ErrInvalidState, action, s)
	}
	return to, nil
}

// Actor is who may perform the action.
func (a Action) Actor() Actor {
	if a == ActionCancel {
		return ActorPatient
	}
	return ActorProvider
}

// ReleasesSlot reports whether a successful action frees the booked slot.
func (a Action) ReleasesSlot() bool {
	return a == ActionReject || a == ActionCancel
}

func (a Action) Valid() bool {
	switch a {
	case ActionConfirm, ActionReject, ActionCancel:
		return true
	}
	return false
}

func (a Action) event() string {
	switch a {
	case ActionConfirm:
		return EventAppointmentConfirmed
	case ActionReject:
		return EventAppointmentRejected
	default:
		return EventAppointmentCancelled
	}
}

type Appointment struct {
	ID                  int64
	PatientID           int64
	ProviderID          int64
	AppointmentDateTime time.Time
	Status              Status
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *int64
	Payload       []byte
	CreatedAt     time.Time
}

// ListFilter narrows appointment listings. Zero fields do not filter.
type ListFilter struct {
	PatientID  int64
	ProviderID int64
	Statuses   []Status
	From       time.Time
}

func (f ListFilter) Matches(a Appointment) bool {
	if f.PatientID != 0 && a.PatientID != f.PatientID {
		return false
	}
	if f.ProviderID != 0 && a.ProviderID != f.ProviderID {
		return false
	}
	if !f.From.IsZero() && a.AppointmentDateTime.Before(f.From) {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, st := range f.Statuses {
		if a.Status == st {
			return true
		}
	}
	return false
}
