package domain

import "time"

type IncidentStatus string

const (
	IncidentOngoing  IncidentStatus = "ongoing"
	IncidentResolved IncidentStatus = "resolved"
)

// Incident is a continuous down period of one monitor.
type Incident struct {
	ID              string         `json:"id" bson:"_id"`
	MonitorID       string         `json:"monitor_id" bson:"monitor_id"`
	MonitorName     string         `json:"monitor_name" bson:"monitor_name"`
	OwnerID         string         `json:"owner_id,omitempty" bson:"user_id,omitempty"`
	Type            string         `json:"type" bson:"type"`
	Status          IncidentStatus `json:"status" bson:"status"`
	Details         map[string]any `json:"details" bson:"details"`
	CreatedAt       time.Time      `json:"created_at" bson:"created_at"`
	ResolvedAt      *time.Time     `json:"resolved_at" bson:"resolved_at"`
	DurationSeconds *float64       `json:"duration_seconds" bson:"duration"`
}

// NewIncident snapshots the monitor at the moment it went down.
func NewIncident(m *Monitor, errMsg string, at time.Time) *Incident {
	var detail any
	if errMsg != "" {
		detail = errMsg
	}
	return &Incident{
		MonitorID:   m.ID,
		MonitorName: m.Name,
		OwnerID:     m.OwnerID,
		Type:        "down",
		Status:      IncidentOngoing,
		Details:     map[string]any{"error": detail},
		CreatedAt:   at,
	}
}

// Resolve moves an ongoing incident to resolved. Resolved is terminal, so
// calling it again reports false and changes nothing.
func (i *Incident) Resolve(at time.Time) bool {
	if i == nil || i.Status != IncidentOngoing {
		return false
	}
	d := at.Sub(i.CreatedAt).Seconds()
	i.Status = IncidentResolved
	i.ResolvedAt = &at
	i.DurationSeconds = &d
	return true
}

type TransitionKind string

const (
	TransitionDown      TransitionKind = "down"
	TransitionRecovered TransitionKind = "recovered"
)

// Transition is emitted by the check executor when a monitor opens or
// resolves an incident.
type Transition struct {
	Kind      TransitionKind
	Monitor   Monitor
	Incidents []Incident
	Error     string
	At        time.Time
}
