package orchestrator

import (
	"simplane/internal/store"
	"simplane/pkg/api"
)

// SessionView converts a session to its wire form.
func SessionView(s store.Session) api.SessionResponse {
	return api.SessionResponse{
		ID:            s.ID.String(),
		DesignID:      s.DesignID.String(),
		Name:          s.Name,
		Description:   s.Description,
		Configuration: document(s.Configuration),
		Results:       document(s.Results),
		Status:        string(s.Status),
		StartedBy:     s.StartedBy.String(),
		StartedAt:     s.StartedAt,
		CompletedAt:   s.CompletedAt,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

// SessionDetailsView converts a session and its history to its wire form.
func SessionDetailsView(d SessionDetails) api.SessionDetailsResponse {
	out := api.SessionDetailsResponse{
		SessionResponse: SessionView(d.Session),
		Events:          make([]api.EventResponse, 0, len(d.Events)),
		Metrics:         make([]api.MetricResponse, 0, len(d.Metrics)),
		Faults:          make([]api.FaultResponse, 0, len(d.Faults)),
	}
	for _, e := range d.Events {
		out.Events = append(out.Events, EventView(e))
	}
	for _, m := range d.Metrics {
		out.Metrics = append(out.Metrics, MetricView(m))
	}
	for _, f := range d.Faults {
		out.Faults = append(out.Faults, FaultView(f))
	}
	return out
}

func EventView(e store.Event) api.EventResponse {
	return api.EventResponse{
		ID:          e.ID.String(),
		SessionID:   e.SessionID.String(),
		EventType:   e.EventType,
		ComponentID: e.ComponentID,
		Timestamp:   e.Timestamp,
		Data:        document(e.Data),
		CreatedAt:   e.CreatedAt,
	}
}

func MetricView(m store.Metric) api.MetricResponse {
	return api.MetricResponse{
		ID:          m.ID.String(),
		SessionID:   m.SessionID.String(),
		MetricName:  m.MetricName,
		ComponentID: m.ComponentID,
		Timestamp:   m.Timestamp,
		Value:       m.Value,
		Unit:        m.Unit,
		Tags:        document(m.Tags),
		CreatedAt:   m.CreatedAt,
	}
}

func FaultView(f store.Fault) api.FaultResponse {
	return api.FaultResponse{
		ID:              f.ID.String(),
		SessionID:       f.SessionID.String(),
		FaultType:       f.FaultType,
		TargetComponent: f.TargetComponent,
		Parameters:      document(f.Parameters),
		StartTime:       f.StartTime,
		Duration:        f.Duration,
		Status:          string(f.Status),
		CreatedAt:       f.CreatedAt,
	}
}

// document never returns nil so that empty documents encode as {}.
func document(d store.Document) map[string]any {
	if d == nil {
		return map[string]any{}
	}
	return d
}
