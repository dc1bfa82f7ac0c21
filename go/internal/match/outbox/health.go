package outbox

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type HealthStatus struct {
	Healthy         bool      `json:"healthy"`
	EventsPublished uint64    `json:"events_published"`
	LastPublishTime time.Time `json:"last_publish_time"`
	PendingEvents   int       `json:"pending_events"`
	BusConnected    *bool     `json:"bus_connected,omitempty"`
	RelayActive     bool      `json:"relay_active"`
	Errors          []string  `json:"errors"`
}

// connectivity is implemented by publishers that hold a connection
type connectivity interface {
	Connected() bool
}

type HealthChecker struct {
	relay     *Relay
	publisher Publisher
	threshold time.Duration // How long pending events may wait before unhealthy
}

func NewHealthChecker(relay *Relay, publisher Publisher, threshold time.Duration) *HealthChecker {
	return &HealthChecker{
		relay:     relay,
		publisher: publisher,
		threshold: threshold,
	}
}

func (h *HealthChecker) Check(now time.Time) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}

	status.EventsPublished, status.LastPublishTime = h.relay.Stats()
	status.PendingEvents = h.relay.Pending()

	if c, ok := h.publisher.(connectivity); ok {
		connected := c.Connected()
		status.BusConnected = &connected
		if !connected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	status.RelayActive = h.relay.Running()
	if !status.RelayActive {
		status.Healthy = false
		status.Errors = append(status.Errors, "relay not active")
	}

	if status.PendingEvents > h.relay.config.BufferSize*3/4 {
		status.Errors = append(status.Errors, fmt.Sprintf("high pending event count: %d", status.PendingEvents))
	}

	// Stalled: events waiting but nothing published recently
	if status.PendingEvents > 0 && !status.LastPublishTime.IsZero() {
		if since := now.Sub(status.LastPublishTime); since > h.threshold {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("no events published for %s", since))
		}
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check(time.Now())

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to encode outbox health")
	}
}
