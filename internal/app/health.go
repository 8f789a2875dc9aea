package app

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

type PingFunc func(ctx context.Context) error

// SinkState is the part of the replication sink health reporting needs.
type SinkState interface {
	Connected() bool
	Depth() int
}

type HealthDTO struct {
	Status           string `json:"status"`
	Ledger           string `json:"ledger"`
	Staging          string `json:"staging"`
	Replication      string `json:"replication"`
	ReplicationQueue int    `json:"replicationQueue"`
}

type HealthHandler struct {
	ledger  PingFunc
	staging PingFunc
	sink    SinkState
}

func NewHealthHandler(ledger, staging PingFunc, sink SinkState) *HealthHandler {
	return &HealthHandler{ledger: ledger, staging: staging, sink: sink}
}

// Check answers 503 when either store is unreachable. A disconnected sink only degrades the status.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	health := HealthDTO{
		Status:           "ok",
		Ledger:           probe(ctx, h.ledger),
		Staging:          probe(ctx, h.staging),
		Replication:      "connected",
		ReplicationQueue: h.sink.Depth(),
	}
	if !h.sink.Connected() {
		health.Replication = "disconnected"
		health.Status = "degraded"
	}
	status := http.StatusOK
	if health.Ledger != "ok" || health.Staging != "ok" {
		health.Status = "down"
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(health); err != nil {
		log.Errorf("could not encode health: %v", err)
	}
}

func probe(ctx context.Context, ping PingFunc) string {
	if err := ping(ctx); err != nil {
		log.Warnf("health probe failed: %v", err)
		return "unreachable"
	}
	return "ok"
}
