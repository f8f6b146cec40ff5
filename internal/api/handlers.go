package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/supermqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/supermqtt/internal/journal"
	"github.com/nerrad567/supermqtt/internal/pubsub"
)

// healthCheckTimeout bounds each component check.
const healthCheckTimeout = 2 * time.Second

// HealthResponse is the body of GET /health. Components maps each backing
// component to "ok" or its failure.
type HealthResponse struct {
	Status     string            `json:"status"`
	MQTT       string            `json:"mqtt"`
	Components map[string]string `json:"components,omitempty"`
	Version    string            `json:"version"`
}

// handleHealth reports 200 while the client is connected and every
// component answers, and 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", MQTT: s.client.State().String(), Version: s.version}
	healthy := s.client.HealthCheck(r.Context()) == nil

	if len(s.checks) > 0 {
		resp.Components = make(map[string]string, len(s.checks))
		for name, check := range s.checks {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := check.HealthCheck(ctx)
			cancel()
			if err != nil {
				resp.Components[name] = err.Error()
				healthy = false
				continue
			}
			resp.Components[name] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	State         string `json:"state"`
	Connected     bool   `json:"connected"`
	ClientID      string `json:"client_id,omitempty"`
	StreamClients int    `json:"stream_clients"`
	Version       string `json:"version"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		State:         s.client.State().String(),
		Connected:     s.client.IsConnected(),
		ClientID:      s.client.ClientID(),
		StreamClients: s.hub.ClientCount(),
		Version:       s.version,
	})
}

// handleListFaults serves a journal page. Query: kind, limit, offset.
func (s *Server) handleListFaults(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "fault journal is disabled")
		return
	}

	q := r.URL.Query()
	filter := journal.Filter{Kind: q.Get("kind")}
	if filter.Kind != "" && filter.Kind != journal.KindFault && filter.Kind != journal.KindDisconnected {
		writeBadRequest(w, "kind must be fault or disconnected")
		return
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be an integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be an integer")
		return
	}

	res, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing journal failed", "error", err)
		writeInternalError(w, "failed to list faults")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetFault(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "fault journal is disabled")
		return
	}

	entry, err := s.journal.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, journal.ErrNotFound) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "fault not found")
		return
	}
	if err != nil {
		s.logger.Error("reading journal failed", "error", err)
		writeInternalError(w, "failed to read fault")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// PublishRequest is the body of POST /publish. Payload is sent verbatim as
// UTF-8 text.
type PublishRequest struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
	QoS     int    `json:"qos"`
	Retain  bool   `json:"retain"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Topic == "" {
		writeBadRequest(w, "topic is required")
		return
	}

	res := s.client.Publish(r.Context(), req.Topic, []byte(req.Payload),
		pubsub.WithQoS(req.QoS), pubsub.WithRetain(req.Retain))
	writeResult(w, res)
}

// SubscriptionRequest is the body of POST and DELETE /subscriptions. QoS is
// ignored on DELETE.
type SubscriptionRequest struct {
	Topics []string `json:"topics"`
	QoS    int      `json:"qos"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscriptionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	qos := pubsub.QoSFromLevel(req.QoS)
	filters := make([]mqtt.TopicFilter, len(req.Topics))
	for i, t := range req.Topics {
		filters[i] = mqtt.TopicFilter{Topic: t, QoS: qos}
	}
	writeResult(w, s.client.SubscribeFilters(r.Context(), filters...))
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscriptionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeResult(w, s.client.Unsubscribe(r.Context(), req.Topics...))
}

// decodeBody decodes a JSON body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return false
		}
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}
