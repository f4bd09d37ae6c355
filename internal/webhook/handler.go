package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/labstack/gommon/log"

	"github.com/jask/finsync/internal/database/repository"
	"github.com/jask/finsync/internal/service"
)

const (
	defaultMaxBodyBytes = 1 << 20
	securitySource      = "pluggy_webhook"
)

// Signature headers, checked in order.
var signatureHeaders = []string{"x-pluggy-signature", "x-webhook-signature"}

// EventHandler applies a verified event.
type EventHandler interface {
	Handle(ctx context.Context, ev service.Event) error
}

// Handler is the inbound aggregator webhook. The signature is checked on the
// raw body before anything is parsed or stored.
type Handler struct {
	Secret       string
	Events       EventHandler
	Security     *repository.SecurityEventRepo
	Logs         *repository.IntegrationLogRepo
	Logger       *log.Logger
	MaxBodyBytes int64
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.logger().Warnj(log.JSON{"component": "webhook", "error": "body too large", "limit": tooLarge.Limit})
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"error": "payload too large"})
		return
	}
	if err != nil {
		h.logger().Errorf("[Webhook] read body: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "could not read body"})
		return
	}

	signature := firstHeader(r, signatureHeaders...)
	if err := Verify(h.Secret, body, signature); err != nil {
		h.reject(r, err)
		switch {
		case errors.Is(err, ErrMissingSecret):
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "webhook secret not configured"})
		case errors.Is(err, ErrMissingSignature):
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "missing signature"})
		default:
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid signature"})
		}
		return
	}

	var ev service.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		h.logger().Warnj(log.JSON{"component": "webhook", "error": "invalid payload"})
		h.integrationError(r.Context(), "invalid_payload", "invalid JSON payload")
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}

	// A delivery runs to completion even if the sender hangs up.
	if err := h.Events.Handle(context.WithoutCancel(r.Context()), ev); err != nil {
		h.logger().Errorj(log.JSON{"component": "webhook", "event": ev.Event, "item_id": ev.ItemID, "error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// reject records a failed signature check.
func (h *Handler) reject(r *http.Request, cause error) {
	ctx := r.Context()
	eventType := "webhook_invalid_signature"
	switch {
	case errors.Is(cause, ErrMissingSecret):
		eventType = "webhook_secret_missing"
	case errors.Is(cause, ErrMissingSignature):
		eventType = "webhook_signature_missing"
	}
	ip, ua := clientIP(r), r.UserAgent()
	h.logger().Warnj(log.JSON{"component": "webhook", "security_event": eventType, "ip": ip})

	evt := repository.SecurityEvent{
		ID:        uuid.NewString(),
		EventType: eventType,
		Severity:  repository.SeverityCritical,
		Source:    securitySource,
		IPAddress: optional(ip),
		UserAgent: optional(ua),
		Details:   repository.Details(map[string]any{"path": r.URL.Path, "reason": cause.Error()}),
	}
	if err := h.Security.Add(ctx, evt); err != nil {
		h.logger().Errorf("[Webhook] record security event: %v", err)
	}
	if !errors.Is(cause, ErrMissingSecret) {
		h.integrationError(ctx, eventType, cause.Error())
	}
}

func (h *Handler) integrationError(ctx context.Context, eventType, message string) {
	entry := repository.IntegrationLog{
		ID:          uuid.NewString(),
		Integration: service.IntegrationPluggy,
		EventType:   eventType,
		Status:      repository.LogError,
		Message:     &message,
	}
	if err := h.Logs.Add(ctx, entry); err != nil {
		h.logger().Errorf("[Webhook] write integration log: %v", err)
	}
}

// NewRouter mounts the webhook and a health check.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/webhooks/pluggy", h).Methods(http.MethodPost)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}).Methods(http.MethodGet)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func firstHeader(r *http.Request, names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(r.Header.Get(n)); v != "" {
			return v
		}
	}
	return ""
}

// clientIP prefers the first x-forwarded-for hop, then x-real-ip.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("x-forwarded-for"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	if xr := strings.TrimSpace(r.Header.Get("x-real-ip")); xr != "" {
		return xr
	}
	return ""
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (h *Handler) logger() *log.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return discard
}
