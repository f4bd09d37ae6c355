package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/jask/finsync/internal/database/repository"
)

// Webhook event types.
const (
	EventItemCreated         = "item/created"
	EventItemUpdated         = "item/updated"
	EventItemError           = "item/error"
	EventItemDeleted         = "item/deleted"
	EventTransactionsCreated = "transactions/created"
)

// IntegrationPluggy names integration log rows written by the pipeline.
const IntegrationPluggy = "pluggy"

// Event is the inbound webhook envelope.
type Event struct {
	Event     string      `json:"event"`
	EventID   string      `json:"eventId,omitempty"`
	ItemID    string      `json:"itemId"`
	AccountID string      `json:"accountId,omitempty"`
	Data      *EventData  `json:"data,omitempty"`
	Error     *EventError `json:"error,omitempty"`
}

type EventData struct {
	Status          string      `json:"status,omitempty"`
	ExecutionStatus string      `json:"executionStatus,omitempty"`
	Message         string      `json:"message,omitempty"`
	Code            string      `json:"code,omitempty"`
	Error           *EventError `json:"error,omitempty"`
}

type EventError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// succeeded reports whether the upstream refresh finished well.
func (e Event) succeeded() bool {
	if e.Data == nil {
		return false
	}
	switch strings.ToUpper(e.Data.ExecutionStatus) {
	case "SUCCESS", "PARTIAL_SUCCESS":
		return true
	}
	return strings.EqualFold(e.Data.Status, "UPDATED")
}

func (e Event) executionStatus() *string {
	if e.Data == nil || e.Data.ExecutionStatus == "" {
		return nil
	}
	s := e.Data.ExecutionStatus
	return &s
}

// errorDetails returns the upstream error message and code, if any.
func (e Event) errorDetails() (message, code string) {
	if d := e.Data; d != nil {
		if d.Error != nil {
			message, code = d.Error.Message, d.Error.Code
		}
		message = firstNonEmpty(message, d.Message)
		code = firstNonEmpty(code, d.Code)
	}
	if e.Error != nil {
		message = firstNonEmpty(message, e.Error.Message)
		code = firstNonEmpty(code, e.Error.Code)
	}
	return message, code
}

// Syncer imports transactions for a resolved item.
type Syncer interface {
	SyncItem(ctx context.Context, req SyncRequest) (SyncResult, error)
}

// EventRouter applies webhook events to connection and item state. Every
// event produces exactly one integration log row.
type EventRouter struct {
	Resolver    *Resolver
	Connections *repository.BankConnectionRepo
	Items       *repository.OpenFinanceItemRepo
	Sync        Syncer
	Logs        *repository.IntegrationLogRepo
	Logger      *log.Logger
	Now         func() time.Time
}

func (r *EventRouter) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

// Handle dispatches one verified event. Only storage failures are returned;
// upstream sync failures are logged and swallowed.
func (r *EventRouter) Handle(ctx context.Context, ev Event) error {
	id, err := r.Resolver.Resolve(ctx, ev.ItemID)
	if err != nil {
		return err
	}
	logger := loggerOr(r.Logger)
	logger.Infoj(log.JSON{"component": "events", "event": ev.Event, "item_id": ev.ItemID, "resolved": id.Resolved()})

	switch ev.Event {
	case EventItemCreated, EventItemUpdated:
		return r.itemRefreshed(ctx, ev, id)
	case EventItemError:
		return r.itemFailed(ctx, ev, id)
	case EventItemDeleted:
		return r.itemDeleted(ctx, ev, id)
	case EventTransactionsCreated:
		return r.transactionsCreated(ctx, ev, id)
	default:
		return r.log(ctx, ev, id, repository.LogIgnored, "unhandled event", nil)
	}
}

func (r *EventRouter) itemRefreshed(ctx context.Context, ev Event, id Identity) error {
	if !id.Resolved() {
		return r.log(ctx, ev, id, repository.LogInfo, "no matching item or connection", nil)
	}
	if ev.succeeded() {
		at := r.now()
		if id.Connection != nil {
			if err := r.Connections.MarkActive(ctx, id.Connection.ID, at); err != nil {
				return fmt.Errorf("mark connection active: %w", err)
			}
		}
		if id.Item != nil {
			if err := r.Items.RecordSuccess(ctx, id.Item.ID, ev.executionStatus(), at); err != nil {
				return fmt.Errorf("record item success: %w", err)
			}
		}
		return r.log(ctx, ev, id, repository.LogSuccess, "item synchronized", nil)
	}

	message, code := ev.errorDetails()
	if id.Connection != nil {
		if err := r.Connections.SetStatus(ctx, id.Connection.ID, repository.ConnectionPending, optional(message)); err != nil {
			return fmt.Errorf("mark connection pending: %w", err)
		}
	}
	if id.Item != nil {
		if err := r.Items.RecordFailure(ctx, id.Item.ID, repository.ItemInProgress, ev.executionStatus(), optional(message), optional(code)); err != nil {
			return fmt.Errorf("record item progress: %w", err)
		}
	}
	return r.log(ctx, ev, id, repository.LogInfo, "item not yet synchronized", map[string]any{"error_message": message, "error_code": code})
}

func (r *EventRouter) itemFailed(ctx context.Context, ev Event, id Identity) error {
	message, code := ev.errorDetails()
	if message == "" {
		message = "unknown error"
	}
	if id.Connection != nil {
		if err := r.Connections.SetStatus(ctx, id.Connection.ID, repository.ConnectionError, &message); err != nil {
			return fmt.Errorf("mark connection error: %w", err)
		}
	}
	if id.Item != nil {
		if err := r.Items.RecordFailure(ctx, id.Item.ID, repository.ItemError, ev.executionStatus(), &message, optional(code)); err != nil {
			return fmt.Errorf("record item error: %w", err)
		}
	}
	return r.log(ctx, ev, id, repository.LogError, message, map[string]any{"error_code": code})
}

func (r *EventRouter) itemDeleted(ctx context.Context, ev Event, id Identity) error {
	if id.Connection != nil {
		if err := r.Connections.SetStatus(ctx, id.Connection.ID, repository.ConnectionDisconnected, nil); err != nil {
			return fmt.Errorf("mark connection disconnected: %w", err)
		}
	}
	if id.Item != nil {
		if err := r.Items.SetStatus(ctx, id.Item.ID, repository.ItemDisconnected); err != nil {
			return fmt.Errorf("mark item disconnected: %w", err)
		}
	}
	return r.log(ctx, ev, id, repository.LogInfo, "item disconnected", nil)
}

func (r *EventRouter) transactionsCreated(ctx context.Context, ev Event, id Identity) error {
	if !id.Resolved() {
		return r.log(ctx, ev, id, repository.LogInfo, "no matching item or connection", nil)
	}
	res, err := r.Sync.SyncItem(ctx, SyncRequest{Identity: id, AccountID: ev.AccountID, SyncType: SyncTypeWebhook})
	if err != nil {
		msg := err.Error()
		loggerOr(r.Logger).Errorj(log.JSON{"component": "events", "item_id": id.ItemID, "sync_error": msg})
		if id.Connection != nil {
			if serr := r.Connections.SetSyncError(ctx, id.Connection.ID, msg); serr != nil {
				return fmt.Errorf("record sync error: %w", serr)
			}
		}
		return r.log(ctx, ev, id, repository.LogError, "sync failed: "+msg, nil)
	}
	return r.log(ctx, ev, id, repository.LogSuccess, "transactions imported", map[string]any{
		"fetched":    res.Fetched,
		"imported":   res.Imported,
		"skipped":    res.Skipped,
		"failed":     res.Failed,
		"classified": res.Classified,
		"validated":  res.Validated,
	})
}

func (r *EventRouter) log(ctx context.Context, ev Event, id Identity, status, message string, extra map[string]any) error {
	details := map[string]any{"item_id": ev.ItemID}
	if ev.AccountID != "" {
		details["account_id"] = ev.AccountID
	}
	if ev.EventID != "" {
		details["event_id"] = ev.EventID
	}
	for k, v := range extra {
		details[k] = v
	}
	entry := repository.IntegrationLog{
		ID:          uuid.NewString(),
		Integration: IntegrationPluggy,
		EventType:   ev.Event,
		Status:      status,
		Message:     &message,
		Details:     repository.Details(details),
	}
	if id.Resolved() {
		org := id.OrganizationID
		entry.OrganizationID = &org
	}
	if err := r.Logs.Add(ctx, entry); err != nil {
		return fmt.Errorf("write integration log: %w", err)
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
