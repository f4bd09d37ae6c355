package repository

import (
	"context"
	"database/sql"
	"encoding/json"
)

// IntegrationLogRepo appends integration log rows.
type IntegrationLogRepo struct{ db *sql.DB }

func NewIntegrationLogRepo(db *sql.DB) *IntegrationLogRepo { return &IntegrationLogRepo{db: db} }

func (r *IntegrationLogRepo) Add(ctx context.Context, l IntegrationLog) error {
	if l.Details == "" {
		l.Details = "{}"
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO integration_logs(id, organization_id, integration, event_type, status, message, details, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, l.ID, l.OrganizationID, l.Integration, l.EventType, l.Status, l.Message, l.Details)
	return err
}

// List returns logs for an integration, oldest first.
func (r *IntegrationLogRepo) List(ctx context.Context, integration string) ([]IntegrationLog, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, organization_id, integration, event_type, status, message, details, created_at
	FROM integration_logs WHERE integration = ? ORDER BY created_at, rowid
	`, integration)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []IntegrationLog
	for rows.Next() {
		var l IntegrationLog
		var org, message sql.NullString
		if err := rows.Scan(&l.ID, &org, &l.Integration, &l.EventType, &l.Status, &message, &l.Details, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.OrganizationID = nullString(org)
		l.Message = nullString(message)
		out = append(out, l)
	}
	return out, rows.Err()
}

// SecurityEventRepo appends security audit rows.
type SecurityEventRepo struct{ db *sql.DB }

func NewSecurityEventRepo(db *sql.DB) *SecurityEventRepo { return &SecurityEventRepo{db: db} }

func (r *SecurityEventRepo) Add(ctx context.Context, e SecurityEvent) error {
	if e.Details == "" {
		e.Details = "{}"
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO security_events(id, organization_id, event_type, severity, source, ip_address, user_agent, details, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, e.ID, e.OrganizationID, e.EventType, e.Severity, e.Source, e.IPAddress, e.UserAgent, e.Details)
	return err
}

func (r *SecurityEventRepo) List(ctx context.Context) ([]SecurityEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, organization_id, event_type, severity, source, ip_address, user_agent, details, created_at
	FROM security_events ORDER BY created_at, rowid
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SecurityEvent
	for rows.Next() {
		var e SecurityEvent
		var org, ip, ua sql.NullString
		if err := rows.Scan(&e.ID, &org, &e.EventType, &e.Severity, &e.Source, &ip, &ua, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.OrganizationID = nullString(org)
		e.IPAddress = nullString(ip)
		e.UserAgent = nullString(ua)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Details marshals v for a details column, falling back to an empty object.
func Details(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return "{}"
	}
	return string(b)
}
