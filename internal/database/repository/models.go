package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProviderPluggy is the aggregator name stored on bank connections.
const ProviderPluggy = "pluggy"

// Bank connection statuses.
const (
	ConnectionPending      = "pending"
	ConnectionActive       = "active"
	ConnectionExpired      = "expired"
	ConnectionRevoked      = "revoked"
	ConnectionDisconnected = "disconnected"
	ConnectionError        = "error"
)

// Open Finance item statuses.
const (
	ItemInProgress   = "in_progress"
	ItemCompleted    = "completed"
	ItemDisconnected = "disconnected"
	ItemError        = "error"
)

// Transaction types. Only income and expense are ever inferred by the sync.
const (
	TypeIncome     = "income"
	TypeExpense    = "expense"
	TypeTransfer   = "transfer"
	TypeInvestment = "investment"
	TypeRedemption = "redemption"
)

// Classification sources.
const (
	SourceRule    = "rule"
	SourcePattern = "pattern"
	SourceAI      = "ai"
)

// Validation statuses.
const (
	PendingValidation = "pending_validation"
	Validated         = "validated"
	Rejected          = "rejected"
	NeedsReview       = "needs_review"
)

// Integration log statuses.
const (
	LogSuccess = "success"
	LogError   = "error"
	LogInfo    = "info"
	LogIgnored = "ignored"
)

// Security event severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Sync log statuses.
const (
	SyncRunning = "running"
	SyncSuccess = "success"
	SyncError   = "error"
)

// BankConnection is the legacy representation of an aggregator item.
type BankConnection struct {
	ID                string
	OrganizationID    string
	Provider          string
	ExternalAccountID string
	ProviderName      *string
	Status            string
	LastSyncAt        *time.Time
	SyncError         *string
	Metadata          string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// OpenFinanceItem is the newer representation of the same aggregator item.
type OpenFinanceItem struct {
	ID                  string
	OrganizationID      string
	PluggyItemID        string
	ConnectorName       *string
	Status              string
	ExecutionStatus     *string
	ConsecutiveFailures int
	ErrorMessage        *string
	ErrorCode           *string
	LastSyncAt          *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Account represents an account row.
type Account struct {
	ID                string
	OrganizationID    string
	BankConnectionID  *string
	ExternalAccountID *string
	Name              string
	Institution       *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Category represents a category row.
type Category struct {
	ID             string
	OrganizationID string
	Name           string
	Type           string
	IsActive       bool
}

// Transaction represents a transaction row. Amount is never negative; the
// sign lives in Type.
type Transaction struct {
	ID                    string
	OrganizationID        string
	AccountID             string
	BankConnectionID      *string
	ExternalTransactionID *string
	SyncDedupKey          *string
	Date                  time.Time
	Description           string
	Amount                decimal.Decimal
	Type                  string
	CategoryID            *string
	CostCenterID          *string
	ClassificationSource  *string
	ValidationStatus      string
	Notes                 *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Classification is the set of fields the classification cascade writes.
type Classification struct {
	CategoryID       *string
	CostCenterID     *string
	Source           string
	ValidationStatus string
}

// ReconciliationRule is a user-authored description -> category mapping.
type ReconciliationRule struct {
	ID              string
	OrganizationID  string
	Description     string
	CategoryID      *string
	CostCenterID    *string
	TransactionType string
	Amount          decimal.NullDecimal
	IsActive        bool
	CreatedAt       time.Time
}

// TransactionPattern is a learned description -> category mapping.
type TransactionPattern struct {
	ID                    string
	OrganizationID        string
	NormalizedDescription string
	CategoryID            *string
	CostCenterID          *string
	TransactionType       string
	Confidence            float64
	Occurrences           int
	LastUsedAt            *time.Time
	CreatedAt             time.Time
}

// IntegrationLog is an append-only record of a webhook or sync outcome.
type IntegrationLog struct {
	ID             string
	OrganizationID *string
	Integration    string
	EventType      string
	Status         string
	Message        *string
	Details        string
	CreatedAt      time.Time
}

// SecurityEvent is an append-only audit record for rejected requests.
type SecurityEvent struct {
	ID             string
	OrganizationID *string
	EventType      string
	Severity       string
	Source         string
	IPAddress      *string
	UserAgent      *string
	Details        string
	CreatedAt      time.Time
}

// RawData archives an upstream payload keyed by organization, type and id.
type RawData struct {
	ID             string
	OrganizationID string
	DataType       string
	ExternalID     string
	ItemID         *string
	Payload        string
}

// SyncLog is the summary row for one sync attempt.
type SyncLog struct {
	ID             string
	OrganizationID string
	ItemID         string
	SyncType       string
	Status         string
	Fetched        int
	Imported       int
	Skipped        int
	Failed         int
	Classified     int
	ErrorMessage   *string
	StartedAt      time.Time
	FinishedAt     *time.Time
}
