package pluggy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Date accepts both RFC 3339 timestamps and bare YYYY-MM-DD dates.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("pluggy: date: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("pluggy: unrecognized date %q", s)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Time.Format(time.RFC3339))
}

// Connector is the financial institution behind an item.
type Connector struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl"`
}

// Item is an aggregator connection as returned by GET /items/{id}.
type Item struct {
	ID              string     `json:"id"`
	Status          string     `json:"status"`
	ExecutionStatus string     `json:"executionStatus"`
	Connector       *Connector `json:"connector"`
	UpdatedAt       Date       `json:"updatedAt"`
}

// ConnectorName returns the institution display name, or "" when unknown.
func (it *Item) ConnectorName() string {
	if it == nil || it.Connector == nil {
		return ""
	}
	return strings.TrimSpace(it.Connector.Name)
}

// Transaction is one upstream transaction record. Raw holds the exact JSON
// object it was decoded from.
type Transaction struct {
	ID             string          `json:"id"`
	AccountID      string          `json:"accountId"`
	Date           Date            `json:"date"`
	Description    string          `json:"description"`
	DescriptionRaw string          `json:"descriptionRaw"`
	Amount         decimal.Decimal `json:"amount"`
	CurrencyCode   string          `json:"currencyCode"`
	Type           string          `json:"type"`
	Status         string          `json:"status"`

	Raw json.RawMessage `json:"-"`
}

// TransactionQuery selects transactions by account, or by item when no
// account is given.
type TransactionQuery struct {
	AccountID string
	ItemID    string
}

// RejectedRecord is an upstream transaction that could not be decoded.
type RejectedRecord struct {
	Page  int
	Index int
	ID    string
	Err   error
}

// TransactionList is the result of one fetch. Records that fail to decode
// are reported in Rejected and do not stop the rest of the pages.
type TransactionList struct {
	Transactions []Transaction
	Rejected     []RejectedRecord
}

// Len counts every record the aggregator returned.
func (l TransactionList) Len() int { return len(l.Transactions) + len(l.Rejected) }

// recordID pulls the id out of a record that failed full decoding.
func recordID(raw json.RawMessage) string {
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return ""
	}
	return head.ID
}

type transactionPage struct {
	Total      int               `json:"total"`
	TotalPages int               `json:"totalPages"`
	Page       int               `json:"page"`
	Results    []json.RawMessage `json:"results"`
}

type authRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

type authResponse struct {
	APIKey string `json:"apiKey"`
}

type errorBody struct {
	Message string `json:"message"`
	Code    any    `json:"code"`
}
