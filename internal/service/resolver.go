package service

import (
	"context"
	"fmt"

	"github.com/jask/finsync/internal/database/repository"
)

// Identity is what the pipeline knows about an upstream item. Either facet
// may be nil; both are updated when present.
type Identity struct {
	ItemID         string
	Item           *repository.OpenFinanceItem
	Connection     *repository.BankConnection
	OrganizationID string
}

// Resolved reports whether a tenant could be determined.
func (id Identity) Resolved() bool { return id.OrganizationID != "" }

// ConnectorName returns the stored institution name, if any.
func (id Identity) ConnectorName() string {
	if id.Item != nil && id.Item.ConnectorName != nil && *id.Item.ConnectorName != "" {
		return *id.Item.ConnectorName
	}
	if id.Connection != nil && id.Connection.ProviderName != nil {
		return *id.Connection.ProviderName
	}
	return ""
}

// Resolver maps an upstream item id to the internal records.
type Resolver struct {
	Items       *repository.OpenFinanceItemRepo
	Connections *repository.BankConnectionRepo
}

func (r *Resolver) Resolve(ctx context.Context, itemID string) (Identity, error) {
	id := Identity{ItemID: itemID}
	if itemID == "" {
		return id, nil
	}
	item, err := r.Items.ByPluggyID(ctx, itemID)
	if err != nil {
		return id, fmt.Errorf("lookup item %s: %w", itemID, err)
	}
	conn, err := r.Connections.ByExternalID(ctx, itemID, repository.ProviderPluggy)
	if err != nil {
		return id, fmt.Errorf("lookup connection %s: %w", itemID, err)
	}
	id.Item, id.Connection = item, conn
	switch {
	case item != nil && item.OrganizationID != "":
		id.OrganizationID = item.OrganizationID
	case conn != nil:
		id.OrganizationID = conn.OrganizationID
	}
	return id, nil
}
