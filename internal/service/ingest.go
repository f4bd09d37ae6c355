package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/jask/finsync/internal/database/repository"
	"github.com/jask/finsync/internal/pluggy"
)

const (
	genericConnectorName   = "Open Finance"
	genericDescription     = "Via Open Finance"
	rawDataTypeTransaction = "transaction"
)

// Sync types recorded on sync logs.
const (
	SyncTypeWebhook = "webhook"
	SyncTypeManual  = "manual"
)

// ErrUnresolved is returned when a sync is requested for an item with no tenant.
var ErrUnresolved = errors.New("service: item not linked to an organization")

// Classifier classifies one freshly imported transaction.
type Classifier interface {
	CategorizeTransaction(ctx context.Context, tx repository.Transaction) (Outcome, error)
}

// SyncRequest selects what to import.
type SyncRequest struct {
	Identity  Identity
	AccountID string
	SyncType  string
}

// SyncResult holds the per-delivery counters.
type SyncResult struct {
	Fetched       int
	Imported      int
	Skipped       int
	Failed        int
	Classified    int
	Validated     int
	ConnectorName string
}

// SyncService fetches upstream transactions, drops duplicates, stores the
// rest and classifies them.
type SyncService struct {
	Upstream     *pluggy.Client
	Connections  *repository.BankConnectionRepo
	Items        *repository.OpenFinanceItemRepo
	Accounts     *repository.AccountRepo
	Transactions *repository.TransactionRepo
	RawData      *repository.RawDataRepo
	SyncLogs     *repository.SyncLogRepo
	Categorizer  Classifier
	Logger       *log.Logger
	Now          func() time.Time
}

func (s *SyncService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// SyncItem runs one full import for the request. Upstream auth and fetch
// failures abort the sync and are returned; per-row failures only bump
// counters.
func (s *SyncService) SyncItem(ctx context.Context, req SyncRequest) (SyncResult, error) {
	var res SyncResult
	id := req.Identity
	if !id.Resolved() {
		return res, ErrUnresolved
	}
	logger := loggerOr(s.Logger)
	syncType := req.SyncType
	if syncType == "" {
		syncType = SyncTypeWebhook
	}

	syncLog := repository.SyncLog{
		ID:             uuid.NewString(),
		OrganizationID: id.OrganizationID,
		ItemID:         id.ItemID,
		SyncType:       syncType,
		StartedAt:      s.now(),
	}
	if err := s.SyncLogs.Start(ctx, syncLog); err != nil {
		return res, fmt.Errorf("start sync log: %w", err)
	}

	res, err := s.run(ctx, req, logger)
	syncLog.Status = repository.SyncSuccess
	if err != nil {
		msg := err.Error()
		syncLog.Status = repository.SyncError
		syncLog.ErrorMessage = &msg
	}
	finished := s.now()
	syncLog.FinishedAt = &finished
	syncLog.Fetched, syncLog.Imported, syncLog.Skipped = res.Fetched, res.Imported, res.Skipped
	syncLog.Failed, syncLog.Classified = res.Failed, res.Classified
	if ferr := s.SyncLogs.Finish(ctx, syncLog); ferr != nil {
		logger.Errorf("[Sync] finish sync log %s: %v", syncLog.ID, ferr)
	}
	return res, err
}

func (s *SyncService) run(ctx context.Context, req SyncRequest, logger *log.Logger) (SyncResult, error) {
	var res SyncResult
	id := req.Identity

	session, err := s.Upstream.Authenticate(ctx)
	if err != nil {
		if pluggy.IsUnauthorized(err) {
			return res, fmt.Errorf("aggregator rejected credentials: %w", err)
		}
		return res, err
	}

	res.ConnectorName = s.connectorName(ctx, session, id, logger)

	query := pluggy.TransactionQuery{AccountID: req.AccountID, ItemID: id.ItemID}
	upstream, err := session.Transactions(ctx, query)
	if err != nil {
		return res, err
	}
	res.Fetched = upstream.Len()
	for _, rej := range upstream.Rejected {
		res.Failed++
		logger.Errorj(log.JSON{
			"component":      "sync",
			"item_id":        id.ItemID,
			"transaction_id": rej.ID,
			"page":           rej.Page,
			"index":          rej.Index,
			"decode_error":   rej.Err.Error(),
		})
	}

	accounts := make(map[string]repository.Account)
	var inserted []repository.Transaction
	for _, up := range upstream.Transactions {
		tx, status := s.materialize(ctx, id, req.AccountID, res.ConnectorName, up, accounts, logger)
		switch status {
		case rowImported:
			res.Imported++
			inserted = append(inserted, tx)
		case rowSkipped:
			res.Skipped++
		default:
			res.Failed++
		}
	}

	for _, tx := range inserted {
		out, ok := s.classify(ctx, tx, logger)
		if !ok {
			continue
		}
		if out.Classified() {
			res.Classified++
		}
		if out.Validated {
			res.Validated++
		}
	}

	at := s.now()
	var connector *string
	if res.ConnectorName != "" && res.ConnectorName != genericConnectorName {
		connector = &res.ConnectorName
	}
	if id.Connection != nil {
		if err := s.Connections.MarkSynced(ctx, id.Connection.ID, at, connector); err != nil {
			logger.Errorf("[Sync] mark connection %s synced: %v", id.Connection.ID, err)
		}
	}
	if id.Item != nil {
		if err := s.Items.MarkSynced(ctx, id.Item.ID, at, connector); err != nil {
			logger.Errorf("[Sync] mark item %s synced: %v", id.Item.ID, err)
		}
	}

	logger.Infoj(log.JSON{
		"component":  "sync",
		"item_id":    id.ItemID,
		"org_id":     id.OrganizationID,
		"fetched":    res.Fetched,
		"imported":   res.Imported,
		"skipped":    res.Skipped,
		"failed":     res.Failed,
		"classified": res.Classified,
	})
	return res, nil
}

// connectorName fetches the institution name, falling back to what is
// stored locally and then to a generic label.
func (s *SyncService) connectorName(ctx context.Context, session *pluggy.Session, id Identity, logger *log.Logger) string {
	item, err := session.Item(ctx, id.ItemID)
	if pluggy.IsNotFound(err) {
		logger.Debugj(log.JSON{"component": "sync", "item_id": id.ItemID, "connector_error": "item not found upstream"})
	} else if err != nil {
		logger.Warnj(log.JSON{"component": "sync", "item_id": id.ItemID, "connector_error": err.Error()})
	} else if name := item.ConnectorName(); name != "" {
		return name
	}
	if name := id.ConnectorName(); name != "" {
		return name
	}
	return genericConnectorName
}

type rowStatus int

const (
	rowImported rowStatus = iota
	rowSkipped
	rowFailed
)

func (s *SyncService) materialize(ctx context.Context, id Identity, accountID, connectorName string, up pluggy.Transaction,
	accounts map[string]repository.Account, logger *log.Logger) (repository.Transaction, rowStatus) {
	org := id.OrganizationID
	if up.Date.IsZero() {
		// An undated row would dedup against every other undated row.
		logger.Errorj(log.JSON{"component": "sync", "item_id": id.ItemID, "transaction_id": up.ID, "error": "missing date"})
		return repository.Transaction{}, rowFailed
	}
	description := firstNonEmpty(up.Description, up.DescriptionRaw, genericDescription)
	keys := ComputeDedupKeys(up.ID, up.Date.Time, up.Amount, description)

	s.archive(ctx, org, id.ItemID, keys.ExternalID, up, logger)

	dup, err := IsDuplicate(ctx, s.Transactions, org, keys)
	if err != nil {
		logger.Errorf("[Sync] dedup check %s: %v", keys.DedupKey, err)
		return repository.Transaction{}, rowFailed
	}
	if dup {
		return repository.Transaction{}, rowSkipped
	}

	acct, err := s.accountFor(ctx, id, firstNonEmpty(up.AccountID, accountID, id.ItemID), connectorName, accounts)
	if err != nil {
		logger.Errorf("[Sync] resolve account for %s: %v", keys.DedupKey, err)
		return repository.Transaction{}, rowFailed
	}

	txType := repository.TypeExpense
	if strings.EqualFold(up.Type, "CREDIT") || up.Amount.IsPositive() {
		txType = repository.TypeIncome
	}
	externalID, dedupKey, notes := keys.ExternalID, keys.DedupKey, connectorName
	tx := repository.Transaction{
		ID:                    uuid.NewString(),
		OrganizationID:        org,
		AccountID:             acct.ID,
		ExternalTransactionID: &externalID,
		SyncDedupKey:          &dedupKey,
		Date:                  up.Date.Time.UTC(),
		Description:           description,
		Amount:                up.Amount.Abs(),
		Type:                  txType,
		ValidationStatus:      repository.PendingValidation,
		Notes:                 &notes,
	}
	if id.Connection != nil {
		connID := id.Connection.ID
		tx.BankConnectionID = &connID
	}
	if err := s.Transactions.Insert(ctx, tx); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return repository.Transaction{}, rowSkipped
		}
		logger.Errorf("[Sync] insert %s: %v", keys.DedupKey, err)
		return repository.Transaction{}, rowFailed
	}
	return tx, rowImported
}

// classify runs the cascade for one row, recovering from panics so that one
// bad row never stops its siblings.
func (s *SyncService) classify(ctx context.Context, tx repository.Transaction, logger *log.Logger) (out Outcome, ok bool) {
	if s.Categorizer == nil {
		return Outcome{}, false
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[Sync] classify %s panicked: %v", tx.ID, r)
			out, ok = Outcome{}, false
		}
	}()
	out, err := s.Categorizer.CategorizeTransaction(ctx, tx)
	if err != nil {
		logger.Errorj(log.JSON{"component": "sync", "transaction_id": tx.ID, "classify_error": err.Error()})
		return Outcome{}, false
	}
	return out, true
}

func (s *SyncService) archive(ctx context.Context, org, itemID, externalID string, up pluggy.Transaction, logger *log.Logger) {
	if s.RawData == nil || len(up.Raw) == 0 {
		return
	}
	item := itemID
	err := s.RawData.Upsert(ctx, repository.RawData{
		ID:             uuid.NewString(),
		OrganizationID: org,
		DataType:       rawDataTypeTransaction,
		ExternalID:     externalID,
		ItemID:         &item,
		Payload:        string(up.Raw),
	})
	if err != nil {
		logger.Debugf("[Sync] archive %s: %v", externalID, err)
	}
}

// accountFor finds or creates the account for an upstream account id. cache
// lives for one sync only.
func (s *SyncService) accountFor(ctx context.Context, id Identity, externalAccountID, connectorName string, cache map[string]repository.Account) (repository.Account, error) {
	key := id.OrganizationID + ":" + externalAccountID
	if acct, ok := cache[key]; ok {
		return acct, nil
	}
	existing, err := s.Accounts.ByExternalID(ctx, id.OrganizationID, externalAccountID)
	if err != nil {
		return repository.Account{}, err
	}
	if existing != nil {
		cache[key] = *existing
		return *existing, nil
	}
	ext, name := externalAccountID, connectorName
	acct := repository.Account{
		ID:                deterministicAccountID(id.OrganizationID, externalAccountID),
		OrganizationID:    id.OrganizationID,
		ExternalAccountID: &ext,
		Name:              name,
		Institution:       &name,
	}
	if id.Connection != nil {
		connID := id.Connection.ID
		acct.BankConnectionID = &connID
	}
	if err := s.Accounts.Upsert(ctx, acct); err != nil {
		return repository.Account{}, err
	}
	cache[key] = acct
	return acct, nil
}

func deterministicAccountID(organizationID, externalAccountID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("acct:"+organizationID+":"+externalAccountID)).String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
