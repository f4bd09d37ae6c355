package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/require"

	"github.com/jask/finsync/internal/database"
	"github.com/jask/finsync/internal/database/repository"
	"github.com/jask/finsync/internal/pluggy"
)

const (
	testOrg    = "org-1"
	testItemID = "item-1"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func quietLogger() *log.Logger {
	l := log.New("test")
	l.SetOutput(io.Discard)
	return l
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, database.RunMigrations(dbPath))
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// fakePluggy serves /auth, /items/{id} and /transactions from memory.
type fakePluggy struct {
	mu               sync.Mutex
	transactions     []map[string]any
	connectorName    string
	failAuth         bool
	failItem         bool
	missingItem      bool
	failTransactions bool
	authCalls        int
}

func (f *fakePluggy) start(t *testing.T) *pluggy.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch {
		case r.URL.Path == "/auth":
			f.authCalls++
			if f.failAuth {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"message":"bad credentials"}`))
				return
			}
			_, _ = w.Write([]byte(`{"apiKey":"api-key"}`))
		case r.URL.Path == "/items/"+testItemID:
			if f.missingItem {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"message":"item not found"}`))
				return
			}
			if f.failItem {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id": testItemID, "status": "UPDATED", "connector": map[string]any{"id": 1, "name": f.connectorName},
			})
		case r.URL.Path == "/transactions":
			if f.failTransactions {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte(`{"message":"upstream unavailable"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"totalPages": 1, "page": 1, "results": f.transactions})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return pluggy.NewClient(pluggy.Config{BaseURL: srv.URL, ClientID: "id", ClientSecret: "secret", Timeout: 2 * time.Second})
}

type testEnv struct {
	db           *sql.DB
	connections  *repository.BankConnectionRepo
	items        *repository.OpenFinanceItemRepo
	accounts     *repository.AccountRepo
	transactions *repository.TransactionRepo
	rules        *repository.ReconciliationRuleRepo
	patterns     *repository.TransactionPatternRepo
	categories   *repository.CategoryRepo
	logs         *repository.IntegrationLogRepo
	syncLogs     *repository.SyncLogRepo
	rawData      *repository.RawDataRepo
	upstream     *fakePluggy
	sync         *SyncService
	router       *EventRouter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := openTestDB(t)
	env := &testEnv{
		db:           db,
		connections:  repository.NewBankConnectionRepo(db),
		items:        repository.NewOpenFinanceItemRepo(db),
		accounts:     repository.NewAccountRepo(db),
		transactions: repository.NewTransactionRepo(db),
		rules:        repository.NewReconciliationRuleRepo(db),
		patterns:     repository.NewTransactionPatternRepo(db),
		categories:   repository.NewCategoryRepo(db),
		logs:         repository.NewIntegrationLogRepo(db),
		syncLogs:     repository.NewSyncLogRepo(db),
		rawData:      repository.NewRawDataRepo(db),
		upstream:     &fakePluggy{connectorName: "Banco Teste"},
	}
	client := env.upstream.start(t)
	categorizer := &CategorizerService{
		Transactions: env.transactions,
		Rules:        env.rules,
		Patterns:     env.patterns,
		Categories:   env.categories,
		Logger:       quietLogger(),
	}
	env.sync = &SyncService{
		Upstream:     client,
		Connections:  env.connections,
		Items:        env.items,
		Accounts:     env.accounts,
		Transactions: env.transactions,
		RawData:      env.rawData,
		SyncLogs:     env.syncLogs,
		Categorizer:  categorizer,
		Logger:       quietLogger(),
		Now:          func() time.Time { return fixedNow },
	}
	env.router = &EventRouter{
		Resolver:    &Resolver{Items: env.items, Connections: env.connections},
		Connections: env.connections,
		Items:       env.items,
		Sync:        env.sync,
		Logs:        env.logs,
		Logger:      quietLogger(),
		Now:         func() time.Time { return fixedNow },
	}
	return env
}

// seedItem creates both representations of testItemID.
func (e *testEnv) seedItem(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.connections.Create(ctx, repository.BankConnection{
		ID: "conn-1", OrganizationID: testOrg, ExternalAccountID: testItemID, Status: repository.ConnectionActive,
	}))
	require.NoError(t, e.items.Create(ctx, repository.OpenFinanceItem{
		ID: "ofi-1", OrganizationID: testOrg, PluggyItemID: testItemID, Status: repository.ItemCompleted,
	}))
}

func (e *testEnv) identity(t *testing.T) Identity {
	t.Helper()
	id, err := (&Resolver{Items: e.items, Connections: e.connections}).Resolve(context.Background(), testItemID)
	require.NoError(t, err)
	require.True(t, id.Resolved())
	return id
}

func (e *testEnv) listTransactions(t *testing.T) []repository.Transaction {
	t.Helper()
	txs, err := e.transactions.List(context.Background(), repository.TransactionFilters{OrganizationID: testOrg})
	require.NoError(t, err)
	return txs
}

func (e *testEnv) integrationLogs(t *testing.T) []repository.IntegrationLog {
	t.Helper()
	logs, err := e.logs.List(context.Background(), IntegrationPluggy)
	require.NoError(t, err)
	return logs
}

func strPtr(s string) *string { return &s }
