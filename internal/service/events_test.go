package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/finsync/internal/database/repository"
)

func TestEventItemErrorMarksConnection(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t)
	require.NoError(t, env.connections.Create(ctx, repository.BankConnection{
		ID: "conn-1", OrganizationID: testOrg, ExternalAccountID: testItemID, Status: repository.ConnectionActive,
	}))

	err := env.router.Handle(ctx, Event{Event: EventItemError, ItemID: testItemID, Data: &EventData{Message: "LOGIN_ERROR"}})
	require.NoError(t, err)

	conn, err := env.connections.Get(ctx, "conn-1")
	require.NoError(t, err)
	require.Equal(t, repository.ConnectionError, conn.Status)
	require.Equal(t, "LOGIN_ERROR", *conn.SyncError)

	logs := env.integrationLogs(t)
	require.Len(t, logs, 1)
	require.Equal(t, repository.LogError, logs[0].Status)
	require.Equal(t, EventItemError, logs[0].EventType)
	require.Equal(t, testOrg, *logs[0].OrganizationID)
}

func TestEventItemErrorIncrementsItemFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t)
	env.seedItem(t)

	ev := Event{Event: EventItemError, ItemID: testItemID, Data: &EventData{
		ExecutionStatus: "ERROR",
		Error:           &EventError{Code: "INVALID_CREDENTIALS", Message: "wrong password"},
	}}
	require.NoError(t, env.router.Handle(ctx, ev))
	require.NoError(t, env.router.Handle(ctx, ev))

	item, err := env.items.Get(ctx, "ofi-1")
	require.NoError(t, err)
	require.Equal(t, repository.ItemError, item.Status)
	require.Equal(t, 2, item.ConsecutiveFailures)
	require.Equal(t, "wrong password", *item.ErrorMessage)
	require.Equal(t, "INVALID_CREDENTIALS", *item.ErrorCode)
	require.Equal(t, "ERROR", *item.ExecutionStatus)
	require.Len(t, env.integrationLogs(t), 2)
}

func TestEventOrphanIsLoggedOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t)
	env.seedItem(t)

	err := env.router.Handle(ctx, Event{Event: EventItemCreated, ItemID: "unknown-item", Data: &EventData{Status: "UPDATED"}})
	require.NoError(t, err)

	conn, err := env.connections.Get(ctx, "conn-1")
	require.NoError(t, err)
	require.Equal(t, repository.ConnectionActive, conn.Status)
	require.Nil(t, conn.LastSyncAt)
	item, err := env.items.Get(ctx, "ofi-1")
	require.NoError(t, err)
	require.Nil(t, item.LastSyncAt)

	logs := env.integrationLogs(t)
	require.Len(t, logs, 1)
	require.Equal(t, EventItemCreated, logs[0].EventType)
	require.Nil(t, logs[0].OrganizationID)

	var details map[string]any
	require.NoError(t, json.Unmarshal([]byte(logs[0].Details), &details))
	require.Equal(t, "unknown-item", details["item_id"])
}

func TestEventItemUpdatedSuccessResetsFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t)
	env.seedItem(t)
	require.NoError(t, env.items.RecordFailure(ctx, "ofi-1", repository.ItemError, nil, strPtr("boom"), strPtr("E1")))
	require.NoError(t, env.connections.SetStatus(ctx, "conn-1", repository.ConnectionError, strPtr("boom")))

	err := env.router.Handle(ctx, Event{Event: EventItemUpdated, ItemID: testItemID, Data: &EventData{ExecutionStatus: "SUCCESS"}})
	require.NoError(t, err)

	conn, err := env.connections.Get(ctx, "conn-1")
	require.NoError(t, err)
	require.Equal(t, repository.ConnectionActive, conn.Status)
	require.Nil(t, conn.SyncError)
	require.NotNil(t, conn.LastSyncAt)

	item, err := env.items.Get(ctx, "ofi-1")
	require.NoError(t, err)
	require.Equal(t, repository.ItemCompleted, item.Status)
	require.Equal(t, 0, item.ConsecutiveFailures)
	require.Nil(t, item.ErrorMessage)
	require.Nil(t, item.ErrorCode)
	require.Equal(t, "SUCCESS", *item.ExecutionStatus)
	require.NotNil(t, item.LastSyncAt)

	logs := env.integrationLogs(t)
	require.Len(t, logs, 1)
	require.Equal(t, repository.LogSuccess, logs[0].Status)
}

func TestEventItemCreatedWithoutSuccess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t)
	env.seedItem(t)

	err := env.router.Handle(ctx, Event{Event: EventItemCreated, ItemID: testItemID, Data: &EventData{
		Status: "LOGIN_IN_PROGRESS", Message: "waiting for MFA", Code: "MFA",
	}})
	require.NoError(t, err)

	item, err := env.items.Get(ctx, "ofi-1")
	require.NoError(t, err)
	require.Equal(t, repository.ItemInProgress, item.Status)
	require.Equal(t, 1, item.ConsecutiveFailures)
	require.Equal(t, "waiting for MFA", *item.ErrorMessage)
	require.Equal(t, "MFA", *item.ErrorCode)

	conn, err := env.connections.Get(ctx, "conn-1")
	require.NoError(t, err)
	require.Equal(t, repository.ConnectionPending, conn.Status)
	require.Len(t, env.integrationLogs(t), 1)
}

func TestEventItemDeletedKeepsData(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t)
	env.seedItem(t)
	env.upstream.transactions = cleanSyncFixture()
	require.NoError(t, env.router.Handle(ctx, Event{Event: EventTransactionsCreated, ItemID: testItemID}))
	require.Len(t, env.listTransactions(t), 3)

	require.NoError(t, env.router.Handle(ctx, Event{Event: EventItemDeleted, ItemID: testItemID}))

	conn, err := env.connections.Get(ctx, "conn-1")
	require.NoError(t, err)
	require.Equal(t, repository.ConnectionDisconnected, conn.Status)
	item, err := env.items.Get(ctx, "ofi-1")
	require.NoError(t, err)
	require.Equal(t, repository.ItemDisconnected, item.Status)
	require.Len(t, env.listTransactions(t), 3)
	require.Len(t, env.integrationLogs(t), 2)
}

func TestEventTransactionsCreated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t)
	env.seedItem(t)
	addRentRule(t, env)
	env.upstream.transactions = cleanSyncFixture()

	ev := Event{Event: EventTransactionsCreated, ItemID: testItemID, AccountID: "acc-1"}
	require.NoError(t, env.router.Handle(ctx, ev))
	require.NoError(t, env.router.Handle(ctx, ev))
	require.Len(t, env.listTransactions(t), 3)

	logs := env.integrationLogs(t)
	require.Len(t, logs, 2)
	for _, l := range logs {
		require.Equal(t, repository.LogSuccess, l.Status)
	}
	var first, second map[string]any
	require.NoError(t, json.Unmarshal([]byte(logs[0].Details), &first))
	require.NoError(t, json.Unmarshal([]byte(logs[1].Details), &second))
	require.EqualValues(t, 3, first["imported"])
	require.EqualValues(t, 2, first["classified"])
	require.EqualValues(t, 0, second["imported"])
	require.EqualValues(t, 3, second["skipped"])
}

func TestEventTransactionsCreatedUpstreamFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t)
	env.seedItem(t)
	env.upstream.failAuth = true

	err := env.router.Handle(ctx, Event{Event: EventTransactionsCreated, ItemID: testItemID})
	require.NoError(t, err, "upstream failures must not fail the delivery")

	conn, err := env.connections.Get(ctx, "conn-1")
	require.NoError(t, err)
	require.NotNil(t, conn.SyncError)
	require.Contains(t, *conn.SyncError, "bad credentials")
	require.Equal(t, repository.ConnectionActive, conn.Status)

	logs := env.integrationLogs(t)
	require.Len(t, logs, 1)
	require.Equal(t, repository.LogError, logs[0].Status)
}

func TestEventTransactionsCreatedOrphan(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t)
	require.NoError(t, env.router.Handle(ctx, Event{Event: EventTransactionsCreated, ItemID: "ghost"}))
	require.Equal(t, 0, env.upstream.authCalls)
	require.Len(t, env.integrationLogs(t), 1)
}

func TestEventUnknownIsIgnored(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t)
	env.seedItem(t)
	require.NoError(t, env.router.Handle(ctx, Event{Event: "connector/status_updated", ItemID: testItemID}))

	conn, err := env.connections.Get(ctx, "conn-1")
	require.NoError(t, err)
	require.Equal(t, repository.ConnectionActive, conn.Status)

	logs := env.integrationLogs(t)
	require.Len(t, logs, 1)
	require.Equal(t, repository.LogIgnored, logs[0].Status)
}
