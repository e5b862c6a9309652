package channels

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreatePending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	mock.ExpectExec("INSERT INTO messages").
		WithArgs("msg-1", "org-1", "conv-1", DirectionOutbound, "sms", "+15555550100", "Hi there!", StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := store.CreatePending(context.Background(), &Message{
		ID:             "msg-1",
		OrgID:          "org-1",
		ConversationID: "conv-1",
		Channel:        "sms",
		Recipient:      "+15555550100",
		Body:           "Hi there!",
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreatePending_GeneratesID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	mock.ExpectExec("INSERT INTO messages").
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := store.CreatePending(context.Background(), &Message{
		OrgID:          "org-1",
		ConversationID: "conv-1",
		Channel:        "email",
		Recipient:      "lead@example.com",
		Body:           "Hello",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_MarkSentAndFailed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	mock.ExpectExec("UPDATE messages").
		WithArgs(StatusSent, "prov-77", 2, "msg-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE messages").
		WithArgs(StatusFailed, "carrier rejected", 3, "msg-2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.MarkSent(context.Background(), "msg-1", "prov-77", 2))
	require.NoError(t, store.MarkFailed(context.Background(), "msg-2", "carrier rejected", 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RecordInbound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	mock.ExpectExec("INSERT INTO messages").
		WithArgs("msg-in-1", "org-1", "conv-1", DirectionInbound, "sms", "+15555550001", "Yes, tomorrow works", StatusReceived, "tx-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := store.RecordInbound(context.Background(), &Message{
		ID:                "msg-in-1",
		OrgID:             "org-1",
		ConversationID:    "conv-1",
		Channel:           "sms",
		Recipient:         "+15555550001",
		Body:              "Yes, tomorrow works",
		ProviderMessageID: "tx-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-in-1", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_History_OldestFirst(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	base := time.Now().Add(-time.Hour)
	rows := sqlmock.NewRows([]string{"id", "direction", "channel", "body", "status", "created_at"}).
		AddRow("msg-1", DirectionOutbound, "sms", "Hi, this is Boltcall!", StatusSent, base).
		AddRow("msg-2", DirectionInbound, "sms", "Hi back", StatusReceived, base.Add(time.Minute))

	mock.ExpectQuery("SELECT .+ FROM messages").
		WithArgs("org-1", "conv-1", 12).
		WillReturnRows(rows)

	history, err := store.History(context.Background(), "org-1", "conv-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "msg-1", history[0].ID)
	assert.Equal(t, DirectionInbound, history[1].Direction)
	assert.Equal(t, "org-1", history[0].OrgID)
	assert.Equal(t, "conv-1", history[1].ConversationID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_HasProviderMessage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("tx-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	seen, err := store.HasProviderMessage(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_HasProviderMessage_EmptyIDSkipsQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	seen, err := store.HasProviderMessage(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ResolveByProviderID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	rows := sqlmock.NewRows([]string{
		"id", "org_id", "conversation_id", "direction", "channel",
		"recipient", "body", "status", "attempts", "created_at",
	}).AddRow("msg-1", "org-1", "conv-1", DirectionOutbound, "sms",
		"+15555550100", "Hi there!", StatusSent, 1, time.Now())

	mock.ExpectQuery("SELECT .+ FROM messages").
		WithArgs("prov-77").
		WillReturnRows(rows)

	msg, err := store.ResolveByProviderID(context.Background(), "prov-77")
	require.NoError(t, err)
	assert.Equal(t, "msg-1", msg.ID)
	assert.Equal(t, "prov-77", msg.ProviderMessageID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ResolveByProviderID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	mock.ExpectQuery("SELECT .+ FROM messages").
		WithArgs("prov-missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = store.ResolveByProviderID(context.Background(), "prov-missing")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}
