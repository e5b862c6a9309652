package events

import (
	"context"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestProcessedStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newProcessedStoreWithExec(mock)

	mock.ExpectQuery("SELECT EXISTS").WithArgs("telnyx", "evt").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	seen, err := store.AlreadyProcessed(context.Background(), "telnyx", "evt")
	if err != nil || !seen {
		t.Fatalf("expected existing row, got seen=%v err=%v", seen, err)
	}

	mock.ExpectQuery("SELECT EXISTS").WithArgs("telnyx", "evt-miss").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	seen, err = store.AlreadyProcessed(context.Background(), "telnyx", "evt-miss")
	if err != nil || seen {
		t.Fatalf("expected missing row, got seen=%v err=%v", seen, err)
	}

	mock.ExpectExec("INSERT INTO processed_events").WithArgs("telnyx", "evt-new").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	ok, err := store.MarkProcessed(context.Background(), "telnyx", "evt-new")
	if err != nil || !ok {
		t.Fatalf("expected mark processed success, got %v %v", ok, err)
	}

	mock.ExpectExec("INSERT INTO processed_events").WithArgs("telnyx", "evt-new").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	ok, err = store.MarkProcessed(context.Background(), "telnyx", "evt-new")
	if err != nil || ok {
		t.Fatalf("expected lost insert race to report false, got %v %v", ok, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
