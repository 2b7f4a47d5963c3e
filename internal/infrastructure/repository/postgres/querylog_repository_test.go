package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/yojanadesk/scheme-rag/internal/core/domain"
)

func TestQueryLogRepositoryInsertWritesAllColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewQueryLogRepository(db)
	record := domain.QueryRecord{
		ID:              "q-1",
		Query:           "schemes for women entrepreneurs",
		Intent:          domain.IntentDiscovery,
		Mode:            domain.ModeHybrid,
		DetectedSchemes: []string{"Prime Ministers Employment Generation Programme"},
		DocCount:        5,
		ReflectionCount: 1,
		CreatedAt:       time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC),
	}

	mock.ExpectExec("INSERT INTO retrieval_queries").
		WithArgs("q-1", record.Query, "DISCOVERY", "hybrid", []byte(`["Prime Ministers Employment Generation Programme"]`),
			5, 1, 0, "", record.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Insert(context.Background(), record); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestQueryLogRepositoryInsertDefaultsEmptySchemesAndTimestamp(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewQueryLogRepository(db)
	mock.ExpectExec("INSERT INTO retrieval_queries").
		WithArgs("q-2", "what is pmegp", "GENERAL", "filtered", []byte(`[]`),
			0, 0, 0, "bm25_unavailable", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Insert(context.Background(), domain.QueryRecord{
		ID:             "q-2",
		Query:          "what is pmegp",
		Intent:         domain.IntentGeneral,
		Mode:           domain.ModeFiltered,
		DegradedReason: "bm25_unavailable",
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestQueryLogRepositoryEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewQueryLogRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs(int64(2026083101)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS retrieval_queries").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
