package audit

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockLogStore(t *testing.T) (*LogStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewLogStore(db), mock
}

func TestLogInsert(t *testing.T) {
	store, mock := newMockLogStore(t)
	now := time.Now()

	mock.ExpectQuery(`insert into audit_log`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(99), now, now))

	rec := &Record{
		UserID:        1,
		Username:      "alice",
		Module:        "user",
		Method:        "POST",
		Path:          "/api/v1/user/create",
		Status:        200,
		RequestArgs:   map[string]any{"username": "bob"},
		ResponseBody:  map[string]any{"code": 200},
		IPAddress:     "10.0.0.1",
		OperationType: "创建",
		LogLevel:      "info",
	}
	if err := store.Insert(context.Background(), rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if rec.ID != 99 {
		t.Fatalf("returned id not applied: %d", rec.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLogListFiltered(t *testing.T) {
	store, mock := newMockLogStore(t)
	now := time.Now()

	mock.ExpectQuery(`select count\(\*\) from audit_log`).
		WithArgs("%alice%", "POST").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`select .+ from audit_log where .+ order by created_at desc`).
		WithArgs("%alice%", "POST", 10, 0).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "username", "module", "summary", "method", "path", "status",
			"response_time", "request_args", "response_body", "ip_address", "user_agent",
			"operation_type", "log_level", "created_at", "updated_at",
		}).AddRow(int64(1), int64(1), "alice", "user", "创建用户", "POST", "/api/v1/user/create",
			200, int64(12), []byte(`{"username":"bob"}`), []byte(`null`),
			"10.0.0.1", "curl", "创建", "info", now, now))

	recs, total, err := store.List(context.Background(), ListFilter{Username: "alice", Method: "POST"}, 1, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(recs) != 1 {
		t.Fatalf("unexpected page: total=%d len=%d", total, len(recs))
	}
	args, ok := recs[0].RequestArgs.(map[string]any)
	if !ok || args["username"] != "bob" {
		t.Fatalf("request_args not decoded: %#v", recs[0].RequestArgs)
	}
	if recs[0].ResponseBody != nil {
		t.Fatalf("null response_body should decode to nil, got %#v", recs[0].ResponseBody)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSoftDelete(t *testing.T) {
	store, mock := newMockLogStore(t)

	mock.ExpectExec(`update audit_log set is_deleted = true`).WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := store.SoftDelete(context.Background(), 7)
	if err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row flagged, got %d", n)
	}
}

func TestSoftDeleteBatch(t *testing.T) {
	store, mock := newMockLogStore(t)

	mock.ExpectExec(`update audit_log set is_deleted = true`).
		WithArgs(int64(1), int64(2), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.SoftDeleteBatch(context.Background(), []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("SoftDeleteBatch: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rows flagged, got %d", n)
	}

	// Empty input short-circuits without touching the database.
	n, err = store.SoftDeleteBatch(context.Background(), nil)
	if err != nil || n != 0 {
		t.Fatalf("empty batch: n=%d err=%v", n, err)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	store, mock := newMockLogStore(t)
	cutoff := time.Now().AddDate(0, 0, -30)

	mock.ExpectExec(`update audit_log set is_deleted = true`).WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 42))

	n, err := store.DeleteOlderThan(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if n != 42 {
		t.Fatalf("expected 42 rows flagged, got %d", n)
	}
}
