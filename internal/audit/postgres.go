package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// LogStore persists audit records in PostgreSQL. Deletion is always soft:
// rows are flagged, never removed, so the trail stays reconstructible.
type LogStore struct {
	db *sql.DB
}

var _ RecordStore = (*LogStore)(nil)

// NewLogStore wraps a database handle.
func NewLogStore(db *sql.DB) *LogStore {
	return &LogStore{db: db}
}

// Insert writes one record. Arbitrary arg/body values marshal into jsonb;
// values that cannot marshal fall back to null rather than failing the row.
func (s *LogStore) Insert(ctx context.Context, rec *Record) error {
	args := marshalOrNull(rec.RequestArgs)
	body := marshalOrNull(rec.ResponseBody)
	return s.db.QueryRowContext(ctx, `
		insert into audit_log(user_id, username, module, summary, method, path, status,
			response_time, request_args, response_body, ip_address, user_agent,
			operation_type, log_level)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		returning id, created_at, updated_at
	`, rec.UserID, rec.Username, rec.Module, rec.Summary, rec.Method, rec.Path,
		rec.Status, rec.ResponseTimeMS, args, body, rec.IPAddress, rec.UserAgent,
		rec.OperationType, rec.LogLevel).
		Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
}

func marshalOrNull(v any) any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

const recordColumns = `id, user_id, username, module, summary, method, path, status,
	response_time, coalesce(request_args,'null'), coalesce(response_body,'null'),
	ip_address, user_agent, operation_type, log_level, created_at, updated_at`

// List returns filtered records newest-first with the total match count.
func (s *LogStore) List(ctx context.Context, f ListFilter, page, pageSize int) ([]*Record, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 10
	}

	where := []string{"is_deleted = false"}
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.Username != "" {
		add("username ilike $%d", "%"+f.Username+"%")
	}
	if f.Module != "" {
		add("module ilike $%d", "%"+f.Module+"%")
	}
	if f.Method != "" {
		add("method = $%d", f.Method)
	}
	if f.Summary != "" {
		add("summary ilike $%d", "%"+f.Summary+"%")
	}
	if f.Status != 0 {
		add("status = $%d", f.Status)
	}
	if f.IPAddress != "" {
		add("ip_address ilike $%d", "%"+f.IPAddress+"%")
	}
	if f.OperationType != "" {
		add("operation_type ilike $%d", "%"+f.OperationType+"%")
	}
	if f.LogLevel != "" {
		add("log_level ilike $%d", "%"+f.LogLevel+"%")
	}
	if !f.Since.IsZero() {
		add("created_at >= $%d", f.Since)
	}
	if !f.Until.IsZero() {
		add("created_at <= $%d", f.Until)
	}
	cond := strings.Join(where, " and ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		`select count(*) from audit_log where `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`select %s from audit_log where %s order by created_at desc, id desc limit $%d offset $%d`,
		recordColumns, cond, len(args)+1, len(args)+2)
	rows, err := s.db.QueryContext(ctx, query, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var res []*Record
	for rows.Next() {
		var rec Record
		var reqArgs, respBody []byte
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Username, &rec.Module, &rec.Summary,
			&rec.Method, &rec.Path, &rec.Status, &rec.ResponseTimeMS, &reqArgs, &respBody,
			&rec.IPAddress, &rec.UserAgent, &rec.OperationType, &rec.LogLevel,
			&rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, 0, err
		}
		rec.RequestArgs = unmarshalLoose(reqArgs)
		rec.ResponseBody = unmarshalLoose(respBody)
		res = append(res, &rec)
	}
	return res, total, rows.Err()
}

func unmarshalLoose(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	return v
}

// SoftDelete flags one record. Unknown ids report how many rows changed.
func (s *LogStore) SoftDelete(ctx context.Context, id int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		update audit_log set is_deleted = true, updated_at = now()
		where id = $1 and is_deleted = false
	`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SoftDeleteBatch flags many records at once.
func (s *LogStore) SoftDeleteBatch(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	res, err := s.db.ExecContext(ctx, `
		update audit_log set is_deleted = true, updated_at = now()
		where is_deleted = false and id in (`+strings.Join(placeholders, ",")+`)
	`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteOlderThan flags every record created before the cutoff.
func (s *LogStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		update audit_log set is_deleted = true, updated_at = now()
		where is_deleted = false and created_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
