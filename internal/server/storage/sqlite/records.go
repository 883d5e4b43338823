package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/iudanet/chartsync/internal/models"
	"github.com/iudanet/chartsync/internal/server/storage"
)

const selectRecord = `
	SELECT table_name, id, client_key, data, field_times, created_at, updated_at
	FROM records
`

// InsertRecord stores a new record. A repeated insert with the same client
// key returns the first record instead of creating a duplicate.
func (s *Storage) InsertRecord(ctx context.Context, rec *models.Record) (*models.Record, bool, error) {
	if rec.ClientKey != "" {
		existing, err := s.getByClientKey(ctx, rec.Table, rec.ClientKey)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, storage.ErrRecordNotFound) {
			return nil, false, err
		}
	}

	fieldTimes, err := encodeFieldTimes(rec.FieldUpdatedAt)
	if err != nil {
		return nil, false, err
	}

	query := `
		INSERT INTO records (table_name, id, client_key, data, field_times, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		string(rec.Table),
		rec.ID,
		nullString(rec.ClientKey),
		string(rec.Data),
		fieldTimes,
		rec.CreatedAt.UnixNano(),
		rec.UpdatedAt.UnixNano(),
	)
	if err != nil {
		// параллельная вставка с тем же client_key
		if rec.ClientKey != "" {
			if existing, getErr := s.getByClientKey(ctx, rec.Table, rec.ClientKey); getErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("failed to insert record: %w", err)
	}

	stored, err := s.GetRecord(ctx, rec.Table, rec.ID)
	if err != nil {
		return nil, false, err
	}
	return stored, true, nil
}

// UpdateRecord merges fields into the stored data in one transaction
func (s *Storage) UpdateRecord(ctx context.Context, table models.Table, id string, fields map[string]json.RawMessage, at time.Time) (*models.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rec, err := scanRecord(tx.QueryRowContext(ctx, selectRecord+" WHERE table_name = ? AND id = ?", string(table), id))
	if err != nil {
		return nil, err
	}

	data, err := models.DecodeFields(rec.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidRecord, err)
	}

	changed := false
	for name, value := range fields {
		if name == models.RecordIDField {
			continue
		}
		if old, ok := data[name]; ok && jsonEqual(old, value) {
			continue
		}
		data[name] = value
		rec.FieldUpdatedAt[name] = at
		changed = true
	}
	if !changed {
		return rec, nil
	}

	rec.Data, err = json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	rec.UpdatedAt = at
	fieldTimes, err := encodeFieldTimes(rec.FieldUpdatedAt)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE records
		SET data = ?, field_times = ?, updated_at = ?
		WHERE table_name = ? AND id = ?
	`
	if _, err := tx.ExecContext(ctx, query, string(rec.Data), fieldTimes, at.UnixNano(), string(table), id); err != nil {
		return nil, fmt.Errorf("failed to update record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return rec, nil
}

// DeleteRecord removes a record
// Returns ErrRecordNotFound if record doesn't exist
func (s *Storage) DeleteRecord(ctx context.Context, table models.Table, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE table_name = ? AND id = ?`, string(table), id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrRecordNotFound
	}
	return nil
}

// GetRecord retrieves a single record
func (s *Storage) GetRecord(ctx context.Context, table models.Table, id string) (*models.Record, error) {
	return scanRecord(s.db.QueryRowContext(ctx, selectRecord+" WHERE table_name = ? AND id = ?", string(table), id))
}

// ListRecords returns records changed after since, oldest change first
func (s *Storage) ListRecords(ctx context.Context, table models.Table, since time.Time) ([]*models.Record, error) {
	sinceNano := int64(-1)
	if !since.IsZero() {
		sinceNano = since.UnixNano()
	}

	rows, err := s.db.QueryContext(ctx,
		selectRecord+" WHERE table_name = ? AND updated_at > ? ORDER BY updated_at ASC, id ASC",
		string(table), sinceNano)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	records := []*models.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}

// Ping checks the database connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) getByClientKey(ctx context.Context, table models.Table, clientKey string) (*models.Record, error) {
	return scanRecord(s.db.QueryRowContext(ctx, selectRecord+" WHERE table_name = ? AND client_key = ?", string(table), clientKey))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		rec                  models.Record
		table, data, times   string
		clientKey            sql.NullString
		createdAt, updatedAt int64
	)
	err := row.Scan(&table, &rec.ID, &clientKey, &data, &times, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}

	rec.Table = models.Table(table)
	rec.ClientKey = clientKey.String
	rec.Data = json.RawMessage(data)
	rec.CreatedAt = nanoToTime(createdAt)
	rec.UpdatedAt = nanoToTime(updatedAt)
	rec.FieldUpdatedAt = map[string]time.Time{}
	if err := json.Unmarshal([]byte(times), &rec.FieldUpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to decode field times: %w", err)
	}
	return &rec, nil
}

func encodeFieldTimes(times map[string]time.Time) (string, error) {
	if times == nil {
		return "{}", nil
	}
	b, err := json.Marshal(times)
	if err != nil {
		return "", fmt.Errorf("failed to marshal field times: %w", err)
	}
	return string(b), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nanoToTime(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// jsonEqual сравнивает значения без учёта форматирования
func jsonEqual(a, b json.RawMessage) bool {
	var va, vb any
	if json.Unmarshal(a, &va) != nil || json.Unmarshal(b, &vb) != nil {
		return string(a) == string(b)
	}
	return reflect.DeepEqual(va, vb)
}
