package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sakif/magma-calc/internal/model"
	"github.com/sakif/magma-calc/internal/repository"
)

var _ repository.UsageRepository = (*DB)(nil)

// Append inserts one usage entry. Warnings are stored as a JSON array.
func (db *DB) Append(ctx context.Context, entry *model.UsageEntry) error {
	warnings := entry.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	encoded, err := json.Marshal(warnings)
	if err != nil {
		return fmt.Errorf("sqlite: encoding warnings: %w", err)
	}

	var memory sql.NullString
	if entry.MemoryUsed != nil {
		memory = sql.NullString{String: *entry.MemoryUsed, Valid: true}
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO usage (id, timestamp, client_ip, input_size, elapsed_sec, memory_used, success, warnings)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Timestamp.UTC().Format(model.TimestampLayout),
		entry.ClientIP,
		entry.InputSize,
		entry.ElapsedSec,
		memory,
		entry.Success,
		string(encoded),
	)
	if err != nil {
		return fmt.Errorf("sqlite: appending usage entry: %w", err)
	}
	return nil
}

// Replay streams every row in insertion order. A row whose timestamp or
// warnings cannot be decoded is still delivered, with the zero value in
// that field.
func (db *DB) Replay(ctx context.Context, fn func(model.UsageEntry)) error {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, timestamp, client_ip, input_size, elapsed_sec, memory_used, success, warnings
		 FROM usage
		 ORDER BY seq`,
	)
	if err != nil {
		return fmt.Errorf("sqlite: replaying usage: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			entry    model.UsageEntry
			ts       string
			memory   sql.NullString
			warnings string
		)
		if err := rows.Scan(
			&entry.ID,
			&ts,
			&entry.ClientIP,
			&entry.InputSize,
			&entry.ElapsedSec,
			&memory,
			&entry.Success,
			&warnings,
		); err != nil {
			return fmt.Errorf("sqlite: scanning usage row: %w", err)
		}

		if parsed, err := time.Parse(model.TimestampLayout, ts); err == nil {
			entry.Timestamp = parsed
		}
		if memory.Valid {
			m := memory.String
			entry.MemoryUsed = &m
		}
		if err := json.Unmarshal([]byte(warnings), &entry.Warnings); err != nil {
			entry.Warnings = nil
		}

		fn(entry)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating usage rows: %w", err)
	}
	return nil
}
