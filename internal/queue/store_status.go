package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var displayCaser = cases.Title(language.English)

// EnsureStatusValues inserts rows for any missing status codes. Display
// names are derived from the code ("in_review" -> "In Review").
func (s *Store) EnsureStatusValues(ctx context.Context, codes ...Status) error {
	ctx = ensureContext(ctx)
	for _, code := range codes {
		display := displayCaser.String(strings.ReplaceAll(string(code), "_", " "))
		if _, err := s.execWithRetry(
			ctx,
			`INSERT INTO status_values (code, display) VALUES (?, ?) ON CONFLICT(code) DO NOTHING`,
			code, display,
		); err != nil {
			return fmt.Errorf("ensure status value %q: %w", code, err)
		}
	}
	return nil
}

// StatusValueID resolves a status code to its canonical identifier. The
// bool reports whether the code is known.
func (s *Store) StatusValueID(ctx context.Context, code Status) (int64, bool, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT id FROM status_values WHERE code = ?`,
		code,
	)
	var id int64
	err := row.Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query status value: %w", err)
	}
	return id, true, nil
}

// StatusValues returns every known code with its canonical id and display name.
func (s *Store) StatusValues(ctx context.Context) (map[Status]int64, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT id, code FROM status_values ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query status values: %w", err)
	}
	defer rows.Close()

	values := make(map[Status]int64)
	for rows.Next() {
		var (
			id   int64
			code string
		)
		if err := rows.Scan(&id, &code); err != nil {
			return nil, err
		}
		values[Status(code)] = id
	}
	return values, rows.Err()
}
