// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/wneessen/mylocations/internal/store"
)

var _ store.RecordStore = (*Store)(nil)

const schema = `CREATE TABLE IF NOT EXISTS locations (
	id UUID PRIMARY KEY,
	description TEXT NOT NULL,
	category TEXT NOT NULL,
	latitude DOUBLE PRECISION NOT NULL,
	longitude DOUBLE PRECISION NOT NULL,
	accuracy DOUBLE PRECISION NOT NULL,
	address TEXT NOT NULL,
	date TIMESTAMPTZ NOT NULL
)`

// Store keeps records in the locations table of a PostgreSQL database.
type Store struct {
	db *sql.DB
}

// Open connects to the database at dsn and makes sure the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	s := New(db)
	if err = s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return &store.StorageError{Op: "migrate", Err: err}
	}
	return nil
}

func (s *Store) Create(ctx context.Context, record *store.Record) error {
	if record == nil {
		return &store.StorageError{Op: "create", Err: errors.New("record is nil")}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO locations (id, description, category, latitude, longitude, accuracy, address, date) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ID, record.Description, record.Category, record.Latitude, record.Longitude, record.Accuracy,
		record.Address, record.Date,
	)
	if err != nil {
		return &store.StorageError{Op: "create", Err: err}
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]store.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, description, category, latitude, longitude, accuracy, address, date FROM locations ORDER BY date ASC`,
	)
	if err != nil {
		return nil, &store.StorageError{Op: "list", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var records []store.Record
	for rows.Next() {
		var r store.Record
		if err = rows.Scan(&r.ID, &r.Description, &r.Category, &r.Latitude, &r.Longitude, &r.Accuracy,
			&r.Address, &r.Date); err != nil {
			return nil, &store.StorageError{Op: "list", Err: err}
		}
		records = append(records, r)
	}
	if err = rows.Err(); err != nil {
		return nil, &store.StorageError{Op: "list", Err: err}
	}
	return records, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
