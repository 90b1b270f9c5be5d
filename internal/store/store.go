// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package store persists tagged locations.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wneessen/mylocations/internal/geobus"
	"github.com/wneessen/mylocations/internal/geocode"
)

const DefaultCategory = "No Category"

// Categories lists the categories a record can be filed under.
var Categories = []string{
	DefaultCategory,
	"Apple Store",
	"Bar",
	"Bookstore",
	"Club",
	"Grocery Store",
	"Historic Building",
	"House",
	"Icecream Vendor",
	"Landmark",
	"Park",
}

var (
	ErrInvalidCategory = errors.New("invalid category")
	ErrNoLocation      = errors.New("no location to tag")
)

// Record is a tagged location.
type Record struct {
	ID          uuid.UUID
	Description string
	Category    string
	Latitude    float64
	Longitude   float64
	Accuracy    float64
	Address     string
	Date        time.Time
}

// RecordStore persists records. Implementations return a *StorageError on failure.
type RecordStore interface {
	Create(ctx context.Context, record *Record) error
	List(ctx context.Context) ([]Record, error)
}

// StorageError is returned when a store operation fails.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store: failed to %s: %s", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ValidCategory reports whether category is one of Categories.
func ValidCategory(category string) bool {
	return slices.Contains(Categories, category)
}

// NewRecord returns a record for the given reading. An empty category selects
// DefaultCategory. The address is stored in its single line form if one was found.
func NewRecord(reading geobus.Reading, address geocode.Address, description, category string, date time.Time) (*Record, error) {
	if !reading.Valid() {
		return nil, ErrNoLocation
	}
	if category == "" {
		category = DefaultCategory
	}
	if !ValidCategory(category) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCategory, category)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate record ID: %w", err)
	}
	return &Record{
		ID:          id,
		Description: strings.TrimSpace(description),
		Category:    category,
		Latitude:    reading.Lat,
		Longitude:   reading.Lon,
		Accuracy:    reading.Accuracy,
		Address:     address.Formatted(),
		Date:        date,
	}, nil
}
