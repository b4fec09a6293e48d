// Package storage defines the persistence layer for aggregated second bars
// and raw audit ticks. These interfaces abstract the time-series backend
// (DuckDB, in-memory) and enable dependency injection so the collector and
// tests can substitute stores freely.
package storage

import (
	"context"
	"fmt"

	"github.com/johnayoung/go-tick-collector/internal/models"
)

// BarStorer handles bulk persistence of aggregated second bars.
type BarStorer interface {
	// StoreBars bulk-upserts a batch of second bars. Re-sending a bar with
	// the same (timestamp, symbol, contract, exchange) key must not create
	// a duplicate row; the existing row is updated instead. Returns the
	// number of rows written.
	StoreBars(ctx context.Context, bars []models.SecondBar) (int, error)
}

// TickStorer handles optional raw-tick persistence for audit and
// backtesting. This path is independent of bar aggregation and
// non-critical; callers treat failures as best-effort.
type TickStorer interface {
	// StoreTick persists a single raw tick.
	StoreTick(ctx context.Context, tick models.TickEvent) error
}

// Manager handles storage lifecycle and operational concerns.
type Manager interface {
	// Initialize prepares the backend for operation: creates tables and
	// indexes. Idempotent and safe to call multiple times.
	Initialize(ctx context.Context) error

	// Close gracefully shuts down the backend. After Close the storage
	// instance should not be used.
	Close() error

	// HealthCheck verifies the backend is operational with a lightweight
	// query.
	HealthCheck(ctx context.Context) error
}

// FullStorage combines all storage capabilities. Backends implement this
// interface to provide complete persistence for the collector.
type FullStorage interface {
	BarStorer
	TickStorer
	Manager
}

// StorageError represents a failure during a storage operation with
// operation and table context.
type StorageError struct {
	// Operation is the storage operation that failed (e.g. "insert").
	Operation string

	// Table is the table involved in the operation.
	Table string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface for StorageError.
func (e *StorageError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("storage operation %s on table %s failed: %v", e.Operation, e.Table, e.Err)
	}
	return fmt.Sprintf("storage operation %s failed: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a StorageError with the provided details.
func NewStorageError(operation, table string, err error) *StorageError {
	return &StorageError{Operation: operation, Table: table, Err: err}
}

// NewInsertError creates a StorageError for insert operations.
func NewInsertError(table string, err error) *StorageError {
	return &StorageError{Operation: "insert", Table: table, Err: err}
}
