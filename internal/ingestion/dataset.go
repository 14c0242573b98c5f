package ingestion

import (
	"sync"
	"time"

	"github.com/rpattn/unitdash/internal/domain"
)

// Dataset holds the table every request filters. Requests read a snapshot; an
// upload swaps the whole table.
type Dataset struct {
	mu       sync.RWMutex
	table    domain.Table
	source   string
	loadedAt time.Time
}

// NewDataset wraps an initial table.
func NewDataset(table domain.Table, source string) *Dataset {
	return &Dataset{table: table, source: source, loadedAt: time.Now()}
}

// Table returns the current table.
func (d *Dataset) Table() domain.Table {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.table
}

// Source names where the current table came from.
func (d *Dataset) Source() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.source
}

// Replace swaps in a new table.
func (d *Dataset) Replace(table domain.Table, source string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.table = table
	d.source = source
	d.loadedAt = time.Now()
}

// LoadedAt is when the current table was installed.
func (d *Dataset) LoadedAt() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loadedAt
}
