package registry

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ruteri/workstation-provisioning/interfaces"
)

// MemoryTable is an in-process Table. Each method is atomic on its own, but
// nothing serializes a read followed by an append, which is exactly the
// window the optimistic protocol has to cope with.
type MemoryTable struct {
	mu     sync.Mutex
	header []string
	rows   []interfaces.RegistryRow
}

func NewMemoryTable() *MemoryTable {
	return &MemoryTable{}
}

func (t *MemoryTable) EnsureHeader(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !slices.Equal(t.header, interfaces.RegistryHeader) {
		t.header = slices.Clone(interfaces.RegistryHeader)
	}
	return nil
}

// Header returns the current header row.
func (t *MemoryTable) Header() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.header)
}

func (t *MemoryTable) Rows(ctx context.Context) ([]TableRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]TableRow, len(t.rows))
	for i, row := range t.rows {
		out[i] = TableRow{Index: i + firstDataRow, Row: row}
	}
	return out, nil
}

func (t *MemoryTable) Append(ctx context.Context, row interfaces.RegistryRow) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rows = append(t.rows, row)
	return len(t.rows) - 1 + firstDataRow, nil
}

func (t *MemoryTable) UpdateStatus(ctx context.Context, index int, status interfaces.RowStatus, timestamp time.Time, notes string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	i := index - firstDataRow
	if i < 0 || i >= len(t.rows) {
		return fmt.Errorf("%w: row %d", interfaces.ErrRowNotFound, index)
	}
	t.rows[i].Status = status
	t.rows[i].Timestamp = timestamp
	t.rows[i].Notes = notes
	return nil
}

// MemoryTables hands out one MemoryTable per (registry id, worksheet).
type MemoryTables struct {
	mu     sync.Mutex
	tables map[string]*MemoryTable
}

func NewMemoryTables() *MemoryTables {
	return &MemoryTables{tables: make(map[string]*MemoryTable)}
}

// Table returns the table for domain, creating it on first use.
func (m *MemoryTables) Table(domain interfaces.DomainConfig) *MemoryTable {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := domain.RegistryID + "!" + domain.Worksheet
	table, ok := m.tables[key]
	if !ok {
		table = NewMemoryTable()
		m.tables[key] = table
	}
	return table
}

// Open satisfies TableOpener.
func (m *MemoryTables) Open(_ context.Context, domain interfaces.DomainConfig) (Table, error) {
	return m.Table(domain), nil
}
