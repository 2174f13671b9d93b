package registry

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ruteri/workstation-provisioning/interfaces"
)

// firstDataRow is the 1-based row number of the first row after the header.
const firstDataRow = 2

// TableRow is a registry row together with its 1-based row number in the
// table. Row numbers are stable: tables only ever append.
type TableRow struct {
	Index int
	Row   interfaces.RegistryRow
}

// Table is an append-only tabular backend holding registry rows under the
// canonical header (interfaces.RegistryHeader). A spreadsheet worksheet is
// the reference implementation.
type Table interface {
	// EnsureHeader writes the canonical header into the first row if it is
	// missing or different.
	EnsureHeader(ctx context.Context) error

	// Rows returns every data row in table order.
	Rows(ctx context.Context) ([]TableRow, error)

	// Append adds a row after the last one and returns its row number.
	Append(ctx context.Context, row interfaces.RegistryRow) (int, error)

	// UpdateStatus rewrites Status, Timestamp and Notes of an existing row.
	UpdateStatus(ctx context.Context, index int, status interfaces.RowStatus, timestamp time.Time, notes string) error
}

// TableOpener returns the table backing a domain.
type TableOpener func(ctx context.Context, domain interfaces.DomainConfig) (Table, error)

func rowToValues(row interfaces.RegistryRow) []interface{} {
	return []interface{}{
		row.Domain,
		row.Sequence,
		row.Hostname,
		row.AssignedUser,
		string(row.Status),
		formatTimestamp(row.Timestamp),
		row.Notes,
	}
}

// rowFromValues decodes a row. Short rows are padded; a row whose Sequence
// cell does not hold an integer decodes with Sequence 0 so it never matches
// a reservation.
func rowFromValues(values []interface{}) interfaces.RegistryRow {
	cell := func(i int) string {
		if i >= len(values) || values[i] == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(values[i]))
	}

	row := interfaces.RegistryRow{
		Domain:       cell(0),
		Hostname:     cell(2),
		AssignedUser: cell(3),
		Status:       interfaces.RowStatus(cell(4)),
		Notes:        cell(6),
	}
	row.Sequence = parseSequence(cell(1))
	if ts, err := time.Parse(time.RFC3339, cell(5)); err == nil {
		row.Timestamp = ts
	}
	return row
}

func parseSequence(cell string) int {
	if seq, err := strconv.Atoi(cell); err == nil {
		return seq
	}
	// Spreadsheets may render whole numbers as "7.0".
	if f, err := strconv.ParseFloat(cell, 64); err == nil && f == float64(int(f)) {
		return int(f)
	}
	return 0
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}

func sameDomain(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// nextSequence is one past the highest sequence ever used by the domain,
// superseded rows included, so sequences stay strictly increasing.
func nextSequence(rows []TableRow, domain string) int {
	maxSeq := 0
	for _, r := range rows {
		if sameDomain(r.Row.Domain, domain) && r.Row.Sequence > maxSeq {
			maxSeq = r.Row.Sequence
		}
	}
	return maxSeq + 1
}

// owner returns the earliest live row holding (domain, sequence).
func owner(rows []TableRow, domain string, sequence int) (TableRow, bool) {
	for _, r := range rows {
		if r.Row.Status == interfaces.StatusSuperseded {
			continue
		}
		if sameDomain(r.Row.Domain, domain) && r.Row.Sequence == sequence {
			return r, true
		}
	}
	return TableRow{}, false
}
