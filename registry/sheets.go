package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/ruteri/workstation-provisioning/common"
	"github.com/ruteri/workstation-provisioning/interfaces"
)

// Values are written verbatim; USER_ENTERED would let Sheets reinterpret
// timestamps as dates.
const valueInputOption = "RAW"

// SheetsService wraps an authenticated Google Sheets client and opens one
// SheetsTable per domain worksheet.
type SheetsService struct {
	svc *sheets.Service
	log *slog.Logger
}

// NewSheetsService authenticates with a service-account credentials file.
func NewSheetsService(ctx context.Context, credentialsPath string, log *slog.Logger) (*SheetsService, error) {
	return NewSheetsServiceWithOptions(ctx, log,
		option.WithCredentialsFile(credentialsPath),
		option.WithScopes(sheets.SpreadsheetsScope))
}

// NewSheetsServiceWithOptions builds the client from arbitrary client
// options, e.g. a custom endpoint in tests.
func NewSheetsServiceWithOptions(ctx context.Context, log *slog.Logger, opts ...option.ClientOption) (*SheetsService, error) {
	if log == nil {
		log = common.DiscardLogger()
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	return &SheetsService{svc: svc, log: log}, nil
}

// Open satisfies TableOpener.
func (s *SheetsService) Open(_ context.Context, domain interfaces.DomainConfig) (Table, error) {
	if domain.RegistryID == "" {
		return nil, fmt.Errorf("%w: domain %s has no sheet_id", interfaces.ErrInvalidConfig, domain.Name)
	}
	return &SheetsTable{
		svc:           s.svc,
		spreadsheetID: domain.RegistryID,
		worksheet:     domain.Worksheet,
		log:           s.log,
	}, nil
}

// SheetsTable is a worksheet of a Google spreadsheet laid out with the
// canonical header in row 1.
type SheetsTable struct {
	svc           *sheets.Service
	spreadsheetID string
	worksheet     string
	log           *slog.Logger
}

func (t *SheetsTable) rangeOf(cells string) string {
	return quoteSheetName(t.worksheet) + "!" + cells
}

func (t *SheetsTable) EnsureHeader(ctx context.Context) error {
	headerRange := t.rangeOf("A1:G1")
	resp, err := t.svc.Spreadsheets.Values.Get(t.spreadsheetID, headerRange).Context(ctx).Do()
	if err != nil {
		return classifySheetsError("read header", err)
	}

	var current []string
	if len(resp.Values) > 0 {
		for _, v := range resp.Values[0] {
			current = append(current, strings.TrimSpace(fmt.Sprint(v)))
		}
	}
	if slices.Equal(current, interfaces.RegistryHeader) {
		return nil
	}

	header := make([]interface{}, len(interfaces.RegistryHeader))
	for i, h := range interfaces.RegistryHeader {
		header[i] = h
	}
	_, err = t.svc.Spreadsheets.Values.Update(t.spreadsheetID, headerRange, &sheets.ValueRange{
		Values: [][]interface{}{header},
	}).ValueInputOption(valueInputOption).Context(ctx).Do()
	if err != nil {
		return classifySheetsError("write header", err)
	}

	t.log.Info("Created registry header",
		slog.String("spreadsheet", t.spreadsheetID),
		slog.String("worksheet", t.worksheet))
	return nil
}

func (t *SheetsTable) Rows(ctx context.Context) ([]TableRow, error) {
	resp, err := t.svc.Spreadsheets.Values.Get(t.spreadsheetID, t.rangeOf("A2:G")).Context(ctx).Do()
	if err != nil {
		return nil, classifySheetsError("read rows", err)
	}

	rows := make([]TableRow, 0, len(resp.Values))
	for i, values := range resp.Values {
		if len(values) == 0 {
			continue
		}
		rows = append(rows, TableRow{Index: i + firstDataRow, Row: rowFromValues(values)})
	}
	return rows, nil
}

func (t *SheetsTable) Append(ctx context.Context, row interfaces.RegistryRow) (int, error) {
	resp, err := t.svc.Spreadsheets.Values.Append(t.spreadsheetID, t.rangeOf("A:G"), &sheets.ValueRange{
		Values: [][]interface{}{rowToValues(row)},
	}).ValueInputOption(valueInputOption).InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return 0, classifySheetsError("append row", err)
	}
	if resp.Updates == nil {
		return 0, fmt.Errorf("%w: append response carries no updated range", interfaces.ErrRegistryUnavailable)
	}

	index, err := rowNumberFromRange(resp.Updates.UpdatedRange)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", interfaces.ErrRegistryUnavailable, err)
	}
	return index, nil
}

func (t *SheetsTable) UpdateStatus(ctx context.Context, index int, status interfaces.RowStatus, timestamp time.Time, notes string) error {
	cells := fmt.Sprintf("E%d:G%d", index, index)
	_, err := t.svc.Spreadsheets.Values.Update(t.spreadsheetID, t.rangeOf(cells), &sheets.ValueRange{
		Values: [][]interface{}{{string(status), formatTimestamp(timestamp), notes}},
	}).ValueInputOption(valueInputOption).Context(ctx).Do()
	if err != nil {
		return classifySheetsError("update row", err)
	}
	return nil
}

// quoteSheetName quotes a worksheet name for A1 notation.
func quoteSheetName(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// rowNumberFromRange extracts the first row number of an A1 range such as
// "'Devices'!A5:G5".
func rowNumberFromRange(a1 string) (int, error) {
	cells := a1
	if i := strings.LastIndex(a1, "!"); i >= 0 {
		cells = a1[i+1:]
	}
	start, _, _ := strings.Cut(cells, ":")
	digits := strings.TrimLeftFunc(start, func(r rune) bool {
		return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || r == '$'
	})
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("cannot parse row number from range %q", a1)
	}
	return n, nil
}

func classifySheetsError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return fmt.Errorf("%w: %s: %v", interfaces.ErrPermissionDenied, op, err)
		case apiErr.Code == http.StatusNotFound:
			return fmt.Errorf("%w: %s: spreadsheet not found: %v", interfaces.ErrPermissionDenied, op, err)
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500:
			return fmt.Errorf("%w: %s: %v", interfaces.ErrRegistryUnavailable, op, err)
		default:
			return fmt.Errorf("sheets %s: %w", op, err)
		}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", interfaces.ErrRegistryUnavailable, op, err)
}
