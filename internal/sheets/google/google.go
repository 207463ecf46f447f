package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"metas/internal/sheets"
)

// DefaultSheetName is used when GOOGLE_SHEET_NAME is empty.
const DefaultSheetName = "Deposits"

// Config selects the spreadsheet and the service account used to reach it.
type Config struct {
	SpreadsheetID string
	SheetName     string
	// CredentialsJSON wins over CredentialsFile. With neither set the
	// GOOGLE_APPLICATION_CREDENTIALS file is tried.
	CredentialsJSON string
	CredentialsFile string
}

// Mirror appends approved deposits to a sheet, one row each.
type Mirror struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ sheets.LedgerMirror = (*Mirror)(nil)

// New builds a mirror authenticated with service account credentials.
func New(ctx context.Context, cfg Config) (*Mirror, error) {
	creds, err := credentials(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithOptions(ctx, cfg,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
}

// NewWithOptions builds a mirror with caller supplied client options.
func NewWithOptions(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Mirror, error) {
	id := strings.TrimSpace(cfg.SpreadsheetID)
	if id == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	name := strings.TrimSpace(cfg.SheetName)
	if name == "" {
		name = DefaultSheetName
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets mirror ready", "component", "mirror", "sheet", name)
	return &Mirror{svc: svc, spreadsheetID: id, sheetName: name}, nil
}

func credentials(cfg Config) ([]byte, error) {
	if js := strings.TrimSpace(cfg.CredentialsJSON); js != "" {
		return []byte(js), nil
	}
	file := strings.TrimSpace(cfg.CredentialsFile)
	if file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if file == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return data, nil
}

// AppendDeposit adds d below the last row of the sheet and returns the
// range it landed in.
func (m *Mirror) AppendDeposit(ctx context.Context, d sheets.Deposit) (string, error) {
	if m.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:H", m.sheetName)
	vr := &gsheet.ValueRange{Values: [][]any{depositRow(d)}}

	resp, err := m.svc.Spreadsheets.Values.Append(m.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append deposit %s to %s: %w", d.ProofID, m.sheetName, err)
	}
	if resp.Updates == nil {
		return rng, nil
	}
	return resp.Updates.UpdatedRange, nil
}

// depositRow lays out columns A..H: date, goal title, slot, amount in reais,
// user, goal id, proof id, formatted amount.
func depositRow(d sheets.Deposit) []any {
	date := ""
	if !d.VerifiedAt.IsZero() {
		date = d.VerifiedAt.UTC().Format(time.DateOnly)
	}
	return []any{
		date,
		d.GoalTitle,
		d.Slot,
		d.Amount.Reais(),
		d.UserID,
		d.GoalID,
		d.ProofID,
		d.Amount.String(),
	}
}
