// Package google exports transactions to a Google Sheets worksheet
// through a service account. One transaction occupies one row, keyed
// by its id in column A, so re-exports overwrite instead of
// duplicating.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	ports "bilancio/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Config carries everything the client needs; exactly one of
// CredentialsFile and CredentialsJSON must be set.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsFile string
	CredentialsJSON string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ ports.TransactionExporter = (*Client)(nil)

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if strings.TrimSpace(cfg.SheetName) == "" {
		return nil, errors.New("missing sheet name")
	}

	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     cfg.SheetName,
	}, nil
}

// newSheetsService initializes a Sheets Service using service account
// credentials, inline JSON taking precedence over a file path.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	var credentialsJSON []byte
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		credentialsJSON = []byte(cfg.CredentialsJSON)
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = data
	default:
		return nil, errors.New("missing service account credentials")
	}

	slog.InfoContext(ctx, "Creating Google Sheets service",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// Upsert writes the row into the worksheet, overwriting the row that
// already holds this transaction id or appending a new one.
func (c *Client) Upsert(ctx context.Context, row ports.ExportRow) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	ids, err := c.readIDColumn(ctx)
	if err != nil {
		return "", err
	}

	rowNum := findRowByID(ids, row.TransactionID)
	if rowNum == 0 {
		// Append after the last occupied row; row 1 is the header.
		rowNum = len(ids) + 2
	}

	dataRange := fmt.Sprintf("%s!A%d:G%d", c.sheetName, rowNum, rowNum)
	vr := &gsheet.ValueRange{Values: [][]any{rowValues(row)}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, dataRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update %s: %w", dataRange, err)
	}

	return dataRange, nil
}

// Delete clears the row holding the transaction, leaving the sheet's
// other rows in place.
func (c *Client) Delete(ctx context.Context, transactionID int64) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	ids, err := c.readIDColumn(ctx)
	if err != nil {
		return err
	}

	rowNum := findRowByID(ids, transactionID)
	if rowNum == 0 {
		// Never exported; nothing to clear.
		return nil
	}

	clearRange := fmt.Sprintf("%s!A%d:G%d", c.sheetName, rowNum, rowNum)
	_, err = c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", clearRange, err)
	}
	return nil
}

// readIDColumn returns column A below the header row.
func (c *Client) readIDColumn(ctx context.Context) ([][]any, error) {
	rng := fmt.Sprintf("%s!A2:A", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}
