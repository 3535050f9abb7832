package connector

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// sheetsSource reads every sheet of a Google Sheets spreadsheet. The
// first row of each sheet is treated as the header.
type sheetsSource struct {
	spreadsheetID   string
	credentialsJSON string
	tableNames      []string
	batchSize       int
}

func newSheetsSource(config Config, pc *PipelineConfig, batchSize int) (*sheetsSource, error) {
	id := config.stringVal("spreadsheet_id")
	if id == "" {
		if rawURL := config.stringVal("spreadsheet_url"); rawURL != "" {
			id = spreadsheetIDFromURL(rawURL)
		}
	}
	if id == "" {
		return nil, NewConfigError("google_sheets source requires 'spreadsheet_id' or 'spreadsheet_url'")
	}
	return &sheetsSource{
		spreadsheetID:   id,
		credentialsJSON: config.stringVal("credentials_json"),
		tableNames:      pc.TableNames,
		batchSize:       batchSize,
	}, nil
}

func spreadsheetIDFromURL(rawURL string) string {
	const marker = "/spreadsheets/d/"
	idx := strings.Index(rawURL, marker)
	if idx < 0 {
		return ""
	}
	rest := rawURL[idx+len(marker):]
	if end := strings.IndexAny(rest, "/?#"); end >= 0 {
		rest = rest[:end]
	}
	return rest
}

func (s *sheetsSource) Read(ctx context.Context, sink Sink) error {
	var opts []option.ClientOption
	if s.credentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(s.credentialsJSON)))
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return errors.Wrap(err, "failed to create sheets client")
	}

	spreadsheet, err := svc.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return errors.Wrapf(err, "failed to load spreadsheet %s", s.spreadsheetID)
	}

	allowed := make(map[string]bool, len(s.tableNames))
	for _, n := range s.tableNames {
		allowed[n] = true
	}

	for _, sheet := range spreadsheet.Sheets {
		title := sheet.Properties.Title
		if len(allowed) > 0 && !allowed[title] {
			continue
		}
		if err := s.readSheet(ctx, svc, title, sink); err != nil {
			return errors.Wrapf(err, "failed reading sheet %s", title)
		}
	}
	return nil
}

func (s *sheetsSource) Close() error { return nil }

func (s *sheetsSource) readSheet(ctx context.Context, svc *sheets.Service, title string, sink Sink) error {
	resp, err := svc.Spreadsheets.Values.Get(s.spreadsheetID, title).Context(ctx).Do()
	if err != nil {
		return err
	}
	if len(resp.Values) < 2 {
		return nil
	}

	header := make([]string, len(resp.Values[0]))
	for i, cell := range resp.Values[0] {
		header[i] = strings.TrimSpace(fmt.Sprint(cell))
	}

	table := tableNameFromFile(title)
	rows := make([]Row, 0, s.batchSize)
	for _, record := range resp.Values[1:] {
		row := make(Row, len(header))
		for i, col := range header {
			if col == "" {
				continue
			}
			if i < len(record) {
				row[col] = record[i]
			} else {
				row[col] = nil
			}
		}
		rows = append(rows, row)
		if len(rows) >= s.batchSize {
			if err := sink(ctx, Batch{Table: table, Rows: rows}); err != nil {
				return err
			}
			rows = make([]Row, 0, s.batchSize)
		}
	}
	if len(rows) > 0 {
		return sink(ctx, Batch{Table: table, Rows: rows})
	}
	return nil
}
