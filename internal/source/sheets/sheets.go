// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

// Package sheets reads candidate items from a Google spreadsheet. Every
// worksheet is scanned in order; the first row of each is a header.
package sheets

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/postgate-dev/postgate/internal/source"
	pgerr "github.com/postgate-dev/postgate/pkg/errors"
	"github.com/postgate-dev/postgate/pkg/types"
)

// Column positions within a worksheet row.
const (
	colTitle       = 0
	colURL         = 1
	colPrice       = 2
	colDescription = 6
	minColumns     = 3
)

// Config identifies the spreadsheet and how to reach it.
type Config struct {
	SpreadsheetID  string
	CredentialsB64 string // base64 service-account JSON
	Endpoint       string // API base URL override
}

// Source implements source.Source over the Sheets API.
type Source struct {
	svc           *gsheets.Service
	spreadsheetID string
}

var _ source.Source = (*Source)(nil)

// New builds the Sheets client. Extra options are appended after the ones
// derived from cfg.
func New(ctx context.Context, cfg Config, extra ...option.ClientOption) (*Source, error) {
	if cfg.SpreadsheetID == "" {
		return nil, pgerr.New(pgerr.CodeConfigRequiredMissing, "source.sheets.spreadsheet_id is required")
	}

	opts := []option.ClientOption{option.WithScopes(gsheets.SpreadsheetsReadonlyScope)}
	if cfg.CredentialsB64 != "" {
		creds, err := base64.StdEncoding.DecodeString(strings.TrimSpace(cfg.CredentialsB64))
		if err != nil {
			return nil, pgerr.Wrap(err, pgerr.CodeConfigValidateInvalidValue,
				"decoding source.sheets.credentials_b64")
		}
		opts = append(opts, option.WithCredentialsJSON(creds))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	opts = append(opts, extra...)

	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, pgerr.Wrap(err, pgerr.CodeSourceFetchFailure, "creating sheets client")
	}
	return &Source{svc: svc, spreadsheetID: cfg.SpreadsheetID}, nil
}

// FetchCandidates walks the worksheets in order. A worksheet that cannot be
// read is logged and skipped.
func (s *Source) FetchCandidates(ctx context.Context, maxCount int) ([]types.Item, error) {
	book, err := s.svc.Spreadsheets.Get(s.spreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return nil, pgerr.Wrap(err, pgerr.CodeSourceFetchFailure, "listing worksheets",
			pgerr.Field("spreadsheet_id", s.spreadsheetID))
	}

	var items []types.Item
	for _, sh := range book.Sheets {
		if sh.Properties == nil {
			continue
		}
		title := sh.Properties.Title

		vr, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, quoteRange(title)).Context(ctx).Do()
		if err != nil {
			slog.Warn("skipping unreadable worksheet", "sheet", title, "error", err)
			continue
		}

		for _, row := range rowsAfterHeader(vr.Values) {
			item, ok := parseRow(row, title)
			if !ok {
				continue
			}
			items = append(items, item)
			if maxCount > 0 && len(items) >= maxCount {
				return items, nil
			}
		}
	}
	return items, nil
}

func rowsAfterHeader(values [][]interface{}) [][]interface{} {
	if len(values) <= 1 {
		return nil
	}
	return values[1:]
}

// parseRow maps a row onto an item. Rows shorter than three cells or with
// an empty URL are skipped.
func parseRow(row []interface{}, sheet string) (types.Item, bool) {
	if len(row) < minColumns {
		return types.Item{}, false
	}
	cell := func(i int) string {
		if i >= len(row) || row[i] == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(row[i]))
	}
	if cell(colURL) == "" {
		return types.Item{}, false
	}

	item := types.Item{
		Title:       cell(colTitle),
		URL:         cell(colURL),
		Price:       cell(colPrice),
		Description: cell(colDescription),
		Sheet:       sheet,
	}
	if len(row) <= colDescription {
		item.Description = item.Title
	}
	return item, true
}

func quoteRange(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}
