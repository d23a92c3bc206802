package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"google.golang.org/api/option"
	sheetsv4 "google.golang.org/api/sheets/v4"
)

// valueRanges is the slice of the Sheets values API the DAO needs.
type valueRanges interface {
	get(ctx context.Context, a1 string) ([][]interface{}, error)
	update(ctx context.Context, a1 string, values [][]interface{}) error
}

type Client struct {
	values        valueRanges
	spreadsheetID string
	log           *slog.Logger
}

func New(serviceAccountJSONPath, spreadsheetID string, logger *slog.Logger) (*Client, error) {
	if _, err := os.Stat(serviceAccountJSONPath); err != nil {
		return nil, fmt.Errorf("service account json: %w", err)
	}
	ctx := context.Background()
	srv, err := sheetsv4.NewService(ctx,
		option.WithCredentialsFile(serviceAccountJSONPath),
		option.WithScopes(sheetsv4.SpreadsheetsScope),
	)
	if err != nil {
		return nil, err
	}
	return &Client{
		values:        &apiValues{srv: srv, spreadsheetID: spreadsheetID},
		spreadsheetID: spreadsheetID,
		log:           logger.With("component", "sheets"),
	}, nil
}

func (c *Client) SpreadsheetID() string { return c.spreadsheetID }

// Close is a no-op: the Sheets service holds no connection of its own.
func (c *Client) Close() error { return nil }

type apiValues struct {
	srv           *sheetsv4.Service
	spreadsheetID string
}

func (a *apiValues) get(ctx context.Context, a1 string) ([][]interface{}, error) {
	resp, err := a.srv.Spreadsheets.Values.Get(a.spreadsheetID, a1).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (a *apiValues) update(ctx context.Context, a1 string, values [][]interface{}) error {
	vr := &sheetsv4.ValueRange{Values: values}
	_, err := a.srv.Spreadsheets.Values.Update(a.spreadsheetID, a1, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}
