package printer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/tableflow/api/internal/database"
)

// LogDevice writes rendered receipts to the process log.
type LogDevice struct{}

func (LogDevice) Print(_ context.Context, e database.PrinterQueueEntry, r Receipt) error {
	log.Printf("print %s receipt for order %s (entry %s)\n%s", e.ReceiptType, e.OrderID, e.ID, Render(r))
	return nil
}

// HTTPDoer is satisfied by *transport.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPDevice posts receipts to an in-store print bridge.
type HTTPDevice struct {
	client HTTPDoer
	url    string
}

func NewHTTPDevice(client HTTPDoer, url string) *HTTPDevice {
	return &HTTPDevice{client: client, url: url}
}

type bridgeJob struct {
	EntryID     string  `json:"entry_id"`
	TenantID    string  `json:"tenant_id"`
	ReceiptType string  `json:"receipt_type"`
	Text        string  `json:"text"`
	Receipt     Receipt `json:"receipt"`
}

func (d *HTTPDevice) Print(ctx context.Context, e database.PrinterQueueEntry, r Receipt) error {
	body, err := json.Marshal(bridgeJob{
		EntryID:     e.ID.String(),
		TenantID:    e.TenantID.String(),
		ReceiptType: e.ReceiptType,
		Text:        Render(r),
		Receipt:     r,
	})
	if err != nil {
		return fmt.Errorf("marshal bridge job: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build bridge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", e.ID.String())

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("print bridge returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
