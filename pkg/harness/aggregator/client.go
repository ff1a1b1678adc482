package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Post delivers report to an aggregator's POST /metrics endpoint at
// aggregatorURL (e.g. "http://aggregator:9090"). Populate and verify
// workers call this exactly once, at the end of their run, whether or
// not the run itself succeeded — a failed run still files a report
// with success=false.
func Post(ctx context.Context, aggregatorURL string, report Report) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, aggregatorURL+"/metrics", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build metrics request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting report to %s: %w", aggregatorURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("aggregator rejected report: status %d", resp.StatusCode)
	}
	return nil
}
