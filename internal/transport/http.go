package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"folio/internal/errors"
	shared "folio/shared/types"

	"go.uber.org/zap"
)

// SnapshotPath is where a folio server publishes its current branch tip
const SnapshotPath = "/api/snapshot"

// HTTP fetches snapshots from another folio server
type HTTP struct {
	httpClient *http.Client
	logger     *zap.Logger
}

func NewHTTP(logger *zap.Logger) *HTTP {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTP{
		httpClient: &http.Client{
			Timeout: time.Second * 60,
		},
		logger: logger,
	}
}

func (h *HTTP) Fetch(ctx context.Context, baseURL string) (*shared.Snapshot, error) {
	endpoint := strings.TrimSuffix(baseURL, "/") + SnapshotPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Transport("building request for "+baseURL, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, errors.Transport("fetching "+baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Transport(fmt.Sprintf("fetching %s: unexpected status: %s", baseURL, resp.Status), nil)
	}

	var snap shared.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, errors.Transport("decoding snapshot from "+baseURL, err)
	}
	if snap.Files == nil {
		snap.Files = map[string][]byte{}
	}

	h.logger.Debug("fetched snapshot",
		zap.String("url", baseURL),
		zap.String("branch", snap.Branch),
		zap.Int("files", len(snap.Files)))
	return &snap, nil
}
