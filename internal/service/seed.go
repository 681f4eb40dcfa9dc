package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// maxSeedSize bounds a seed document read from a file or URL.
const maxSeedSize = 32 << 20

// SeedData is an import document keyed by asset route.
type SeedData map[string][]map[string]interface{}

// LoadSeed reads a seed document from an http(s) URL or a local file.
func LoadSeed(ctx context.Context, client *http.Client, source string) (SeedData, error) {
	var body io.ReadCloser
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		if client == nil {
			client = http.DefaultClient
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, fmt.Errorf("build seed request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch seed: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("seed source returned status: %d", resp.StatusCode)
		}
		body = resp.Body
	} else {
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("open seed file: %w", err)
		}
		body = f
	}
	defer body.Close()

	raw, err := io.ReadAll(io.LimitReader(body, maxSeedSize))
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	var data SeedData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse seed JSON: %w", err)
	}
	return data, nil
}
