package cms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"placemap/internal/adapters/fetch"
)

// Client reads the location collection of the headless CMS REST API.
type Client struct {
	base string
	g    *fetch.Getter
}

func New(base, key string, rps int) *Client {
	h := http.Header{}
	if key != "" {
		h.Set("Authorization", "users API-Key "+key)
	}
	return &Client{base: strings.TrimRight(base, "/"), g: fetch.New("cms", rps, h)}
}

type envelope struct {
	Docs        []map[string]any `json:"docs"`
	HasNextPage bool             `json:"hasNextPage"`
}

// ListLocations returns one page of location records. The endpoint may answer
// with a paginated {"docs": [...]} envelope or a bare array; a bare array is
// always the last page.
func (c *Client) ListLocations(ctx context.Context, page, limit int) ([]map[string]any, bool, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 100
	}
	u := fmt.Sprintf("%s/api/locations?limit=%d&page=%d&depth=1", c.base, limit, page)

	var raw json.RawMessage
	if err := c.g.GetJSON(ctx, "locations", u, &raw); err != nil {
		return nil, false, err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var docs []map[string]any
		if err := json.Unmarshal(trimmed, &docs); err != nil {
			return nil, false, fmt.Errorf("decode cms array: %w", err)
		}
		return docs, false, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, false, fmt.Errorf("decode cms envelope: %w", err)
	}
	return env.Docs, env.HasNextPage, nil
}
