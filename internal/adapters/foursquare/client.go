package foursquare

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"placemap/internal/adapters/fetch"
)

const fields = "fsq_id,name,categories,location,geocodes,rating,photos,description,tel,website"

type Client struct {
	base string
	g    *fetch.Getter
}

// New builds a Places API client. The v3 API takes the bare key in
// Authorization, without a scheme prefix.
func New(base, key string, rps int) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("API key is required")
	}
	h := http.Header{}
	h.Set("Authorization", key)
	return &Client{base: base, g: fetch.New("foursquare", rps, h)}, nil
}

type searchResponse struct {
	Results []map[string]any `json:"results"`
}

// Nearby searches places around (lat, lng) and returns the raw result records.
func (c *Client) Nearby(ctx context.Context, lat, lng float64, radiusM int, query string) ([]map[string]any, error) {
	q := url.Values{}
	q.Set("ll", strconv.FormatFloat(lat, 'f', 6, 64)+","+strconv.FormatFloat(lng, 'f', 6, 64))
	if radiusM > 0 {
		q.Set("radius", strconv.Itoa(radiusM))
	}
	if query != "" {
		q.Set("query", query)
	}
	q.Set("limit", "50")
	q.Set("fields", fields)

	var out searchResponse
	if err := c.g.GetJSON(ctx, "search", c.base+"/search?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}
