package maps

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/seaward/tidereport/pkg/http/client"
)

// GoogleStaticMapClient fetches a small static map image centered on a
// station's coordinates. Every request costs money, which is why the
// image cache in front of it has the longest freshness window.
type GoogleStaticMapClient struct {
	httpClient *client.Client
	apiKey     string
}

func NewGoogleStaticMapClient(httpClient *client.Client, apiKey string) *GoogleStaticMapClient {
	return &GoogleStaticMapClient{httpClient: httpClient, apiKey: apiKey}
}

func (c *GoogleStaticMapClient) FetchMapImage(ctx context.Context, latitude, longitude float64) ([]byte, error) {
	coords := strconv.FormatFloat(latitude, 'f', -1, 64) + "," + strconv.FormatFloat(longitude, 'f', -1, 64)

	query := url.Values{
		"markers": {coords},
		"size":    {"320x280"},
		"scale":   {"1"},
		"zoom":    {"15"},
		"key":     {c.apiKey},
	}

	resp, err := c.httpClient.Get(ctx, "/maps/api/staticmap", query)
	if err != nil {
		return nil, fmt.Errorf("fetching map image for %s: %w", coords, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching map image for %s: unexpected status %d", coords, resp.StatusCode)
	}

	log.Debug().Str("coordinates", coords).Int("byte_count", len(resp.Body)).Msg("Fetched static map image")
	return resp.Body, nil
}
