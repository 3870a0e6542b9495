package station

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"
	"github.com/seaward/tidereport/internal/models"
	"github.com/seaward/tidereport/pkg/http/client"
)

// NOAAMetadataClient fetches the full tide-prediction station list from
// the NOAA metadata API in a single call.
type NOAAMetadataClient struct {
	httpClient *client.Client
}

func NewNOAAMetadataClient(httpClient *client.Client) *NOAAMetadataClient {
	return &NOAAMetadataClient{httpClient: httpClient}
}

func (c *NOAAMetadataClient) FetchAllStations(ctx context.Context) ([]models.RemoteStation, error) {
	query := url.Values{"type": {"tidepredictions"}}

	resp, err := c.httpClient.Get(ctx, "/mdapi/prod/webapi/stations.json", query)
	if err != nil {
		return nil, fmt.Errorf("fetching station list: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching station list: unexpected status %d", resp.StatusCode)
	}

	var noaaResp struct {
		Stations []struct {
			ID   string  `json:"id"`
			Name string  `json:"name"`
			Lat  float64 `json:"lat"`
			Lng  float64 `json:"lng"`
		} `json:"stations"`
	}

	if err := json.Unmarshal(resp.Body, &noaaResp); err != nil {
		return nil, fmt.Errorf("decoding station list: %w", err)
	}

	stations := make([]models.RemoteStation, len(noaaResp.Stations))
	for i, s := range noaaResp.Stations {
		stations[i] = models.RemoteStation{
			ExternalID: s.ID,
			Name:       s.Name,
			// Six digits of decimal precision is plenty.
			Latitude:  round6(s.Lat),
			Longitude: round6(s.Lng),
		}
	}

	log.Debug().Int("station_count", len(stations)).Msg("Fetched station list from NOAA")
	return stations, nil
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
