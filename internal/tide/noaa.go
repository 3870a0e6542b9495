package tide

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/seaward/tidereport/internal/models"
	"github.com/seaward/tidereport/pkg/http/client"
)

// NOAA reports event times as naive local time for the station.
const noaaTimeLayout = "2006-01-02 15:04"

// NOAAPredictionClient fetches high/low tide predictions for one station
// and one day from the NOAA datagetter API.
type NOAAPredictionClient struct {
	httpClient *client.Client
}

func NewNOAAPredictionClient(httpClient *client.Client) *NOAAPredictionClient {
	return &NOAAPredictionClient{httpClient: httpClient}
}

func (c *NOAAPredictionClient) FetchPredictions(ctx context.Context, externalID string) ([]models.TideEvent, error) {
	query := url.Values{
		"station":     {externalID},
		"date":        {"today"},
		"product":     {"predictions"},
		"datum":       {"MLLW"},
		"units":       {"english"},
		"time_zone":   {"lst_ldt"},
		"format":      {"json"},
		"interval":    {"hilo"},
		"application": {"tidereport"},
	}

	resp, err := c.httpClient.Get(ctx, "/api/prod/datagetter", query)
	if err != nil {
		return nil, fmt.Errorf("fetching predictions for station %s: %w", externalID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching predictions for station %s: unexpected status %d", externalID, resp.StatusCode)
	}

	var noaaResp models.NoaaPredictionsResponse
	if err := json.Unmarshal(resp.Body, &noaaResp); err != nil {
		return nil, fmt.Errorf("decoding predictions for station %s: %w", externalID, err)
	}

	events := make([]models.TideEvent, len(noaaResp.Predictions))
	for i, p := range noaaResp.Predictions {
		event, err := convertPrediction(p)
		if err != nil {
			return nil, err
		}
		events[i] = event
	}

	log.Debug().Str("station_id", externalID).Int("event_count", len(events)).Msg("Fetched predictions from NOAA")
	return events, nil
}

// convertPrediction turns one raw prediction into a TideEvent: the
// timestamp is parsed as naive local time, the H/L code mapped to a
// kind, and the signed decimal-feet change carried as total inches.
func convertPrediction(p models.NoaaPrediction) (models.TideEvent, error) {
	eventTime, err := time.Parse(noaaTimeLayout, p.Time)
	if err != nil {
		return models.TideEvent{}, fmt.Errorf("parsing prediction time %q: %w", p.Time, err)
	}

	change, err := strconv.ParseFloat(p.Height, 64)
	if err != nil {
		return models.TideEvent{}, fmt.Errorf("parsing water level %q: %w", p.Height, err)
	}

	return models.TideEvent{
		EventTime:    eventTime,
		Kind:         models.TideKindFromCode(p.Type),
		HeightInches: models.HeightInchesFromFeet(change),
	}, nil
}
