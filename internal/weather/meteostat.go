package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/vendcast/internal/config"
	"github.com/andresuchdata/vendcast/internal/domain"
)

const dateLayout = "2006-01-02"

// Client reads daily point data from the Meteostat JSON API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(cfg config.WeatherConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type dailyResponse struct {
	Data []map[string]json.RawMessage `json:"data"`
}

// Daily returns one record per day between start and end, inclusive. Null
// measurements are left out of Values; the API's "temp" is reported as
// tavg.
func (c *Client) Daily(ctx context.Context, lat, lon float64, start, end time.Time) ([]domain.DailyWeather, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("start", start.Format(dateLayout))
	q.Set("end", end.Format(dateLayout))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/point/daily?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build weather request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("x-rapidapi-key", c.apiKey)
		if u, err := url.Parse(c.baseURL); err == nil {
			req.Header.Set("x-rapidapi-host", u.Host)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("weather api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload dailyResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode weather response: %w", err)
	}

	out := make([]domain.DailyWeather, 0, len(payload.Data))
	for _, rec := range payload.Data {
		var raw string
		if err := json.Unmarshal(rec["date"], &raw); err != nil {
			return nil, fmt.Errorf("weather record without date: %w", err)
		}
		date, err := time.Parse(dateLayout, raw[:min(len(raw), len(dateLayout))])
		if err != nil {
			return nil, fmt.Errorf("parse weather date %q: %w", raw, err)
		}

		values := make(map[string]float64)
		for name, msg := range rec {
			if name == "date" {
				continue
			}
			var v *float64
			if err := json.Unmarshal(msg, &v); err != nil || v == nil {
				continue
			}
			if name == "temp" {
				name = "tavg"
			}
			values[name] = *v
		}
		out = append(out, domain.DailyWeather{Date: date, Values: values})
	}

	return out, nil
}
