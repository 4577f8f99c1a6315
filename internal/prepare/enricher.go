package prepare

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/andresuchdata/vendcast/internal/domain"
	"github.com/rs/zerolog/log"
)

// TimeFeatures are the features AddTimeFeature understands.
var TimeFeatures = []string{"year", "month", "day", "weekday", "hour", "minute", "second"}

// AddTimeFeature adds a feature derived from SaleDate. weekday counts from
// Monday = 0.
func AddTimeFeature(txs []domain.Transaction, feature string) ([]domain.Transaction, error) {
	name := strings.ToLower(feature)
	extract, ok := timeExtractors[name]
	if !ok {
		return nil, fmt.Errorf("time feature %q not supported", feature)
	}

	out := make([]domain.Transaction, len(txs))
	for i, tx := range txs {
		out[i] = tx.WithFeature(name, extract(tx.SaleDate))
	}

	log.Info().Str("feature", name).Msg("time feature added")
	return out, nil
}

var timeExtractors = map[string]func(time.Time) int{
	"year":    func(t time.Time) int { return t.Year() },
	"month":   func(t time.Time) int { return int(t.Month()) },
	"day":     func(t time.Time) int { return t.Day() },
	"weekday": func(t time.Time) int { return (int(t.Weekday()) + 6) % 7 },
	"hour":    func(t time.Time) int { return t.Hour() },
	"minute":  func(t time.Time) int { return t.Minute() },
	"second":  func(t time.Time) int { return t.Second() },
}

// WeatherClient fetches daily weather for a point.
type WeatherClient interface {
	Daily(ctx context.Context, lat, lon float64, start, end time.Time) ([]domain.DailyWeather, error)
}

// MachineSource delivers the machine register.
type MachineSource interface {
	LoadMachines(ctx context.Context) ([]domain.Machine, error)
}

type weatherKey struct {
	location string
	day      string
}

// Enricher joins daily weather onto transactions. Weather is fetched once
// per instance, one machine at a time with Delay between calls to stay
// under the provider's rate limit.
type Enricher struct {
	weather  WeatherClient
	machines MachineSource
	Delay    time.Duration

	records map[weatherKey]map[string]float64
}

func NewEnricher(weather WeatherClient, machines MachineSource, delay time.Duration) *Enricher {
	return &Enricher{weather: weather, machines: machines, Delay: delay}
}

// AddWeather adds every property to each transaction, matched on Location
// and calendar day. Unknown weather leaves the feature nil.
func (e *Enricher) AddWeather(ctx context.Context, txs []domain.Transaction, properties []string) ([]domain.Transaction, error) {
	if len(txs) == 0 {
		return txs, nil
	}

	start, end := txs[0].SaleDate, txs[0].SaleDate
	for _, tx := range txs[1:] {
		if tx.SaleDate.Before(start) {
			start = tx.SaleDate
		}
		if tx.SaleDate.After(end) {
			end = tx.SaleDate
		}
	}

	if err := e.load(ctx, start, end); err != nil {
		return nil, err
	}

	out := make([]domain.Transaction, len(txs))
	matched := 0
	for i, tx := range txs {
		values, ok := e.records[weatherKey{location: tx.Location, day: tx.SaleDate.Format("2006-01-02")}]
		if ok {
			matched++
		}
		for _, prop := range properties {
			var v any
			if f, found := values[prop]; found {
				v = f
			}
			tx = tx.WithFeature(prop, v)
		}
		out[i] = tx
	}

	log.Info().
		Strs("properties", properties).
		Int("transactions", len(txs)).
		Int("matched", matched).
		Msg("weather data added")
	return out, nil
}

func (e *Enricher) load(ctx context.Context, start, end time.Time) error {
	if e.records != nil {
		return nil
	}

	machines, err := e.machines.LoadMachines(ctx)
	if err != nil {
		return fmt.Errorf("load machines: %w", err)
	}

	records := make(map[weatherKey]map[string]float64)
	fetched := 0
	for _, m := range machines {
		if m.Latitude == 0 && m.Longitude == 0 {
			continue
		}
		if fetched > 0 && e.Delay > 0 {
			if err := sleep(ctx, e.Delay); err != nil {
				return err
			}
		}
		fetched++

		days, err := e.weather.Daily(ctx, m.Latitude, m.Longitude, start, end)
		if err != nil {
			return fmt.Errorf("fetch weather for machine %d: %w", m.MachineID, err)
		}
		for _, d := range days {
			key := weatherKey{location: m.Location, day: d.Date.Format("2006-01-02")}
			if _, seen := records[key]; !seen {
				records[key] = d.Values
			}
		}
	}

	e.records = records
	log.Info().Int("machines", fetched).Int("records", len(records)).Msg("weather data loaded from the api")
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
