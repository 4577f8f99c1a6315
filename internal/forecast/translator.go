package forecast

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/andresuchdata/vendcast/internal/domain"
	"github.com/rs/zerolog/log"
)

// AuxiliarySource delivers the current stock and product margins.
type AuxiliarySource interface {
	LoadLocationStock(ctx context.Context) ([]domain.StockLevel, error)
	LoadGrossProfit(ctx context.Context) ([]domain.PriceEntry, error)
}

// TranslationReport counts the anomalies recovered while translating.
type TranslationReport struct {
	ForecastRows         int `json:"forecast_rows"`
	LostSalesRows        int `json:"lost_sales_rows"`
	UnstockedRows        int `json:"unstocked_rows"`
	UnpricedRows         int `json:"unpriced_rows"`
	InvalidPrices        int `json:"invalid_prices"`
	MissingProductNames  int `json:"missing_product_names"`
	MissingLocationNames int `json:"missing_location_names"`
}

// TranslationResult is the business view of one corrected forecast.
type TranslationResult struct {
	Products  domain.RefillAdviceTable
	Locations domain.RefillAdviceTable
	Report    TranslationReport
}

// BusinessTranslator turns a corrected forecast into refill advice. Stock,
// prices and names are loaded once per instance; build a new translator
// for every run.
type BusinessTranslator struct {
	source    AuxiliarySource
	allowable float64
	now       func() time.Time

	stock         map[SalesKey]float64
	prices        map[int64]float64
	productNames  map[int64]string
	locationNames map[string]string

	report TranslationReport
}

// NewBusinessTranslator returns a translator reading from source. A
// non-positive allowable missed profit falls back to the default.
func NewBusinessTranslator(source AuxiliarySource, allowableMissedProfit float64) *BusinessTranslator {
	if allowableMissedProfit <= 0 {
		allowableMissedProfit = DefaultAllowableMissedProfit
	}
	return &BusinessTranslator{
		source:    source,
		allowable: allowableMissedProfit,
		now:       time.Now,
	}
}

// WithClock replaces the clock used for relative day labels.
func (t *BusinessTranslator) WithClock(now func() time.Time) *BusinessTranslator {
	t.now = now
	return t
}

// Report returns the counters collected so far.
func (t *BusinessTranslator) Report() TranslationReport { return t.report }

func (t *BusinessTranslator) loadStock(ctx context.Context) error {
	if t.stock != nil {
		return nil
	}

	levels, err := t.source.LoadLocationStock(ctx)
	if err != nil {
		return fmt.Errorf("load location stock: %w", err)
	}

	stock := make(map[SalesKey]float64, len(levels))
	products := make(map[int64]string)
	locations := make(map[string]string)
	for _, s := range levels {
		key := SalesKey{Location: s.Location, ProductID: s.ProductID}
		if _, dup := stock[key]; !dup {
			stock[key] = s.AvailableCount
		}
		if _, ok := products[s.ProductID]; !ok && s.ProductName != "" {
			products[s.ProductID] = s.ProductName
		}
		if _, ok := locations[s.Location]; !ok && s.LocationName != "" {
			locations[s.Location] = s.LocationName
		}
	}

	t.stock, t.productNames, t.locationNames = stock, products, locations
	return nil
}

func (t *BusinessTranslator) loadPrices(ctx context.Context) error {
	if t.prices != nil {
		return nil
	}

	entries, err := t.source.LoadGrossProfit(ctx)
	if err != nil {
		return fmt.Errorf("load gross profit: %w", err)
	}
	t.prices, t.report.InvalidPrices = BuildPriceLookup(entries)
	return nil
}

// LostSales subtracts the cumulative forecast from the current stock. Rows
// without a stock entry or with unknown stock are dropped, dates where stock covers the forecast are 0
// and shortfalls are reported as positive units.
func (t *BusinessTranslator) LostSales(ctx context.Context, sales CumulativeSales) (DateMatrix[SalesKey], error) {
	if err := t.loadStock(ctx); err != nil {
		return DateMatrix[SalesKey]{}, err
	}

	out := DateMatrix[SalesKey]{Dates: append([]time.Time(nil), sales.Dates...)}
	unstocked := 0
	for i, key := range sales.Keys {
		available, ok := t.stock[key]
		if !ok || math.IsNaN(available) {
			unstocked++
			continue
		}
		row := make([]float64, len(sales.Dates))
		for j, forecast := range sales.Values[i] {
			if diff := available - forecast; diff < 0 {
				row[j] = -diff
			}
		}
		out.Keys = append(out.Keys, key)
		out.Values = append(out.Values, row)
	}

	t.report.ForecastRows = sales.Len()
	t.report.LostSalesRows = out.Len()
	t.report.UnstockedRows = unstocked
	if unstocked > 0 {
		log.Warn().Int("rows", unstocked).Msg("forecast rows without stock dropped")
	}
	return out, nil
}

// Turnover multiplies lost units by the product's gross profit. Products
// missing from the price lookup get a zero row.
func (t *BusinessTranslator) Turnover(ctx context.Context, lost DateMatrix[SalesKey]) (DateMatrix[SalesKey], error) {
	if err := t.loadPrices(ctx); err != nil {
		return DateMatrix[SalesKey]{}, err
	}

	out := lost.Clone()
	unpriced := 0
	for i, key := range out.Keys {
		price, ok := t.prices[key.ProductID]
		if !ok {
			log.Warn().Int64("product_id", key.ProductID).Str("location", key.Location).
				Msg("product seems to no longer be in active inventory")
			unpriced++
			price = 0
		}
		for j := range out.Values[i] {
			out.Values[i][j] *= price
		}
	}

	t.report.UnpricedRows = unpriced
	return out, nil
}

// GroupByLocation sums every product row of a location. Locations come out
// sorted.
func GroupByLocation(m DateMatrix[SalesKey]) DateMatrix[string] {
	sums := make(map[string][]float64)
	for i, key := range m.Keys {
		acc, ok := sums[key.Location]
		if !ok {
			acc = make([]float64, len(m.Dates))
			sums[key.Location] = acc
		}
		for j, v := range m.Values[i] {
			acc[j] += v
		}
	}

	out := DateMatrix[string]{Dates: append([]time.Time(nil), m.Dates...)}
	for loc := range sums {
		out.Keys = append(out.Keys, loc)
	}
	sort.Strings(out.Keys)
	for _, loc := range out.Keys {
		out.Values = append(out.Values, sums[loc])
	}
	return out
}

// Translate runs lost sales, turnover, location grouping and refill advice
// over a corrected forecast. The report covers this call only.
func (t *BusinessTranslator) Translate(ctx context.Context, corrected CumulativeSales) (TranslationResult, error) {
	// prices are loaded once per instance, so their count carries over
	t.report = TranslationReport{InvalidPrices: t.report.InvalidPrices}

	lost, err := t.LostSales(ctx, corrected)
	if err != nil {
		return TranslationResult{}, err
	}
	turnover, err := t.Turnover(ctx, lost)
	if err != nil {
		return TranslationResult{}, err
	}
	perLocation := GroupByLocation(turnover)

	today := Day(t.now())
	labels := RelativeDayLabels(turnover.Dates, today)

	products := domain.RefillAdviceTable{Dates: turnover.Dates, DayLabels: labels}
	for i, date := range RefillDates(turnover, t.allowable) {
		key := turnover.Keys[i]
		id := key.ProductID
		products.Rows = append(products.Rows, domain.RefillAdviceRow{
			Location:     key.Location,
			LocationName: t.locationName(key.Location),
			ProductID:    &id,
			ProductName:  t.productName(id),
			MissedProfit: turnover.Values[i],
			RefillDate:   date,
		})
	}

	locations := domain.RefillAdviceTable{Dates: perLocation.Dates, DayLabels: labels}
	for i, date := range RefillDates(perLocation, t.allowable) {
		loc := perLocation.Keys[i]
		locations.Rows = append(locations.Rows, domain.RefillAdviceRow{
			Location:     loc,
			LocationName: t.locationName(loc),
			MissedProfit: perLocation.Values[i],
			RefillDate:   date,
		})
	}

	log.Info().
		Int("product_rows", len(products.Rows)).
		Int("location_rows", len(locations.Rows)).
		Int("unstocked", t.report.UnstockedRows).
		Int("unpriced", t.report.UnpricedRows).
		Float64("allowable_missed_profit", t.allowable).
		Msg("translated forecast to refill advice")

	return TranslationResult{Products: products, Locations: locations, Report: t.report}, nil
}

func (t *BusinessTranslator) productName(id int64) *string {
	name, ok := t.productNames[id]
	if !ok {
		t.report.MissingProductNames++
		return nil
	}
	return &name
}

func (t *BusinessTranslator) locationName(loc string) *string {
	name, ok := t.locationNames[loc]
	if !ok {
		t.report.MissingLocationNames++
		return nil
	}
	return &name
}
