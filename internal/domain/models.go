// internal/domain/models.go
package domain

import (
	"math"
	"time"
)

// Transaction is a single vending sale. One row is one unit sold.
type Transaction struct {
	ProductID       int64     `json:"product_id" db:"ProductId"`
	ProductName     string    `json:"product_name" db:"ProductName"`
	PackagingType   string    `json:"packaging_type" db:"PackagingType"`
	Brand           string    `json:"brand" db:"Brand"`
	ProductCategory string    `json:"product_category" db:"ProductCategory"`
	GrossProfit     float64   `json:"gross_profit" db:"GrossProfit"`
	SaleDate        time.Time `json:"sale_date" db:"SaleDate"`
	MachineID       int64     `json:"machine_id" db:"MachineId"`
	MachineName     string    `json:"machine_name" db:"MachineName"`
	Latitude        float64   `json:"latitude" db:"Latitude"`
	Longitude       float64   `json:"longitude" db:"Longitude"`
	Location        string    `json:"location" db:"Location"`
	LocationType    string    `json:"location_type" db:"LocationType"`
	Environment     string    `json:"environment" db:"Environment"`
	InServiceHours  string    `json:"in_service_hours" db:"InServiceHours"`
	InServiceDays   string    `json:"in_service_days" db:"InServiceDays"`

	// Features holds enrichment columns (weekday, tavg, prcp, ...).
	// A nil value means the feature is unknown for this row.
	Features map[string]any `json:"features,omitempty" db:"-"`
}

// Column names of the transaction contract.
const (
	ColProductID       = "ProductId"
	ColProductName     = "ProductName"
	ColPackagingType   = "PackagingType"
	ColBrand           = "Brand"
	ColProductCategory = "ProductCategory"
	ColGrossProfit     = "GrossProfit"
	ColSaleDate        = "SaleDate"
	ColMachineID       = "MachineId"
	ColMachineName     = "MachineName"
	ColLatitude        = "Latitude"
	ColLongitude       = "Longitude"
	ColLocation        = "Location"
	ColLocationType    = "LocationType"
	ColEnvironment     = "Environment"
	ColInServiceHours  = "InServiceHours"
	ColInServiceDays   = "InServiceDays"
)

// TransactionColumns lists the contract columns in their required order.
var TransactionColumns = []string{
	ColProductID, ColProductName, ColPackagingType, ColBrand, ColProductCategory,
	ColGrossProfit, ColSaleDate, ColMachineID, ColMachineName, ColLatitude,
	ColLongitude, ColLocation, ColLocationType, ColEnvironment,
	ColInServiceHours, ColInServiceDays,
}

// Column returns the value stored under name, looking at the contract
// columns first and the enrichment features second.
func (t Transaction) Column(name string) (any, bool) {
	switch name {
	case ColProductID:
		return t.ProductID, true
	case ColProductName:
		return t.ProductName, true
	case ColPackagingType:
		return t.PackagingType, true
	case ColBrand:
		return t.Brand, true
	case ColProductCategory:
		return t.ProductCategory, true
	case ColGrossProfit:
		return t.GrossProfit, true
	case ColSaleDate:
		return t.SaleDate, true
	case ColMachineID:
		return t.MachineID, true
	case ColMachineName:
		return t.MachineName, true
	case ColLatitude:
		return t.Latitude, true
	case ColLongitude:
		return t.Longitude, true
	case ColLocation:
		return t.Location, true
	case ColLocationType:
		return t.LocationType, true
	case ColEnvironment:
		return t.Environment, true
	case ColInServiceHours:
		return t.InServiceHours, true
	case ColInServiceDays:
		return t.InServiceDays, true
	}
	v, ok := t.Features[name]
	return v, ok
}

// WithFeature returns a copy of t with the feature set. The feature map is
// copied so the original row is never mutated.
func (t Transaction) WithFeature(name string, value any) Transaction {
	features := make(map[string]any, len(t.Features)+1)
	for k, v := range t.Features {
		features[k] = v
	}
	features[name] = value
	t.Features = features
	return t
}

// Machine describes a vending machine and where it stands.
type Machine struct {
	MachineID      int64   `json:"machine_id" db:"MachineId"`
	MachineName    string  `json:"machine_name" db:"MachineName"`
	Latitude       float64 `json:"latitude" db:"Latitude"`
	Longitude      float64 `json:"longitude" db:"Longitude"`
	Location       string  `json:"location" db:"Location"`
	LocationType   string  `json:"location_type" db:"LocationType"`
	Environment    string  `json:"environment" db:"Environment"`
	InServiceHours string  `json:"in_service_hours" db:"InServiceHours"`
	InServiceDays  string  `json:"in_service_days" db:"InServiceDays"`
}

// StockLevel is the current stock of one product at one location, together
// with the product and location attributes the stock query carries.
// AvailableCount is NaN when the source does not know the stock.
type StockLevel struct {
	Location        string    `json:"location" db:"Location"`
	LocationName    string    `json:"location_name" db:"LocationName"`
	ProductID       int64     `json:"product_id" db:"ProductId"`
	ProductName     string    `json:"product_name" db:"ProductName"`
	PackagingType   string    `json:"packaging_type" db:"PackagingType"`
	Brand           string    `json:"brand" db:"Brand"`
	ProductCategory string    `json:"product_category" db:"ProductCategory"`
	GrossProfit     *float64  `json:"gross_profit" db:"GrossProfit"`
	AvailableCount  float64   `json:"available_count" db:"AvailableCount"`
	MaxCount        float64   `json:"max_count" db:"MaxCount"`
	StockedAt       time.Time `json:"stocked_at" db:"DateTimeStock"`
}

// BaselineSales is the historical average units sold per day. Weekday is nil
// when the source does not split by weekday.
type BaselineSales struct {
	Location  string        `json:"location" db:"Location"`
	ProductID int64         `json:"product_id" db:"ProductId"`
	Weekday   *time.Weekday `json:"weekday,omitempty" db:"-"`
	AvgPerDay float64       `json:"avg_per_day" db:"AverageSalesPerDay"`
}

// PriceEntry is a raw gross profit value as delivered by the price source.
// GrossProfit is nil when the source value was not numeric.
type PriceEntry struct {
	ProductID   int64    `json:"product_id"`
	GrossProfit *float64 `json:"gross_profit"`
}

// DailyWeather is one day of weather at a point.
type DailyWeather struct {
	Date   time.Time          `json:"date"`
	Values map[string]float64 `json:"values"`
}

// IsMissing reports whether v should be treated as an absent value.
func IsMissing(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	case *float64:
		return x == nil || math.IsNaN(*x)
	}
	return false
}
