package domain

import "time"

// RefillAdviceRow is one row of a refill advice table. ProductID and
// ProductName are nil for the per-location table.
type RefillAdviceRow struct {
	Location     string     `json:"location"`
	LocationName *string    `json:"location_name"`
	ProductID    *int64     `json:"product_id,omitempty"`
	ProductName  *string    `json:"product_name,omitempty"`
	MissedProfit []float64  `json:"missed_profit"`
	RefillDate   *time.Time `json:"refill_date"`
}

// RefillAdviceTable holds missed gross profit per forecast date. DayLabels
// name each entry of MissedProfit relative to the day the table was built.
type RefillAdviceTable struct {
	Dates     []time.Time       `json:"dates"`
	DayLabels []string          `json:"day_labels"`
	Rows      []RefillAdviceRow `json:"rows"`
}

// Columns lists the columns of the table as persisted and exported.
func (t RefillAdviceTable) Columns(perProduct bool) []string {
	cols := []string{"Location"}
	if perProduct {
		cols = append(cols, "ProductId")
	}
	cols = append(cols, t.DayLabels...)
	cols = append(cols, "refill_date")
	if perProduct {
		cols = append(cols, "ProductName")
	}
	return append(cols, "LocationName")
}
