package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency is a row of the currency table.
// ExchangeRate is the value of one unit of this currency in the default currency.
type Currency struct {
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	IsDefault    bool            `json:"is_default"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
}

// Property is a listing owning one or more bookable units
type Property struct {
	ID             string
	Name           string
	City           string
	Address        string
	PropertyTypeID string
	Description    string
	StarRating     int
	AverageRating  float64
	Latitude       float64
	Longitude      float64
	IsApproved     bool
	IsFeatured     bool
	BookingsCount  int
	ViewsCount     int
	CreatedAt      time.Time
}

// Unit is a bookable unit of a property
type Unit struct {
	ID            string
	PropertyID    string
	UnitTypeID    string
	Name          string
	MaxCapacity   int
	PricingMethod string
	BasePrice     *decimal.Decimal
	BaseCurrency  string
	IsActive      bool
}

// ScheduleDay is the state of a unit on one calendar date
type ScheduleDay struct {
	UnitID   string
	Date     time.Time
	Status   ScheduleStatus
	Price    *decimal.Decimal
	Currency string
}
