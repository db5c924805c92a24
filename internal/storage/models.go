package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// CycleSample represents one persisted decision cycle: the shared sensor
// snapshot plus aggregate cover counts.
type CycleSample struct {
	CycleTS      time.Time
	SunAzimuth   float64
	SunElevation float64
	ForecastMax  decimal.Decimal
	TempHot      bool
	WeatherSunny bool
	CoversTotal  int
	CoversMoved  int
	Status       string
	Message      *string
	CreatedAt    time.Time
}

// CoverMovement captures a single issued cover movement for auditing.
type CoverMovement struct {
	ID           int64
	CycleTS      time.Time
	CoverID      string
	Reason       string
	FromPosition int
	ToPosition   int
	CreatedAt    time.Time
}
