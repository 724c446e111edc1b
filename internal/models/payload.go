package models

import (
	"fmt"
	"time"
)

// Range selects the server-side bucketing window for a KPI payload.
type Range string

const (
	Range1D Range = "1D"
	Range1W Range = "1W"
	Range2W Range = "2W"
	Range1M Range = "1M"
	Range6M Range = "6M"
	Range1Y Range = "1Y"
)

// ParseRange validates a range string coming from a query parameter or event.
func ParseRange(s string) (Range, error) {
	switch Range(s) {
	case Range1D, Range1W, Range2W, Range1M, Range6M, Range1Y:
		return Range(s), nil
	}
	return "", fmt.Errorf("unknown range %q", s)
}

// Key identifies one cache entry: a KPI over a selected range.
type Key struct {
	KPI   string
	Range Range
}

func (k Key) String() string {
	return k.KPI + "/" + string(k.Range)
}

// RawPayload is the JSON-decoded body returned by the fleet data service.
// Shape is not guaranteed; any field may be absent or mistyped.
type RawPayload map[string]interface{}

// TimePoint is one bucketed sample of a named series.
type TimePoint struct {
	Series string  `json:"series"`
	Label  string  `json:"label"`
	Value  float64 `json:"value"`
}

// CategoryPoint is one labeled value for bar/pie variants.
type CategoryPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// HeatmapCell is one (x, y) cell of a heatmap variant.
type HeatmapCell struct {
	X     string  `json:"x"`
	Y     string  `json:"y"`
	Value float64 `json:"value"`
}

// PayloadMeta carries display hints attached to a payload.
type PayloadMeta struct {
	Unit        string                 `json:"unit"`
	DashboardID string                 `json:"dashboard_id"`
	Config      map[string]interface{} `json:"config"`
	GeneratedAt time.Time              `json:"generated_at"`
}

// SafePayload is the canonical payload shape handed to chart renderers.
// Every field is present with a well-typed default and every numeric value
// is finite; renderers never guard against missing fields.
type SafePayload struct {
	Timeseries []TimePoint              `json:"timeseries"`
	Categories []CategoryPoint          `json:"categories"`
	Heatmap    []HeatmapCell            `json:"heatmap"`
	TableRows  []map[string]interface{} `json:"table_rows"`
	Latest     float64                  `json:"latest"`
	Meta       PayloadMeta              `json:"meta"`
}
