package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Operator is the comparison applied between a KPI value and a threshold.
type Operator string

const (
	OperatorGreaterThan        Operator = "gt"
	OperatorGreaterThanOrEqual Operator = "gte"
	OperatorLessThan           Operator = "lt"
	OperatorLessThanOrEqual    Operator = "lte"
	OperatorEqual              Operator = "eq"
	OperatorNotEqual           Operator = "neq"
)

// ValidOperator reports whether op is one of the known comparisons.
func ValidOperator(op Operator) bool {
	switch op {
	case OperatorGreaterThan, OperatorGreaterThanOrEqual, OperatorLessThan,
		OperatorLessThanOrEqual, OperatorEqual, OperatorNotEqual:
		return true
	}
	return false
}

// Frequency controls how often a triggered rule may notify.
type Frequency string

const (
	FrequencyRealtime Frequency = "realtime"
	FrequencyHourly   Frequency = "hourly"
	FrequencyDaily    Frequency = "daily"
)

// ValidFrequency reports whether f is one of the known frequencies.
func ValidFrequency(f Frequency) bool {
	switch f {
	case FrequencyRealtime, FrequencyHourly, FrequencyDaily:
		return true
	}
	return false
}

// Threshold is a numeric rule threshold that tolerates JSON string numerals.
// Unparseable input decodes to NaN so validation can reject it with a
// domain error instead of a bind error.
type Threshold float64

func (t *Threshold) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if len(s) >= 2 && s[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			*t = Threshold(math.NaN())
			return nil
		}
		s = strings.TrimSpace(str)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*t = Threshold(math.NaN())
		return nil
	}
	*t = Threshold(f)
	return nil
}

// Float64 returns the threshold as a plain float64.
func (t Threshold) Float64() float64 {
	return float64(t)
}

// AlertRule is a persisted threshold rule scoped to (kpi_key, dashboard_id).
type AlertRule struct {
	ID              string     `json:"id"`
	KPIKey          string     `json:"kpi_key"`
	DashboardID     string     `json:"dashboard_id"`
	Operator        Operator   `json:"operator"`
	Threshold       float64    `json:"threshold"`
	NotifyEmail     bool       `json:"notify_email"`
	NotifyInApp     bool       `json:"notify_in_app"`
	Frequency       Frequency  `json:"frequency"`
	IsActive        bool       `json:"is_active"`
	LastTriggeredAt *time.Time `json:"last_triggered_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// AlertRuleCreate is the input structure for creating a new rule.
type AlertRuleCreate struct {
	KPIKey      string    `json:"kpi_key" binding:"required"`
	DashboardID string    `json:"dashboard_id" binding:"required"`
	Operator    Operator  `json:"operator" binding:"required"`
	Threshold   Threshold `json:"threshold"`
	NotifyEmail bool      `json:"notify_email"`
	NotifyInApp bool      `json:"notify_in_app"`
	Frequency   Frequency `json:"frequency"`
}

// AlertRulePatch is the input structure for updating an existing rule.
// KPIKey and DashboardID are immutable; callers that resend the full object
// have them silently ignored.
type AlertRulePatch struct {
	KPIKey      string     `json:"kpi_key,omitempty"`
	DashboardID string     `json:"dashboard_id,omitempty"`
	Operator    *Operator  `json:"operator,omitempty"`
	Threshold   *Threshold `json:"threshold,omitempty"`
	NotifyEmail *bool      `json:"notify_email,omitempty"`
	NotifyInApp *bool      `json:"notify_in_app,omitempty"`
	Frequency   *Frequency `json:"frequency,omitempty"`
	IsActive    *bool      `json:"is_active,omitempty"`
}
