package payload

import (
	"math"
	"strconv"
	"strings"
	"time"

	"fleetmetrics/internal/models"
)

// Normalize converts a raw remote payload into the canonical SafePayload.
// It returns models.ErrMalformedPayload only when raw is not a JSON object
// (nil, scalar, array); every other defect is repaired with a documented
// default. The function is pure and safe to call repeatedly.
func Normalize(raw interface{}) (*models.SafePayload, error) {
	var obj map[string]interface{}
	switch v := raw.(type) {
	case models.RawPayload:
		obj = v
	case map[string]interface{}:
		obj = v
	default:
		return nil, models.ErrMalformedPayload
	}
	if obj == nil {
		return nil, models.ErrMalformedPayload
	}

	sp := &models.SafePayload{
		Timeseries: normalizeTimeseries(obj["timeseries"]),
		Categories: normalizeCategories(obj["categories"]),
		Heatmap:    normalizeHeatmap(obj["heatmap"]),
		TableRows:  normalizeTableRows(obj["tableRows"]),
		Meta:       normalizeMeta(obj["meta"]),
	}
	sp.Latest = resolveLatest(obj["latest"], sp.Timeseries)
	return sp, nil
}

// resolveLatest picks the derived latest value by fixed precedence:
// explicit latest.value, then the last timeseries point, then 0.
func resolveLatest(latest interface{}, series []models.TimePoint) float64 {
	if m, ok := asObject(latest); ok {
		if _, present := m["value"]; present {
			return toFloat(m["value"])
		}
	}
	if len(series) > 0 {
		return series[len(series)-1].Value
	}
	return 0
}

func normalizeTimeseries(v interface{}) []models.TimePoint {
	items := asArray(v)
	out := make([]models.TimePoint, 0, len(items))
	for _, item := range items {
		m, ok := asObject(item)
		if !ok {
			continue
		}
		out = append(out, models.TimePoint{
			Series: firstString(m, "series", "name"),
			Label:  firstString(m, "label", "timestamp", "bucket"),
			Value:  toFloat(m["value"]),
		})
	}
	return out
}

func normalizeCategories(v interface{}) []models.CategoryPoint {
	items := asArray(v)
	out := make([]models.CategoryPoint, 0, len(items))
	for _, item := range items {
		m, ok := asObject(item)
		if !ok {
			continue
		}
		out = append(out, models.CategoryPoint{
			Label: firstString(m, "label", "category"),
			Value: toFloat(m["value"]),
		})
	}
	return out
}

func normalizeHeatmap(v interface{}) []models.HeatmapCell {
	items := asArray(v)
	out := make([]models.HeatmapCell, 0, len(items))
	for _, item := range items {
		m, ok := asObject(item)
		if !ok {
			continue
		}
		out = append(out, models.HeatmapCell{
			X:     toString(m["x"]),
			Y:     toString(m["y"]),
			Value: toFloat(m["value"]),
		})
	}
	return out
}

func normalizeTableRows(v interface{}) []map[string]interface{} {
	items := asArray(v)
	out := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		if m, ok := asObject(item); ok {
			out = append(out, m)
		}
	}
	return out
}

func normalizeMeta(v interface{}) models.PayloadMeta {
	meta := models.PayloadMeta{Config: map[string]interface{}{}}
	m, ok := asObject(v)
	if !ok {
		return meta
	}
	meta.Unit = toString(m["unit"])
	meta.DashboardID = firstString(m, "dashboard_id", "dashboardId")
	if cfg, ok := asObject(m["config"]); ok {
		meta.Config = cfg
	}
	meta.GeneratedAt = toTime(firstPresent(m, "generated_at", "generatedAt"))
	return meta
}

func asObject(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok
}

func asArray(v interface{}) []interface{} {
	a, ok := v.([]interface{})
	if !ok {
		return nil
	}
	return a
}

// toFloat coerces any JSON value to a finite float64. String numerals parse;
// everything else, including NaN and infinities, becomes 0.
func toFloat(v interface{}) float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func toString(v interface{}) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// toTime accepts RFC3339 strings and unix-second numbers; anything else
// yields the zero time.
func toTime(v interface{}) time.Time {
	switch t := v.(type) {
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed
		}
	case float64:
		if t > 0 {
			return time.Unix(int64(t), 0).UTC()
		}
	}
	return time.Time{}
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s := toString(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func firstPresent(m map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}
