package models

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThresholdUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    float64
		wantNaN bool
	}{
		{name: "number", raw: `5`, want: 5},
		{name: "decimal", raw: `2.75`, want: 2.75},
		{name: "negative", raw: `-1`, want: -1},
		{name: "string numeral", raw: `"42"`, want: 42},
		{name: "padded string", raw: `" 3.5 "`, want: 3.5},
		{name: "non-numeric string", raw: `"abc"`, wantNaN: true},
		{name: "empty string", raw: `""`, wantNaN: true},
		{name: "null", raw: `null`, wantNaN: true},
		{name: "object", raw: `{"v": 1}`, wantNaN: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var th Threshold
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &th))
			if tt.wantNaN {
				assert.True(t, math.IsNaN(th.Float64()))
				return
			}
			assert.Equal(t, tt.want, th.Float64())
		})
	}
}

func TestParseRange(t *testing.T) {
	for _, valid := range []string{"1D", "1W", "2W", "1M", "6M", "1Y"} {
		r, err := ParseRange(valid)
		require.NoError(t, err)
		assert.Equal(t, Range(valid), r)
	}
	for _, invalid := range []string{"", "3M", "1d", "week"} {
		_, err := ParseRange(invalid)
		assert.Error(t, err, invalid)
	}
}

func TestValidOperatorAndFrequency(t *testing.T) {
	assert.True(t, ValidOperator(OperatorNotEqual))
	assert.False(t, ValidOperator(Operator(">")))
	assert.True(t, ValidFrequency(FrequencyHourly))
	assert.False(t, ValidFrequency(Frequency("weekly")))
}
