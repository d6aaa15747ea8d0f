package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChargeBoundaries(t *testing.T) {
	p := NewPolicy(50)
	tests := []struct {
		elapsed int64
		want    int64
	}{
		{0, 50},
		{1, 50},
		{900, 50},
		{3600, 50},
		{3601, 100},
		{5400, 100},
		{7200, 100},
		{7201, 150},
		{155 * 60, 150},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Charge(tt.elapsed), "elapsed=%d", tt.elapsed)
	}
}

func TestChargeMonotonic(t *testing.T) {
	p := NewPolicy(50)
	prev := p.Charge(0)
	for s := int64(1); s <= 5*3600; s += 37 {
		cur := p.Charge(s)
		assert.GreaterOrEqual(t, cur, prev, "charge decreased at %d seconds", s)
		prev = cur
	}
}

func TestZeroPolicyUsesDefaultRate(t *testing.T) {
	assert.Equal(t, DefaultRatePerHour, Policy{}.Charge(10))
	assert.Equal(t, DefaultRatePerHour, NewPolicy(-3).RatePerHour)
}

func TestFormatDuration(t *testing.T) {
	tests := map[int64]string{
		0:        "0 seconds",
		1:        "1 second",
		45:       "45 seconds",
		65:       "1 minute 5 seconds",
		15 * 60:  "15 minutes 0 seconds",
		3600:     "1 hour 0 minutes",
		5400:     "1 hour 30 minutes",
		155 * 60: "2 hours 35 minutes",
		-20:      "0 seconds",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatDuration(in), "seconds=%d", in)
	}
}
