package generic_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/workforce-engine/generic"
)


// =============================================================================
// POLICY ARITHMETIC
// =============================================================================

func TestPolicy_SplitDay(t *testing.T) {
	p := generic.DefaultPolicy()

	tests := []struct {
		total, regular, overtime float64
	}{
		{11, 8, 3},
		{8, 8, 0},
		{7.5, 7.5, 0},
		{0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%vh", tt.total), func(t *testing.T) {
			regular, overtime := p.SplitDay(generic.Hours(tt.total))
			assert.True(t, regular.Equal(generic.Hours(tt.regular)), "regular = %s", regular.Value)
			assert.True(t, overtime.Equal(generic.Hours(tt.overtime)), "overtime = %s", overtime.Value)
		})
	}
}

func TestPolicy_Pay(t *testing.T) {
	// GIVEN: 16 regular + 3 overtime hours at 20/h, multiplier 1.5
	// THEN: 16*20 + 3*20*1.5 = 320 + 90 = 410
	p := generic.DefaultPolicy()
	pay := p.Pay(generic.Hours(16), generic.Hours(3), generic.MustParseDecimal("20"))
	assert.Equal(t, "410", pay.String())
}

func TestPolicy_PayableMinutes(t *testing.T) {
	p := generic.DefaultPolicy()
	assert.Equal(t, 540, p.PayableMinutes(540))

	p.UnpaidBreakMinutes = 60
	assert.Equal(t, 480, p.PayableMinutes(540))
	assert.Equal(t, 0, p.PayableMinutes(30))
}

func TestPolicy_EarliestStart(t *testing.T) {
	p := generic.DefaultPolicy()
	_, ok := p.EarliestStart(date("2025-01-20"))
	assert.False(t, ok, "no lock by default")

	seven := 7
	p.LockHorizonDays = &seven
	earliest, ok := p.EarliestStart(date("2025-01-20"))
	assert.True(t, ok)
	assert.Equal(t, "2025-01-13", earliest.String())
}

func TestHoursFromMinutes_RoundsToTwoPlaces(t *testing.T) {
	assert.Equal(t, "0.33", generic.HoursFromMinutes(20).Value.String())
	assert.Equal(t, "9", generic.HoursFromMinutes(540).Value.String())
}
