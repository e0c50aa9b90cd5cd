package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// HOURS - The single unit of balance arithmetic
// =============================================================================

// Hours is a signed duration in whole hours. Every balance, delta, and
// penalty in the engine is denominated in Hours; day counts are converted at
// the fixed 8-hours-per-day convention. Formatting (e.g. "3d 4h") is a
// presentation concern and does not live here.
type Hours int

// HoursPerDay is the working-day convention used for all day<->hour
// conversions.
const HoursPerDay Hours = 8

// DaysToHours converts a whole number of working days to hours.
func DaysToHours(days int) Hours {
	return Hours(days) * HoursPerDay
}

func (h Hours) IsZero() bool     { return h == 0 }
func (h Hours) IsNegative() bool { return h < 0 }
func (h Hours) IsPositive() bool { return h > 0 }
func (h Hours) Neg() Hours       { return -h }

// Decimal returns the exact decimal representation, for percentage math.
func (h Hours) Decimal() decimal.Decimal {
	return decimal.NewFromInt(int64(h))
}

func (h Hours) String() string {
	return fmt.Sprintf("%dh", int(h))
}

// FloorHours truncates a decimal quantity of hours toward zero.
// Truncation, never rounding: a penalty of 37.5h is applied as 37h.
func FloorHours(d decimal.Decimal) Hours {
	return Hours(d.Truncate(0).IntPart())
}
