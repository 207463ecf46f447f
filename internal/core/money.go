// Package core holds the deposit accounting model: money and slot math,
// goal/proof/invitation entities, pool rules and goal aggregates.
package core

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// SlotUnit is the amount of one slot step: drawing slot k means depositing
// k times this value.
const SlotUnit int64 = 100

// Money represents an amount in cents.
type Money struct {
	Cents int64 `json:"cents"`
}

// Reais returns the value in reais for display only.
func (m Money) Reais() float64 {
	return float64(m.Cents) / 100.0
}

func (m Money) String() string { return FormatCurrency(m) }

// TotalFromSlotCount returns the triangular sum 1+2+...+n. n <= 0 yields 0.
func TotalFromSlotCount(n int) int64 {
	if n <= 0 {
		return 0
	}
	return int64(n) * int64(n+1) / 2
}

// SlotCountFromTotal returns the smallest n such that TotalFromSlotCount(n)
// is at least target.
func SlotCountFromTotal(target int64) int {
	if target <= 0 {
		return 0
	}
	n := int(math.Ceil(math.Sqrt(2 * float64(target))))
	// ceil(sqrt(2t)) can land one or two past the boundary, and float error
	// can land it one short on very large inputs.
	for n > 0 && TotalFromSlotCount(n-1) >= target {
		n--
	}
	for TotalFromSlotCount(n) < target {
		n++
	}
	return n
}

// SlotAmount is the deposit owed for a slot.
func SlotAmount(slot int) Money {
	return Money{Cents: int64(slot) * SlotUnit}
}

// TargetForSlots is the goal target implied by n slots.
func TargetForSlots(n int) Money {
	return Money{Cents: TotalFromSlotCount(n) * SlotUnit}
}

// SlotCountForTarget inverts TargetForSlots.
func SlotCountForTarget(target Money) int {
	units := target.Cents / SlotUnit
	if target.Cents%SlotUnit != 0 {
		units++
	}
	return SlotCountFromTotal(units)
}

var brl = message.NewPrinter(language.BrazilianPortuguese)

// FormatCurrency renders m as "R$ 1.234,50".
func FormatCurrency(m Money) string {
	cents := m.Cents
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	// Integer part goes through the printer for grouping; the fraction is
	// appended verbatim so no float rounding can creep in.
	return sign + "R$ " + brl.Sprintf("%d", cents/100) + "," + twoDigits(cents%100)
}

func twoDigits(v int64) string {
	if v < 10 {
		return "0" + strconv.FormatInt(v, 10)
	}
	return strconv.FormatInt(v, 10)
}

// RoundToNearest rounds value up to the next multiple of step. A step of
// zero or less returns value unchanged.
func RoundToNearest(value, step int64) int64 {
	if step <= 0 {
		return value
	}
	if value%step == 0 {
		return value
	}
	if value < 0 {
		return value / step * step
	}
	return (value/step + 1) * step
}

// ParseDecimalToCents converts a decimal string to cents.
//
// Dot (12.34) and comma (12,34) separators are accepted; the third decimal
// is rounded half-up. Negative, zero and malformed amounts are rejected.
//
//	ParseDecimalToCents("12,34")  -> 1234
//	ParseDecimalToCents("12.346") -> 1235
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	intPart, fracPart, _ := strings.Cut(s, ".")
	if strings.Contains(fracPart, ".") {
		return 0, ErrInvalidAmount
	}
	if intPart == "" {
		intPart = "0"
	}
	if !allDigits(intPart) || !allDigits(fracPart) {
		return 0, ErrInvalidAmount
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafe = (1<<63 - 1) / 100
	if iv > maxSafe-1 {
		return 0, ErrInvalidAmount
	}
	var frac int64
	if len(fracPart) > 0 {
		frac = int64(fracPart[0]-'0') * 10
	}
	if len(fracPart) > 1 {
		frac += int64(fracPart[1] - '0')
	}
	if len(fracPart) > 2 && fracPart[2] >= '5' {
		frac++
	}
	cents := iv*100 + frac
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
