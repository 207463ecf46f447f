package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true},
		{" 2.50 ", 250, true},
		{",5", 50, true},
		{"-1", 0, false},
		{"0", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"١٢", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			require.ErrorIs(t, err, ErrInvalidInput, tc.in)
		}
	}
}

func TestTotalFromSlotCount(t *testing.T) {
	assert.Equal(t, int64(0), TotalFromSlotCount(0))
	assert.Equal(t, int64(0), TotalFromSlotCount(-3))
	assert.Equal(t, int64(1), TotalFromSlotCount(1))
	assert.Equal(t, int64(55), TotalFromSlotCount(10))
	assert.Equal(t, int64(31375), TotalFromSlotCount(250))
	for n := 1; n <= 500; n++ {
		require.Equal(t, int64(n*(n+1)/2), TotalFromSlotCount(n))
	}
}

func TestSlotCountFromTotalRoundTrip(t *testing.T) {
	for n := 0; n <= 5000; n++ {
		require.Equal(t, n, SlotCountFromTotal(TotalFromSlotCount(n)), "n=%d", n)
	}
}

func TestSlotCountFromTotalIsMinimal(t *testing.T) {
	for target := int64(1); target <= 3000; target++ {
		n := SlotCountFromTotal(target)
		require.GreaterOrEqual(t, TotalFromSlotCount(n), target)
		require.Less(t, TotalFromSlotCount(n-1), target, "target=%d n=%d", target, n)
	}
	assert.Equal(t, 0, SlotCountFromTotal(0))
	assert.Equal(t, 0, SlotCountFromTotal(-10))
}

func TestTargetForSlots(t *testing.T) {
	assert.Equal(t, Money{Cents: 5500}, TargetForSlots(10))
	assert.Equal(t, 10, SlotCountForTarget(Money{Cents: 5500}))
	assert.Equal(t, 11, SlotCountForTarget(Money{Cents: 5501}))
	assert.Equal(t, Money{Cents: 700}, SlotAmount(7))
}

func TestFormatCurrency(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "R$ 0,00"},
		{5, "R$ 0,05"},
		{1000, "R$ 10,00"},
		{123450, "R$ 1.234,50"},
		{3137500, "R$ 31.375,00"},
		{123456789, "R$ 1.234.567,89"},
		{-250, "-R$ 2,50"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatCurrency(Money{Cents: tc.in}))
	}
}

func TestRoundToNearest(t *testing.T) {
	assert.Equal(t, int64(100), RoundToNearest(1, 100))
	assert.Equal(t, int64(100), RoundToNearest(100, 100))
	assert.Equal(t, int64(31400), RoundToNearest(31375, 100))
	assert.Equal(t, int64(7), RoundToNearest(7, 0))
}
