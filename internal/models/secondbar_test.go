package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validBar() SecondBar {
	return SecondBar{
		Timestamp: time.Date(2024, 11, 19, 10, 0, 10, 0, time.UTC),
		Symbol:    "NQ",
		Contract:  "NQZ24",
		Exchange:  "CME",
		Open:      decimal.RequireFromString("100"),
		High:      decimal.RequireFromString("101"),
		Low:       decimal.RequireFromString("100"),
		Close:     decimal.RequireFromString("101"),
		Volume:    8,
		TickCount: 2,
		VWAP:      decimal.RequireFromString("100.375"),
	}
}

func TestSecondBarValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		bar := validBar()
		require.NoError(t, bar.Validate())
	})

	t.Run("high below close rejected", func(t *testing.T) {
		bar := validBar()
		bar.High = decimal.RequireFromString("100.5")
		require.Error(t, bar.Validate())
	})

	t.Run("low above open rejected", func(t *testing.T) {
		bar := validBar()
		bar.Low = decimal.RequireFromString("100.5")
		require.Error(t, bar.Validate())
	})

	t.Run("zero tick count rejected", func(t *testing.T) {
		bar := validBar()
		bar.TickCount = 0
		require.Error(t, bar.Validate())
	})

	t.Run("negative volume rejected", func(t *testing.T) {
		bar := validBar()
		bar.Volume = -1
		require.Error(t, bar.Validate())
	})

	t.Run("missing contract rejected", func(t *testing.T) {
		bar := validBar()
		bar.Contract = ""
		require.Error(t, bar.Validate())
	})
}

func TestSecondBarComputeQualityScore(t *testing.T) {
	t.Run("clean bar scores one", func(t *testing.T) {
		bar := validBar()
		assert.InDelta(t, 1.0, bar.ComputeQualityScore(), 1e-9)
	})

	t.Run("zero volume penalized", func(t *testing.T) {
		bar := validBar()
		bar.Volume = 0
		assert.InDelta(t, 0.9, bar.ComputeQualityScore(), 1e-9)
	})

	t.Run("zero price field penalized per field", func(t *testing.T) {
		bar := validBar()
		bar.Open = decimal.Zero
		bar.Low = decimal.Zero
		assert.InDelta(t, 0.6, bar.ComputeQualityScore(), 1e-9)
	})

	t.Run("inconsistent range penalized", func(t *testing.T) {
		bar := validBar()
		bar.High = decimal.RequireFromString("100.5")
		assert.InDelta(t, 0.7, bar.ComputeQualityScore(), 1e-9)
	})

	t.Run("score floors at zero", func(t *testing.T) {
		bar := validBar()
		bar.Open = decimal.Zero
		bar.High = decimal.Zero
		bar.Low = decimal.Zero
		bar.Volume = 0
		bar.TickCount = 0
		assert.InDelta(t, 0.0, bar.ComputeQualityScore(), 1e-9)
	})
}

func TestSecondBarKey(t *testing.T) {
	a := validBar()
	b := validBar()
	assert.Equal(t, a.Key(), b.Key())

	b.Contract = "ESZ24"
	assert.NotEqual(t, a.Key(), b.Key())
}
