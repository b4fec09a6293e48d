package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickEventValidate(t *testing.T) {
	base := TickEvent{
		Timestamp: time.Date(2024, 11, 19, 10, 0, 10, 0, time.UTC),
		Symbol:    "NQ",
		Contract:  "NQZ24",
		Exchange:  "CME",
		Price:     decimal.RequireFromString("20123.25"),
		Size:      5,
		Kind:      TickTrade,
	}

	t.Run("valid trade", func(t *testing.T) {
		tick := base
		require.NoError(t, tick.Validate())
	})

	t.Run("quote with zero size is valid", func(t *testing.T) {
		tick := base
		tick.Kind = TickBid
		tick.Size = 0
		require.NoError(t, tick.Validate())
	})

	t.Run("trade requires positive price", func(t *testing.T) {
		tick := base
		tick.Price = decimal.Zero
		err := tick.Validate()
		require.Error(t, err)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "price", verr.Field)
	})

	t.Run("negative size rejected", func(t *testing.T) {
		tick := base
		tick.Size = -1
		err := tick.Validate()
		require.Error(t, err)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "size", verr.Field)
	})

	t.Run("unknown kind rejected", func(t *testing.T) {
		tick := base
		tick.Kind = TickKind("settlement")
		require.Error(t, tick.Validate())
	})

	t.Run("zero timestamp rejected", func(t *testing.T) {
		tick := base
		tick.Timestamp = time.Time{}
		require.Error(t, tick.Validate())
	})

	t.Run("empty contract rejected", func(t *testing.T) {
		tick := base
		tick.Contract = ""
		require.Error(t, tick.Validate())
	})
}

func TestTickEventBucketSecond(t *testing.T) {
	tick := TickEvent{
		Timestamp: time.Date(2024, 11, 19, 10, 0, 10, 700*int(time.Millisecond), time.UTC),
	}
	assert.Equal(t, time.Date(2024, 11, 19, 10, 0, 10, 0, time.UTC), tick.BucketSecond())
}
