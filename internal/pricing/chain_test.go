package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charjee-official/Charjee-Apk-sub000/internal/coremodel"
)

type providerFunc func(ctx context.Context, vendorID coremodel.VendorID, deviceID coremodel.DeviceID) (Rate, error)

func (f providerFunc) RateFor(ctx context.Context, vendorID coremodel.VendorID, deviceID coremodel.DeviceID) (Rate, error) {
	return f(ctx, vendorID, deviceID)
}

func TestChainFallsThroughOnNoRate(t *testing.T) {
	empty := &Memory{}
	fallback := NewMemory(Rate{PricePerKWh: 12, PlatformFeePct: 20})

	r, err := Chain{empty, fallback}.RateFor(context.Background(), "v", "d")
	require.NoError(t, err)
	assert.Equal(t, 12.0, r.PricePerKWh)
}

func TestChainFirstMatchWins(t *testing.T) {
	first := NewMemory(Rate{PricePerKWh: 18, PlatformFeePct: 15})
	second := NewMemory(Rate{PricePerKWh: 99, PlatformFeePct: 99})

	r, err := Chain{first, second}.RateFor(context.Background(), "v", "d")
	require.NoError(t, err)
	assert.Equal(t, 18.0, r.PricePerKWh)
}

func TestChainPropagatesRealErrors(t *testing.T) {
	boom := errors.New("backend down")
	failing := providerFunc(func(context.Context, coremodel.VendorID, coremodel.DeviceID) (Rate, error) {
		return Rate{}, boom
	})
	fallback := NewMemory(Rate{PricePerKWh: 12})

	_, err := Chain{failing, fallback}.RateFor(context.Background(), "v", "d")
	assert.ErrorIs(t, err, boom)
}

func TestChainAllEmpty(t *testing.T) {
	_, err := Chain{nil, &Memory{}}.RateFor(context.Background(), "v", "d")
	assert.ErrorIs(t, err, ErrNoRate)
}
