package market

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestLatestPricesSkipsMissingQuotes(t *testing.T) {
	src := new(mockSource)
	src.On("LatestPrice", mock.Anything, "IBM").Return(101.5, nil)
	src.On("LatestPrice", mock.Anything, "XYZ").Return(0.0, ErrNoQuote)
	src.On("LatestPrice", mock.Anything, "AAPL").Return(0.0, errors.New("timeout"))

	got, err := LatestPrices(context.Background(), src, []string{"IBM", "XYZ", "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"IBM": 101.5}, got)
	src.AssertExpectations(t)
}
