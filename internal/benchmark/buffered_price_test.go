package benchmark

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferedPriceRoundTrip(t *testing.T) {
	original := BufferedPrice{
		Status:     TradingStatusTrading,
		FeedIndex:  42,
		Price:      -123456789,
		Confidence: 987654321,
	}

	packed, err := original.Pack()
	require.NoError(t, err)
	require.Len(t, packed, 20)

	unpacked, err := UnpackBufferedPrice(packed)
	require.NoError(t, err)
	require.Equal(t, original, unpacked)
}

func TestBufferedPriceRejectsOversizedFeedIndex(t *testing.T) {
	p := BufferedPrice{FeedIndex: feedIndexMax + 1}
	_, err := p.Pack()
	require.Error(t, err)
}

func TestUnpackBufferedPriceRejectsWrongLength(t *testing.T) {
	_, err := UnpackBufferedPrice([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestPriceSourceIsPureInT(t *testing.T) {
	src := NewPriceSource(PriceSourceConfig{
		PriceMean:       1000,
		PriceRange:      50,
		ConfidenceMean:  10,
		ConfidenceRange: 5,
	})

	p1, c1 := src.Get(1.5)
	p2, c2 := src.Get(1.5)
	require.Equal(t, p1, p2)
	require.Equal(t, c1, c2)
}
