package benchmark

import "fmt"

// feedIndexMax is the largest feed index that fits in the low 28 bits of
// TradingStatusAndFeedIndex.
const feedIndexMax = (1 << 28) - 1

// TradingStatus mirrors the on-chain price-store program's trading status
// enum.
type TradingStatus uint8

const (
	TradingStatusUnknown TradingStatus = iota
	TradingStatusTrading
	TradingStatusHalted
	TradingStatusAuction
	TradingStatusIgnored
)

// BufferedPrice is the fixed-layout record the price-store program expects
// for one feed's price update: the high 4 bits of the first word carry the
// trading status, the low 28 bits carry the feed index.
type BufferedPrice struct {
	Status        TradingStatus
	FeedIndex     uint32
	Price         int64
	Confidence    uint64
}

// Pack serializes p into the program's packed wire layout: a little-endian
// uint32 (status<<28 | feedIndex), a little-endian int64 price, and a
// little-endian uint64 confidence — 20 bytes total.
func (p BufferedPrice) Pack() ([]byte, error) {
	if p.FeedIndex > feedIndexMax {
		return nil, fmt.Errorf("benchmark: feed index %d exceeds maximum %d", p.FeedIndex, feedIndexMax)
	}

	buf := make([]byte, 20)
	header := uint32(p.Status)<<28 | (p.FeedIndex & feedIndexMax)
	putUint32LE(buf[0:4], header)
	putUint64LE(buf[4:12], uint64(p.Price))
	putUint64LE(buf[12:20], p.Confidence)
	return buf, nil
}

// UnpackBufferedPrice is the inverse of Pack.
func UnpackBufferedPrice(buf []byte) (BufferedPrice, error) {
	if len(buf) != 20 {
		return BufferedPrice{}, fmt.Errorf("benchmark: buffered price must be 20 bytes, got %d", len(buf))
	}
	header := uint32LE(buf[0:4])
	return BufferedPrice{
		Status:     TradingStatus(header >> 28),
		FeedIndex:  header & feedIndexMax,
		Price:      int64(uint64LE(buf[4:12])),
		Confidence: uint64LE(buf[12:20]),
	}, nil
}

func putUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putUint64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func uint32LE(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func uint64LE(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
