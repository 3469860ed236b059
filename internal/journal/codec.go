package journal

import (
	"encoding/binary"
	"errors"
	"fmt"

	"hati/internal/common"
)

var (
	ErrUnknownEventTag = errors.New("unknown event tag")
	ErrShortRecord     = errors.New("record too short")
)

// Event tags. New variants get new tags; tags are never reused.
const (
	tagOrderAdded byte = iota + 1
	tagOrderExecuted
	tagOrderCanceled
)

// --- Encoding ---------------------------------------------------------------

func appendUint64(buf []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(buf, v)
}

// appendBytes writes a u32 length prefix followed by the raw bytes.
func appendBytes(buf, b []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

func appendAssetID(buf []byte, a common.AssetID) []byte {
	if a.IsNative() {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	return append(buf, a.Bytes()...)
}

func appendOrder(buf []byte, o common.Order) []byte {
	buf = appendBytes(buf, []byte(o.ID))
	buf = appendBytes(buf, o.Sender)
	buf = appendAssetID(buf, o.Pair.Amount)
	buf = appendAssetID(buf, o.Pair.Price)
	buf = append(buf, byte(o.Side))
	buf = appendUint64(buf, o.Amount)
	buf = appendUint64(buf, o.Price)
	buf = appendUint64(buf, o.Timestamp)
	buf = appendUint64(buf, o.Expiration)
	buf = appendUint64(buf, o.MatcherFee)
	buf = append(buf, o.Version)
	return appendBytes(buf, o.Signature)
}

// AppendLimitOrder serializes a resting order. Shared with the snapshot
// encoding so both stores agree on the format.
func AppendLimitOrder(buf []byte, lo common.LimitOrder) []byte {
	buf = appendOrder(buf, lo.Order)
	buf = appendUint64(buf, lo.Remaining)
	return appendUint64(buf, lo.RemainingFee)
}

// EncodeEvent serializes one journal record payload: tag byte, then fields
// in declaration order.
func EncodeEvent(ev common.Event) ([]byte, error) {
	var buf []byte
	switch e := ev.(type) {
	case common.OrderAdded:
		buf = append(buf, tagOrderAdded)
		buf = AppendLimitOrder(buf, e.Order)
	case common.OrderExecuted:
		buf = append(buf, tagOrderExecuted)
		buf = AppendLimitOrder(buf, e.Submitted)
		buf = AppendLimitOrder(buf, e.Counter)
		buf = appendUint64(buf, e.SubmittedRemaining)
		buf = appendUint64(buf, e.SubmittedRemainingFee)
		buf = appendUint64(buf, e.CounterRemaining)
		buf = appendUint64(buf, e.CounterRemainingFee)
		buf = appendUint64(buf, e.Amount)
		buf = appendUint64(buf, e.Price)
	case common.OrderCanceled:
		buf = append(buf, tagOrderCanceled)
		buf = AppendLimitOrder(buf, e.Order)
		if e.Unmatchable {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEventTag, ev)
	}
	return buf, nil
}

// --- Decoding ---------------------------------------------------------------

// Reader is a cursor over an encoded payload. The first decoding error
// sticks; every later read returns zero values.
type Reader struct {
	buf []byte
	off int
	err error
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) fail() {
	if r.err == nil {
		r.err = fmt.Errorf("%w at offset %d", ErrShortRecord, r.off)
	}
}

func (r *Reader) Byte() byte {
	if r.err != nil || r.off+1 > len(r.buf) {
		r.fail()
		return 0
	}
	b := r.buf[r.off]
	r.off++
	return b
}

func (r *Reader) Uint32() uint32 {
	if r.err != nil || r.off+4 > len(r.buf) {
		r.fail()
		return 0
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *Reader) Uint64() uint64 {
	if r.err != nil || r.off+8 > len(r.buf) {
		r.fail()
		return 0
	}
	v := binary.BigEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

func (r *Reader) Bytes() []byte {
	if r.err != nil || r.off+4 > len(r.buf) {
		r.fail()
		return nil
	}
	n := int(binary.BigEndian.Uint32(r.buf[r.off:]))
	r.off += 4
	if r.off+n > len(r.buf) {
		r.fail()
		return nil
	}
	if n == 0 {
		// Empty and nil encode alike; decode to nil so round trips compare equal.
		return nil
	}
	b := make([]byte, n)
	copy(b, r.buf[r.off:r.off+n])
	r.off += n
	return b
}

func (r *Reader) assetID() common.AssetID {
	if r.Byte() == 0 {
		return common.NativeAsset()
	}
	if r.err != nil || r.off+common.AssetIDLen > len(r.buf) {
		r.fail()
		return common.AssetID{}
	}
	var id [common.AssetIDLen]byte
	copy(id[:], r.buf[r.off:])
	r.off += common.AssetIDLen
	return common.NewAssetID(id)
}

func (r *Reader) order() common.Order {
	var o common.Order
	o.ID = string(r.Bytes())
	o.Sender = r.Bytes()
	o.Pair.Amount = r.assetID()
	o.Pair.Price = r.assetID()
	o.Side = common.Side(r.Byte())
	o.Amount = r.Uint64()
	o.Price = r.Uint64()
	o.Timestamp = r.Uint64()
	o.Expiration = r.Uint64()
	o.MatcherFee = r.Uint64()
	o.Version = r.Byte()
	o.Signature = r.Bytes()
	return o
}

// LimitOrder decodes the AppendLimitOrder encoding.
func (r *Reader) LimitOrder() common.LimitOrder {
	var lo common.LimitOrder
	lo.Order = r.order()
	lo.Remaining = r.Uint64()
	lo.RemainingFee = r.Uint64()
	return lo
}

// DecodeEvent parses one record payload back into the event ADT.
func DecodeEvent(payload []byte) (common.Event, error) {
	r := NewReader(payload)
	tag := r.Byte()
	var ev common.Event
	switch tag {
	case tagOrderAdded:
		ev = common.OrderAdded{Order: r.LimitOrder()}
	case tagOrderExecuted:
		e := common.OrderExecuted{
			Submitted: r.LimitOrder(),
			Counter:   r.LimitOrder(),
		}
		e.SubmittedRemaining = r.Uint64()
		e.SubmittedRemainingFee = r.Uint64()
		e.CounterRemaining = r.Uint64()
		e.CounterRemainingFee = r.Uint64()
		e.Amount = r.Uint64()
		e.Price = r.Uint64()
		ev = e
	case tagOrderCanceled:
		e := common.OrderCanceled{Order: r.LimitOrder()}
		e.Unmatchable = r.Byte() == 1
		ev = e
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownEventTag, tag)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return ev, nil
}
