package net

import (
	"encoding/binary"
	"errors"
	"fmt"

	"hati/internal/common"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMessageTooShort    = errors.New("message too short")
)

type MessageType int

const (
	Heartbeat MessageType = iota
	NewOrder
	CancelOrder
	MarketStatus
	OrderBookReq
	DeleteBook
)

type ReportType byte

const (
	OrderAcceptedReport ReportType = iota
	OrderCanceledReport
	CancelRejectedReport
	ErrorReport
	MarketStatusReport
	OrderBookReport
)

type Message interface {
	GetType() MessageType
}

// BaseMessage carries the 2-byte type header shared by every message.
type BaseMessage struct {
	TypeOf MessageType // 2 bytes
}

func (m BaseMessage) GetType() MessageType {
	return m.TypeOf
}

const BaseMessageHeaderLen = 2

func parseMessage(msg []byte) (Message, error) {
	if len(msg) < BaseMessageHeaderLen {
		return BaseMessage{}, fmt.Errorf("%w: no header", ErrMessageTooShort)
	}
	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	msg = msg[2:]
	switch typeOf {
	case NewOrder:
		return parseNewOrder(msg)
	case CancelOrder:
		return parseCancelOrder(msg)
	case MarketStatus, OrderBookReq, DeleteBook:
		pair, _, err := readPair(msg)
		if err != nil {
			return BaseMessage{}, err
		}
		return PairMessage{BaseMessage: BaseMessage{TypeOf: typeOf}, Pair: pair}, nil
	default:
		return BaseMessage{}, ErrInvalidMessageType
	}
}

// cursor walks a message payload with bounds checking.
type cursor struct {
	buf []byte
	off int
}

func (c *cursor) need(n int) error {
	if c.off+n > len(c.buf) {
		return fmt.Errorf("%w: need %d bytes at offset %d", ErrMessageTooShort, n, c.off)
	}
	return nil
}

func (c *cursor) u8() (byte, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	v := c.buf[c.off]
	c.off++
	return v, nil
}

func (c *cursor) u64() (uint64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(c.buf[c.off:])
	c.off += 8
	return v, nil
}

// str reads a u16 length-prefixed string.
func (c *cursor) str() (string, error) {
	if err := c.need(2); err != nil {
		return "", err
	}
	n := int(binary.BigEndian.Uint16(c.buf[c.off:]))
	c.off += 2
	if err := c.need(n); err != nil {
		return "", err
	}
	s := string(c.buf[c.off : c.off+n])
	c.off += n
	return s, nil
}

func readPair(msg []byte) (common.AssetPair, int, error) {
	c := &cursor{buf: msg}
	key, err := c.str()
	if err != nil {
		return common.AssetPair{}, 0, err
	}
	pair, err := common.ParseAssetPair(key)
	if err != nil {
		return common.AssetPair{}, 0, err
	}
	return pair, c.off, nil
}

// NewOrderMessage carries the pre-validated order envelope. The server
// mints the order id and arrival timestamp.
type NewOrderMessage struct {
	BaseMessage
	Pair       common.AssetPair
	Side       common.Side // 1 byte
	Amount     uint64      // 8 bytes
	Price      uint64      // 8 bytes
	Expiration uint64      // 8 bytes
	MatcherFee uint64      // 8 bytes
	Version    byte        // 1 byte
	Sender     string      // u16 len + n bytes, hex pubkey
	Signature  string      // u16 len + n bytes, hex
}

func parseNewOrder(msg []byte) (NewOrderMessage, error) {
	m := NewOrderMessage{BaseMessage: BaseMessage{TypeOf: NewOrder}}
	c := &cursor{buf: msg}

	key, err := c.str()
	if err != nil {
		return m, err
	}
	if m.Pair, err = common.ParseAssetPair(key); err != nil {
		return m, err
	}
	side, err := c.u8()
	if err != nil {
		return m, err
	}
	m.Side = common.Side(side)
	if m.Amount, err = c.u64(); err != nil {
		return m, err
	}
	if m.Price, err = c.u64(); err != nil {
		return m, err
	}
	if m.Expiration, err = c.u64(); err != nil {
		return m, err
	}
	if m.MatcherFee, err = c.u64(); err != nil {
		return m, err
	}
	if m.Version, err = c.u8(); err != nil {
		return m, err
	}
	if m.Sender, err = c.str(); err != nil {
		return m, err
	}
	if m.Signature, err = c.str(); err != nil {
		return m, err
	}
	return m, nil
}

type CancelOrderMessage struct {
	BaseMessage
	Pair    common.AssetPair
	OrderID string
}

func parseCancelOrder(msg []byte) (CancelOrderMessage, error) {
	m := CancelOrderMessage{BaseMessage: BaseMessage{TypeOf: CancelOrder}}
	c := &cursor{buf: msg}
	key, err := c.str()
	if err != nil {
		return m, err
	}
	if m.Pair, err = common.ParseAssetPair(key); err != nil {
		return m, err
	}
	if m.OrderID, err = c.str(); err != nil {
		return m, err
	}
	return m, nil
}

// PairMessage covers the commands addressed by pair alone.
type PairMessage struct {
	BaseMessage
	Pair common.AssetPair
}

// Report is the server-to-client frame: one type byte, a u32 body length,
// then the body. Bodies are order ids, error strings, or JSON payloads for
// the read queries.
type Report struct {
	TypeOf ReportType
	Body   []byte
}

func (r Report) Serialize() []byte {
	buf := make([]byte, 0, 1+4+len(r.Body))
	buf = append(buf, byte(r.TypeOf))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(r.Body)))
	return append(buf, r.Body...)
}

// ParseReport decodes one report frame, returning it and the bytes
// consumed. Used by the client.
func ParseReport(buf []byte) (Report, int, error) {
	if len(buf) < 5 {
		return Report{}, 0, ErrMessageTooShort
	}
	n := int(binary.BigEndian.Uint32(buf[1:5]))
	if len(buf) < 5+n {
		return Report{}, 0, ErrMessageTooShort
	}
	return Report{TypeOf: ReportType(buf[0]), Body: append([]byte(nil), buf[5:5+n]...)}, 5 + n, nil
}

// --- Client-side encoders ---------------------------------------------------

func appendStr(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

// EncodeNewOrder builds the wire form of a NewOrderMessage.
func EncodeNewOrder(m NewOrderMessage) []byte {
	buf := binary.BigEndian.AppendUint16(nil, uint16(NewOrder))
	buf = appendStr(buf, m.Pair.Key())
	buf = append(buf, byte(m.Side))
	buf = binary.BigEndian.AppendUint64(buf, m.Amount)
	buf = binary.BigEndian.AppendUint64(buf, m.Price)
	buf = binary.BigEndian.AppendUint64(buf, m.Expiration)
	buf = binary.BigEndian.AppendUint64(buf, m.MatcherFee)
	buf = append(buf, m.Version)
	buf = appendStr(buf, m.Sender)
	return appendStr(buf, m.Signature)
}

// EncodeCancelOrder builds the wire form of a CancelOrderMessage.
func EncodeCancelOrder(m CancelOrderMessage) []byte {
	buf := binary.BigEndian.AppendUint16(nil, uint16(CancelOrder))
	buf = appendStr(buf, m.Pair.Key())
	return appendStr(buf, m.OrderID)
}

// EncodePairMessage builds the wire form of the pair-addressed commands.
func EncodePairMessage(t MessageType, pair common.AssetPair) []byte {
	buf := binary.BigEndian.AppendUint16(nil, uint16(t))
	return appendStr(buf, pair.Key())
}
