package common

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// AssetIDLen is the byte length of a non-native asset identifier.
const AssetIDLen = 32

var ErrBadAssetID = errors.New("malformed asset id")

// AssetID identifies a single asset. The zero value is the native coin.
type AssetID struct {
	id  [AssetIDLen]byte
	set bool // false for the native coin
}

// NativeAsset returns the native-coin sentinel.
func NativeAsset() AssetID {
	return AssetID{}
}

func NewAssetID(id [AssetIDLen]byte) AssetID {
	return AssetID{id: id, set: true}
}

func (a AssetID) IsNative() bool {
	return !a.set
}

func (a AssetID) Bytes() []byte {
	if !a.set {
		return nil
	}
	b := make([]byte, AssetIDLen)
	copy(b, a.id[:])
	return b
}

func (a AssetID) String() string {
	if !a.set {
		return "NATIVE"
	}
	return hex.EncodeToString(a.id[:])
}

// ParseAssetID parses the canonical string form produced by String.
func ParseAssetID(s string) (AssetID, error) {
	if s == "NATIVE" {
		return NativeAsset(), nil
	}
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != AssetIDLen {
		return AssetID{}, fmt.Errorf("%w: %q", ErrBadAssetID, s)
	}
	var id [AssetIDLen]byte
	copy(id[:], raw)
	return AssetID{id: id, set: true}, nil
}

// AssetPair is an ordered amount/price asset pair. Its canonical key
// addresses the book actor and its on-disk state.
type AssetPair struct {
	Amount AssetID
	Price  AssetID
}

func (p AssetPair) Key() string {
	return p.Amount.String() + "-" + p.Price.String()
}

func ParseAssetPair(s string) (AssetPair, error) {
	amount, price, ok := strings.Cut(s, "-")
	if !ok {
		return AssetPair{}, fmt.Errorf("%w: pair %q", ErrBadAssetID, s)
	}
	a, err := ParseAssetID(amount)
	if err != nil {
		return AssetPair{}, err
	}
	b, err := ParseAssetID(price)
	if err != nil {
		return AssetPair{}, err
	}
	return AssetPair{Amount: a, Price: b}, nil
}
