package decode

import (
	"encoding/hex"
	"math/big"
	"strings"
)

const wordSize = 32

// hexToBytes decodes 0x-prefixed (or bare) hex call data.
// Returns (nil, false) on any malformation.
func hexToBytes(s string) ([]byte, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	if len(s)%2 != 0 {
		return nil, false
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, false
	}
	return b, true
}

// unwrapSpendHead decodes the two-field ABI head (maxSpendUnits uint256,
// innerData bytes) from raw call data and returns maxSpendUnits.
//
// Layout: word 0 is the uint256 amount, word 1 is the byte offset of the
// dynamic innerData, which starts with its own length word. A leading 4-byte
// function selector is tolerated. The inner payload is validated for bounds
// but never decoded further — the outer bound is authoritative.
func unwrapSpendHead(data []byte) (*big.Int, bool) {
	// Strip a function selector if present.
	if len(data)%wordSize == 4 {
		data = data[4:]
	}
	if len(data) < 2*wordSize {
		return nil, false
	}

	amount := new(big.Int).SetBytes(data[:wordSize])

	offset := new(big.Int).SetBytes(data[wordSize : 2*wordSize])
	if !offset.IsInt64() {
		return nil, false
	}
	// Bounds checks subtract instead of adding so that offset and length
	// words near MaxInt64 cannot wrap the comparison around.
	off := offset.Int64()
	if off < 2*wordSize || off > int64(len(data))-wordSize {
		return nil, false
	}

	length := new(big.Int).SetBytes(data[off : off+wordSize])
	if !length.IsInt64() {
		return nil, false
	}
	if length.Int64() > int64(len(data))-off-wordSize {
		return nil, false
	}

	return amount, true
}
