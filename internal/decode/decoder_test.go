package decode

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/relayguard/relayguard/internal/model"
)

// wrapSpend ABI-encodes the (maxSpendUnits uint256, innerData bytes) head the
// way the execution router expects it on the wire.
func wrapSpend(amount *big.Int, inner []byte) string {
	word := func(n *big.Int) []byte {
		b := n.Bytes()
		out := make([]byte, 32)
		copy(out[32-len(b):], b)
		return out
	}

	var buf []byte
	buf = append(buf, word(amount)...)
	buf = append(buf, word(big.NewInt(64))...)
	buf = append(buf, word(big.NewInt(int64(len(inner))))...)
	buf = append(buf, inner...)
	if pad := len(inner) % 32; pad != 0 {
		buf = append(buf, make([]byte, 32-pad)...)
	}
	return "0x" + hex.EncodeToString(buf)
}

func TestDecodeWrappedSwap(t *testing.T) {
	amount, _ := new(big.Int).SetString("500000000000000000", 10)
	a := model.Action{
		Type:    model.ActionSwap,
		Adapter: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Data:    wrapSpend(amount, []byte{0xde, 0xad, 0xbe, 0xef}),
	}

	d := Action(a)

	if !d.Known {
		t.Fatal("expected wrapped swap to be recognized")
	}
	if d.AmountWei.Cmp(amount) != 0 {
		t.Errorf("amount = %s, want %s", d.AmountWei, amount)
	}
}

func TestDecodeWrappedWithSelector(t *testing.T) {
	amount := big.NewInt(12345)
	data := wrapSpend(amount, nil)
	// Prepend a 4-byte function selector.
	withSel := "0x1a2b3c4d" + data[2:]

	d := Action(model.Action{Type: model.ActionPerp, Data: withSel})

	if !d.Known || d.AmountWei.Cmp(amount) != 0 {
		t.Errorf("selector-prefixed decode: known=%v amount=%s, want known=true amount=%s", d.Known, d.AmountWei, amount)
	}
}

func TestDecodeEmptyInnerData(t *testing.T) {
	amount := big.NewInt(1)

	d := Action(model.Action{Type: model.ActionLendSupply, Data: wrapSpend(amount, nil)})

	if !d.Known || d.AmountWei.Cmp(amount) != 0 {
		t.Errorf("empty inner data: known=%v amount=%s", d.Known, d.AmountWei)
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := []struct {
		name string
		a    model.Action
	}{
		{"not hex", model.Action{Type: model.ActionSwap, Data: "0xzzzz"}},
		{"odd length hex", model.Action{Type: model.ActionSwap, Data: "0xabc"}},
		{"too short", model.Action{Type: model.ActionSwap, Data: "0xdeadbeef"}},
		{"one word only", model.Action{Type: model.ActionEvent, Data: "0x" + "00000000000000000000000000000000000000000000000000000000000000ff"}},
		{"offset out of bounds", model.Action{Type: model.ActionEventBuy, Data: "0x" +
			"0000000000000000000000000000000000000000000000000000000000000001" +
			"00000000000000000000000000000000000000000000000000000000ffffffff"}},
		{"offset near MaxInt64", model.Action{Type: model.ActionSwap, Data: "0x" +
			"0000000000000000000000000000000000000000000000000000000000000001" +
			"0000000000000000000000000000000000000000000000007fffffffffffffff"}},
		{"offset MaxInt64 minus word", model.Action{Type: model.ActionSwap, Data: "0x" +
			"0000000000000000000000000000000000000000000000000000000000000001" +
			"0000000000000000000000000000000000000000000000007fffffffffffffe0"}},
		{"length near MaxInt64", model.Action{Type: model.ActionWrap, Data: "0x" +
			"0000000000000000000000000000000000000000000000000000000000000001" +
			"0000000000000000000000000000000000000000000000000000000000000040" +
			"0000000000000000000000000000000000000000000000007fffffffffffffff"}},
		{"length past end", model.Action{Type: model.ActionWrap, Data: "0x" +
			"0000000000000000000000000000000000000000000000000000000000000001" +
			"0000000000000000000000000000000000000000000000000000000000000040" +
			"00000000000000000000000000000000000000000000000000000000000000ff"}},
		{"unknown action type", model.Action{Type: model.ActionType(255), Data: "0xdeadbeef"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Action(tc.a)
			if d.Known {
				t.Error("expected malformed/unknown action to be unrecognized")
			}
			if d.AmountWei == nil || d.AmountWei.Sign() != 0 {
				t.Errorf("unrecognized amount must be zero, got %v", d.AmountWei)
			}
		})
	}
}

func TestDecodeProofIsDeterminableZero(t *testing.T) {
	// Proof call data is never read: even economically shaped data decodes
	// to a pinned zero contribution.
	amount := big.NewInt(1e18)

	d := Action(model.Action{Type: model.ActionProof, Data: wrapSpend(amount, nil)})

	if !d.Known {
		t.Error("expected proof action to be recognized")
	}
	if d.AmountWei.Sign() != 0 {
		t.Errorf("proof amount = %s, want 0", d.AmountWei)
	}
}

func TestDecodeIdempotent(t *testing.T) {
	a := model.Action{Type: model.ActionSwap, Data: wrapSpend(big.NewInt(777), []byte{1, 2, 3})}

	first := Action(a)
	second := Action(a)

	if first.Known != second.Known || first.AmountWei.Cmp(second.AmountWei) != 0 {
		t.Errorf("decode not idempotent: %+v vs %+v", first, second)
	}
}
