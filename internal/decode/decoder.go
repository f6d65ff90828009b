// Package decode extracts the economically relevant fields from a single
// plan action. It is the first line of the fail-closed spend policy: any
// call data it cannot bound decodes as unknown, never as zero cost.
package decode

import (
	"math/big"

	"github.com/relayguard/relayguard/internal/model"
)

// Decoded is the decoder's verdict for one action.
// When Known is false, AmountWei is zero and must never be read as "free".
type Decoded struct {
	AmountWei *big.Int
	Known     bool
}

// Action decodes the spend bound of a single action. Pure and deterministic;
// never panics on adversarial call data.
//
// The switch is exhaustive over the closed action-type enum so that adding a
// new type forces an explicit decision about its spend semantics. There is no
// branch that assumes zero cost by default.
func Action(a model.Action) Decoded {
	switch a.Type {
	case model.ActionSwap,
		model.ActionWrap,
		model.ActionPull,
		model.ActionLendSupply,
		model.ActionLendBorrow,
		model.ActionEventBuy,
		model.ActionPerp,
		model.ActionEvent:
		return spendBound(a.Data)

	case model.ActionProof:
		// Proof actions carry no spend and their call data is never read,
		// so routing a real trade through a proof step cannot hide its cost:
		// the contribution is structurally pinned at zero.
		return Decoded{AmountWei: big.NewInt(0), Known: true}

	default:
		return unknown()
	}
}

// spendBound unwraps the (maxSpendUnits, innerData) head. The outer bound is
// authoritative when present; absent or malformed wrapping is undeterminable.
func spendBound(data string) Decoded {
	raw, ok := hexToBytes(data)
	if !ok {
		return unknown()
	}
	amount, ok := unwrapSpendHead(raw)
	if !ok {
		return unknown()
	}
	return Decoded{AmountWei: amount, Known: true}
}

func unknown() Decoded {
	return Decoded{AmountWei: big.NewInt(0), Known: false}
}
