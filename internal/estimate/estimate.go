// Package estimate produces a conservative aggregate spend bound for a plan.
// A plan with any undeterminable step is undeterminable as a whole; the
// partial total is a diagnostic lower bound, never an authoritative figure.
package estimate

import (
	"context"
	"math/big"

	"github.com/relayguard/relayguard/internal/decode"
	"github.com/relayguard/relayguard/internal/model"
)

// PriceFunc resolves the current ETH/USD price. Injected; failures only
// suppress the optional USD figure, never the estimate itself.
type PriceFunc func(ctx context.Context) (float64, error)

var weiPerEth = new(big.Float).SetFloat64(1e18)

// Plan walks every action in order and aggregates the spend bound.
//
// Estimation never fails: unrecognized steps flip the determinable flag and
// contribute nothing, but the walk continues so the instrument type and the
// partial total stay available for diagnostics. An empty action list is
// determinable-zero (nothing to spend). Deadlines are not this component's
// concern.
func Plan(ctx context.Context, plan *model.Plan, prices PriceFunc) model.SpendEstimate {
	est := model.SpendEstimate{
		SpendWei:     big.NewInt(0),
		Determinable: true,
	}

	for _, a := range plan.Actions {
		d := decode.Action(a)
		if !d.Known {
			est.Determinable = false
			continue
		}
		est.SpendWei.Add(est.SpendWei, d.AmountWei)

		if est.Instrument == "" {
			est.Instrument = instrumentOf(a.Type)
		}
	}

	if prices != nil {
		if price, err := prices(ctx); err == nil && price > 0 {
			eth := new(big.Float).Quo(new(big.Float).SetInt(est.SpendWei), weiPerEth)
			usd, _ := new(big.Float).Mul(eth, big.NewFloat(price)).Float64()
			est.SpendUSD = usd
			est.HasUSD = true
		}
	}

	return est
}

// instrumentOf maps an action type to the instrument it defines.
// WRAP, PULL and PROOF are plumbing steps and define no instrument.
func instrumentOf(t model.ActionType) model.Instrument {
	switch t {
	case model.ActionSwap:
		return model.InstrumentSwap
	case model.ActionPerp:
		return model.InstrumentPerp
	case model.ActionLendSupply, model.ActionLendBorrow:
		return model.InstrumentDefi
	case model.ActionEventBuy, model.ActionEvent:
		return model.InstrumentEvent
	default:
		return ""
	}
}
