// Package executor abstracts order execution behind a venue interface.
// The paper venue fills orders against the fee and slippage models; a live
// CLOB venue can slot in behind the same interface.
package executor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/foresight/internal/domain"
	"github.com/aristath/foresight/pkg/formulas"
)

// Order is a request to open a position.
type Order struct {
	ConditionID string
	Question    string
	Side        domain.Side
	Price       float64 // quoted entry price
	Amount      float64 // USD to commit
	Liquidity   float64 // market depth, drives the slippage tier
	PostOnly    bool    // maker orders fill at quote and pay no fee
}

// Fill reports how an order executed.
type Fill struct {
	Price  float64 // effective fill price after slippage
	Amount float64 // USD committed
	FeePct float64 // fee fraction charged on the committed amount
}

// Venue executes entry orders.
type Venue interface {
	Buy(ctx context.Context, order Order) (*Fill, error)
}

// Paper simulates fills. Taker orders pay the price-dependent fee and a
// liquidity-tiered slippage markup; post-only orders fill at quote.
type Paper struct {
	slippageBps int
	log         zerolog.Logger
}

// NewPaper creates a paper venue with the given base slippage in bps.
func NewPaper(slippageBps int, log zerolog.Logger) *Paper {
	if slippageBps <= 0 {
		slippageBps = 20
	}
	return &Paper{
		slippageBps: slippageBps,
		log:         log.With().Str("venue", "paper").Logger(),
	}
}

// Buy fills an entry order.
func (p *Paper) Buy(_ context.Context, order Order) (*Fill, error) {
	if order.Price <= 0 || order.Price >= 1 {
		return nil, fmt.Errorf("invalid order price %.4f", order.Price)
	}
	if order.Amount <= 0 {
		return nil, fmt.Errorf("invalid order amount %.2f", order.Amount)
	}

	if order.PostOnly {
		return &Fill{Price: order.Price, Amount: order.Amount, FeePct: 0}, nil
	}

	// A dual-side entry lifts both displayed quotes at once: the pair
	// fills at its combined quoted cost with the taker fee on it.
	if order.Side == domain.SideBoth {
		return &Fill{Price: order.Price, Amount: order.Amount, FeePct: formulas.TakerFee(order.Price)}, nil
	}

	slip := formulas.TakerSlippage(order.Liquidity, p.slippageBps)
	fillPrice := order.Price * (1 + slip)
	fee := formulas.TakerFee(order.Price)

	p.log.Debug().
		Str("condition_id", order.ConditionID).
		Float64("quote", order.Price).
		Float64("fill", fillPrice).
		Float64("fee_pct", fee).
		Msg("Paper fill")

	return &Fill{Price: fillPrice, Amount: order.Amount, FeePct: fee}, nil
}
