// Package reference maps crypto market questions onto exchange reference
// prices: it parses price targets out of question text, estimates implied
// probabilities from spot distance, and archives daily closes for
// volatility estimation.
package reference

import (
	"regexp"
	"strconv"
	"strings"
)

// Direction is which side of the target the question asks about.
type Direction uint8

const (
	DirectionAbove Direction = iota
	DirectionBelow
)

func (d Direction) String() string {
	if d == DirectionBelow {
		return "BELOW"
	}
	return "ABOVE"
}

// Target is a parsed price target from a market question.
type Target struct {
	Symbol    string
	Price     float64
	Direction Direction
}

var priceRe = regexp.MustCompile(`\$([0-9]+(?:\.[0-9]+)?)\s*([km])?`)

var priceKeywords = []string{"price", "above", "below", "reach", "hit", "$"}

// ParseTarget extracts a tradeable price target from a market question.
// Returns nil for questions that name no tracked asset or no dollar target.
func ParseTarget(question string) *Target {
	q := strings.ToLower(question)

	symbol := ""
	switch {
	case strings.Contains(q, "bitcoin") || strings.Contains(q, "btc"):
		symbol = "BTCUSDT"
	case strings.Contains(q, "ethereum") || strings.Contains(q, "eth "):
		symbol = "ETHUSDT"
	case strings.Contains(q, "solana") || strings.Contains(q, "sol "):
		symbol = "SOLUSDT"
	}
	if symbol == "" {
		return nil
	}

	priceRelated := false
	for _, kw := range priceKeywords {
		if strings.Contains(q, kw) {
			priceRelated = true
			break
		}
	}
	if !priceRelated {
		return nil
	}

	match := priceRe.FindStringSubmatch(strings.ReplaceAll(q, ",", ""))
	if match == nil {
		return nil
	}

	target, err := strconv.ParseFloat(match[1], 64)
	if err != nil || target <= 0 {
		return nil
	}
	switch match[2] {
	case "k":
		target *= 1_000
	case "m":
		target *= 1_000_000
	}

	direction := DirectionAbove
	if strings.Contains(q, "below") || strings.Contains(q, "under") {
		direction = DirectionBelow
	}

	return &Target{Symbol: symbol, Price: target, Direction: direction}
}
