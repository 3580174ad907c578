package prices

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Oracle converts token amounts to USD
type Oracle interface {
	USD(token string, decimals int32, amount *big.Int) decimal.NullDecimal
}

// Table is a fixed USD price per whole token
type Table struct {
	prices map[string]decimal.Decimal
}

func NewTable(raw map[string]string) (*Table, error) {
	t := &Table{prices: make(map[string]decimal.Decimal, len(raw))}
	for token, p := range raw {
		d, err := decimal.NewFromString(p)
		if err != nil {
			return nil, fmt.Errorf("price of %s: %w", token, err)
		}
		t.prices[token] = d
	}
	return t, nil
}

// USD returns an invalid NullDecimal when the token has no price
func (t *Table) USD(token string, decimals int32, amount *big.Int) decimal.NullDecimal {
	price, ok := t.prices[token]
	if !ok || amount == nil {
		return decimal.NullDecimal{}
	}
	whole := decimal.NewFromBigInt(amount, -decimals)
	return decimal.NullDecimal{Decimal: whole.Mul(price).Round(2), Valid: true}
}
