package service

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"salon-service/internal/models"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// GenerateOrderNumber returns ORD-<last 8 digits of epoch ms>-<4 random base36 chars>, uppercased
func GenerateOrderNumber(now time.Time) string {
	ms := now.UnixMilli() % 100_000_000
	suffix := strconv.FormatInt(rand.Int64N(36*36*36*36), 36)
	suffix = strings.Repeat("0", 4-len(suffix)) + suffix
	return strings.ToUpper(fmt.Sprintf("ORD-%08d-%s", ms, suffix))
}

// percentOf returns round(amount * percent / 100), half away from zero
func percentOf(amount int64, percent float64) int64 {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromFloat(percent)).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}

// normalizeCurrency validates an ISO 4217 code, falling back to def when empty
func normalizeCurrency(code, def string) (string, error) {
	if code == "" {
		code = def
	}
	unit, err := currency.ParseISO(strings.ToUpper(code))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	return unit.String(), nil
}

// priceItems fills unit and line totals from the products and returns the subtotal
func priceItems(items []models.OrderItem, products map[int64]models.Product) int64 {
	for i := range items {
		p := products[items[i].ProductID]
		if items[i].UnitPrice == 0 {
			items[i].UnitPrice = p.Price
		}
		if items[i].ProductName == "" {
			items[i].ProductName = p.Name
		}
		items[i].TotalPrice = items[i].UnitPrice * int64(items[i].Quantity)
	}
	return lo.SumBy(items, func(it models.OrderItem) int64 { return it.TotalPrice })
}

// firstPromotion is the literal "take first match" policy: the first active promotion wins
func firstPromotion(promotions []models.Promotion) *models.Promotion {
	p, ok := lo.First(promotions)
	if !ok {
		return nil
	}
	return &p
}

// finalizePricing recomputes subtotal and total so both order invariants hold
func finalizePricing(p *models.Pricing, items []models.OrderItem) error {
	if p.Tax < 0 || p.Shipping < 0 || p.Discount < 0 {
		return fmt.Errorf("%w: tax, shipping and discount must not be negative", ErrInvalidPricing)
	}

	p.Subtotal = lo.SumBy(items, func(it models.OrderItem) int64 { return it.TotalPrice })
	p.Total = p.Subtotal + p.Tax + p.Shipping - p.Discount
	if p.Total < 0 {
		return fmt.Errorf("%w: discount exceeds order amount", ErrInvalidPricing)
	}
	return nil
}

// loyaltyPointsEarned is floor(total/10)
func loyaltyPointsEarned(total int64) int64 {
	if total <= 0 {
		return 0
	}
	return total / 10
}

// loyaltyPointsForfeited is floor(total/20)
func loyaltyPointsForfeited(total int64) int64 {
	if total <= 0 {
		return 0
	}
	return total / 20
}
