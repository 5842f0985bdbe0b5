package pricing

import (
	"math/big"

	"github.com/dumeirei/stay-calendar-backend/internal/common/utils"
	"github.com/dumeirei/stay-calendar-backend/internal/models"
)

// NightlyRate 单晚价格
type NightlyRate struct {
	Date  string `json:"date"`
	Price int64  `json:"price"`
}

// Quote 入住报价，金额单位为分
type Quote struct {
	NightlyRates    []NightlyRate `json:"nightlyRates"`
	Nights          int           `json:"nights"`
	NightsTotal     int64         `json:"nightsTotal"`
	CleaningFee     int64         `json:"cleaningFee"`
	Subtotal        int64         `json:"subtotal"`
	DiscountPercent float64       `json:"discountPercent"`
	DiscountAmount  int64         `json:"discountAmount"`
	Total           int64         `json:"total"`
	Currency        string        `json:"currency"`
}

// BuildQuote 汇总报价：逐晚求和，加一次清洁费，再按满足的最高连住折扣档位减免
// 折扣金额四舍五入（half-up）到分
func BuildQuote(rates []NightlyRate, cleaningFee int64, tiers models.DiscountTiers, currency string) Quote {
	q := Quote{
		NightlyRates: rates,
		Nights:       len(rates),
		CleaningFee:  cleaningFee,
		Currency:     currency,
	}
	for _, r := range rates {
		q.NightsTotal += r.Price
	}
	q.Subtotal = q.NightsTotal + cleaningFee

	if tier, ok := tiers.Best(q.Nights); ok && tier.Percent > 0 {
		q.DiscountPercent = tier.Percent
		amount := new(big.Rat).SetInt64(q.Subtotal)
		amount.Mul(amount, ratFromFloat(tier.Percent))
		amount.Quo(amount, big.NewRat(100, 1))
		q.DiscountAmount = utils.RoundHalfUp(amount)
	}
	q.Total = q.Subtotal - q.DiscountAmount
	return q
}
