package ledger

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/clinic-ledger/internal/model"
)

// TierThresholds задаёт сумму трат, которую нужно превысить для получения уровня.
var TierThresholds = map[model.Tier]float64{
	model.TierMember:   0,
	model.TierGold:     10000,
	model.TierPlatinum: 50000,
}

// TierRewards задаёт долю оплаты, возвращаемую баллами на каждом уровне.
var TierRewards = map[model.Tier]decimal.Decimal{
	model.TierMember:   decimal.RequireFromString("0.02"),
	model.TierGold:     decimal.RequireFromString("0.05"),
	model.TierPlatinum: decimal.RequireFromString("0.08"),
}

// Шкала прогресса для пациентов платинового уровня.
const platinumProgressCeiling = 100000

// Доля порога, в пределах которой пациент считается близким к повышению.
const upgradeWindow = 0.1

// Верхние границы денежных величин. Суммы в пайсах и баллы должны помещаться в int64.
const (
	MaxAmount        = 1e12
	MaxLifetimeSpend = 1e14
)

func tierRank(t model.Tier) int {
	switch t {
	case model.TierPlatinum:
		return 2
	case model.TierGold:
		return 1
	default:
		return 0
	}
}

// TierForSpend вычисляет уровень по сумме трат. Порог должен быть строго превышен.
func TierForSpend(spend float64) model.Tier {
	switch {
	case spend > TierThresholds[model.TierPlatinum]:
		return model.TierPlatinum
	case spend > TierThresholds[model.TierGold]:
		return model.TierGold
	default:
		return model.TierMember
	}
}

// NextTier возвращает следующий уровень. Для платинового уровня следующего нет.
func NextTier(t model.Tier) (model.Tier, bool) {
	switch t {
	case model.TierMember:
		return model.TierGold, true
	case model.TierGold:
		return model.TierPlatinum, true
	default:
		return model.TierPlatinum, false
	}
}

// RewardRate возвращает ставку начисления уровня.
func RewardRate(t model.Tier) float64 {
	return TierRewards[t].InexactFloat64()
}

// PointsFor вычисляет floor(amount × ставка уровня).
func PointsFor(amount float64, t model.Tier) int64 {
	return decimal.NewFromFloat(amount).Mul(TierRewards[t]).Floor().IntPart()
}

// Progress вычисляет прогресс главы семьи до следующего уровня.
func Progress(head model.User) model.TierProgress {
	next, ok := NextTier(head.CurrentTier)
	threshold := TierThresholds[next]

	ceiling := threshold
	if !ok {
		ceiling = platinumProgressCeiling
	}

	percent := 100.0
	if ceiling > 0 {
		percent = math.Min(100, head.LifetimeSpend/ceiling*100)
	}

	return model.TierProgress{
		CurrentTier: head.CurrentTier,
		NextTier:    next,
		RewardRate:  RewardRate(head.CurrentTier),
		Remaining:   math.Max(0, subMoney(threshold, head.LifetimeSpend)),
		Percent:     percent,
	}
}

func upgradingSoon(u model.User) bool {
	next, ok := NextTier(u.CurrentTier)
	if !ok {
		return false
	}

	threshold := TierThresholds[next]
	remaining := subMoney(threshold, u.LifetimeSpend)
	return remaining > 0 && remaining <= threshold*upgradeWindow
}

func validAmount(amount float64) bool {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 || amount > MaxAmount {
		return false
	}
	d := decimal.NewFromFloat(amount)
	return d.Equal(d.Round(2))
}

// higherTier возвращает старший из двух уровней.
func higherTier(a, b model.Tier) model.Tier {
	if tierRank(b) > tierRank(a) {
		return b
	}
	return a
}

// fitsBalance сообщает, что balance+delta не переполнит int64.
func fitsBalance(balance, delta int64) bool {
	return delta <= math.MaxInt64-balance
}

func addMoney(a, b float64) float64 {
	return decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).InexactFloat64()
}

func subMoney(a, b float64) float64 {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).InexactFloat64()
}
