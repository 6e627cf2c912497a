// Package ledger реализует движок журнала лояльности: начисления и списания баллов,
// расчёт уровней и объединение счетов пациентов в семейный кошелёк.
//
// Engine не выполняет ввода-вывода и не использует блокировок. Вызывающая сторона
// восстанавливает движок из снимка, выполняет одну операцию и сохраняет новый снимок.
package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/clinic-ledger/internal/model"
)

// Engine владеет коллекциями журнала и является единственным способом их изменить.
type Engine struct {
	users        []model.User
	wallets      []model.Wallet
	transactions []model.Transaction
	familyGroups []model.FamilyGroup

	now   func() time.Time
	newID func(prefix string) string
}

// Option настраивает Engine.
type Option func(*Engine)

// WithClock задаёт источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator задаёт генератор идентификаторов новых сущностей.
func WithIDGenerator(gen func(prefix string) string) Option {
	return func(e *Engine) {
		e.newID = gen
	}
}

// New создаёт движок из копии переданного снимка.
func New(snapshot model.Snapshot, opts ...Option) *Engine {
	s := snapshot.Clone()
	e := &Engine{
		users:        s.Users,
		wallets:      s.Wallets,
		transactions: s.Transactions,
		familyGroups: s.FamilyGroups,
		now:          func() time.Time { return time.Now().UTC() },
		newID:        func(prefix string) string { return prefix + "-" + uuid.NewString() },
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// TierChange фиксирует повышение уровня главы семьи.
type TierChange struct {
	UserID string
	From   model.Tier
	To     model.Tier
}

// Result описывает успешно выполненную операцию.
type Result struct {
	Message  string
	User     *model.User
	Snapshot model.Snapshot

	Transaction *model.Transaction
	TierChange  *TierChange

	// Заполняются при объединении семьи.
	Transferred int64
	Migrated    int
}

// Snapshot возвращает копию текущего состояния.
func (e *Engine) Snapshot() model.Snapshot {
	return model.Snapshot{
		Users:        e.users,
		Wallets:      e.wallets,
		Transactions: e.transactions,
		FamilyGroups: e.familyGroups,
	}.Clone()
}

func (e *Engine) userIndex(id string) (int, bool) {
	for i := range e.users {
		if e.users[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

func (e *Engine) userIndexByMobile(mobile string) (int, bool) {
	for i := range e.users {
		if e.users[i].Mobile == mobile {
			return i, true
		}
	}
	return -1, false
}

func (e *Engine) walletIndexByOwner(userID string) (int, bool) {
	for i := range e.wallets {
		if e.wallets[i].UserID == userID {
			return i, true
		}
	}
	return -1, false
}

func (e *Engine) familyIndex(id string) (int, bool) {
	for i := range e.familyGroups {
		if e.familyGroups[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

// effectiveWallet возвращает кошелёк, с которым работают транзакции пользователя:
// для участника семьи это кошелёк главы.
func (e *Engine) effectiveWallet(userID string) (int, bool) {
	ui, ok := e.userIndex(userID)
	if !ok {
		return -1, false
	}

	target := userID
	if gid := e.users[ui].FamilyGroupID; gid != "" {
		if fi, ok := e.familyIndex(gid); ok {
			target = e.familyGroups[fi].HeadUserID
		}
	}

	return e.walletIndexByOwner(target)
}

// headUser возвращает главу семьи пользователя или самого пользователя вне семьи.
func (e *Engine) headUser(userID string) (int, bool) {
	ui, ok := e.userIndex(userID)
	if !ok {
		return -1, false
	}

	if gid := e.users[ui].FamilyGroupID; gid != "" {
		if fi, ok := e.familyIndex(gid); ok {
			return e.userIndex(e.familyGroups[fi].HeadUserID)
		}
	}

	return ui, true
}

// upgradeTier пересчитывает уровень пользователя. Уровень никогда не понижается.
func (e *Engine) upgradeTier(i int) *TierChange {
	u := &e.users[i]
	computed := TierForSpend(u.LifetimeSpend)
	if tierRank(computed) <= tierRank(u.CurrentTier) {
		return nil
	}

	change := &TierChange{UserID: u.ID, From: u.CurrentTier, To: computed}
	u.CurrentTier = computed
	return change
}

func (e *Engine) prepend(tx model.Transaction) {
	e.transactions = append([]model.Transaction{tx}, e.transactions...)
}

// RegisterPatient регистрирует пациента и создаёт ему пустой кошелёк.
func (e *Engine) RegisterPatient(name, mobile string) (*Result, error) {
	name = strings.TrimSpace(name)
	mobile = strings.TrimSpace(mobile)
	if name == "" || mobile == "" {
		return nil, ErrInvalidPatient
	}

	if _, exists := e.userIndexByMobile(mobile); exists {
		return nil, ErrMobileExists
	}

	now := e.now()
	user := model.User{
		ID:            e.newID("user"),
		Mobile:        mobile,
		Name:          name,
		Role:          model.RolePatient,
		LifetimeSpend: 0,
		CurrentTier:   model.TierMember,
		JoinedAt:      now,
	}
	wallet := model.Wallet{
		ID:                e.newID("wallet"),
		UserID:            user.ID,
		Balance:           0,
		LastTransactionAt: now,
	}

	e.users = append(e.users, user)
	e.wallets = append(e.wallets, wallet)

	return &Result{
		Message:  "Patient registered successfully.",
		User:     &user,
		Snapshot: e.Snapshot(),
	}, nil
}

// ProcessTransaction начисляет или списывает баллы пациента.
// При любом отказе состояние движка не изменяется.
func (e *Engine) ProcessTransaction(patientID string, amount float64, category model.Category, txType model.TransactionType) (*Result, error) {
	if !category.Valid() {
		return nil, ErrInvalidCategory
	}
	if !txType.Valid() {
		return nil, ErrInvalidType
	}
	if !validAmount(amount) {
		return nil, ErrInvalidAmount
	}

	ui, ok := e.userIndex(patientID)
	if !ok {
		return nil, ErrUserNotFound
	}
	hi, ok := e.headUser(patientID)
	if !ok {
		return nil, ErrFamilyHeadNotFound
	}
	wi, ok := e.effectiveWallet(patientID)
	if !ok {
		return nil, ErrWalletNotFound
	}

	var (
		pointsChange int64
		tierChange   *TierChange
	)

	switch txType {
	case model.TransactionEarn:
		headSpend := addMoney(e.users[hi].LifetimeSpend, amount)
		memberSpend := addMoney(e.users[ui].LifetimeSpend, amount)
		if headSpend > MaxLifetimeSpend || memberSpend > MaxLifetimeSpend {
			return nil, ErrLimitExceeded
		}
		tier := higherTier(e.users[hi].CurrentTier, TierForSpend(headSpend))
		pointsChange = PointsFor(amount, tier)
		if !fitsBalance(e.wallets[wi].Balance, pointsChange) {
			return nil, ErrLimitExceeded
		}

		e.users[hi].LifetimeSpend = headSpend
		if ui != hi {
			e.users[ui].LifetimeSpend = memberSpend
		}

		tierChange = e.upgradeTier(hi)
		e.wallets[wi].Balance += pointsChange

	case model.TransactionRedeem:
		if category != model.CategoryCosmetic {
			return nil, ErrRedeemNotCosmetic
		}
		points := int64(amount)
		if float64(points) != amount {
			return nil, ErrInvalidAmount
		}
		if e.wallets[wi].Balance < points {
			return nil, ErrInsufficientPoints
		}

		pointsChange = -points
		e.wallets[wi].Balance -= points
	}

	now := e.now()
	e.wallets[wi].LastTransactionAt = now

	tx := model.Transaction{
		ID:           e.newID("tx"),
		WalletID:     e.wallets[wi].ID,
		PointsEarned: pointsChange,
		Category:     category,
		Type:         txType,
		Date:         now,
	}

	var message string
	if txType == model.TransactionEarn {
		tx.AmountPaid = amount
		tx.Description = fmt.Sprintf("%s - Treatment", category)
		message = fmt.Sprintf("Processed ₹%s. Earned %d pts.", strconv.FormatFloat(amount, 'f', -1, 64), pointsChange)
	} else {
		tx.Description = fmt.Sprintf("%s - Redemption", category)
		message = fmt.Sprintf("Redeemed %d pts successfully.", -pointsChange)
	}

	e.prepend(tx)

	return &Result{
		Message:     message,
		Snapshot:    e.Snapshot(),
		Transaction: &tx,
		TierChange:  tierChange,
	}, nil
}

// DashboardStats сворачивает текущее состояние в показатели панели клиники.
func (e *Engine) DashboardStats() model.DashboardStats {
	var stats model.DashboardStats

	for _, w := range e.wallets {
		stats.TotalLiability += w.Balance
	}

	for _, t := range e.transactions {
		if t.Type == model.TransactionEarn {
			stats.TotalRevenue = addMoney(stats.TotalRevenue, t.AmountPaid)
		}
	}

	for _, u := range e.users {
		if upgradingSoon(u) {
			stats.UpgradingSoon++
		}
	}

	return stats
}
