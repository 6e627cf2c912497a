package ledger

import (
	"slices"
	"strings"
	"time"

	"github.com/mmeshcher/clinic-ledger/internal/model"
)

// Границы окна DailyActivity в днях.
const (
	DefaultActivityDays = 7
	MaxActivityDays     = 90
)

// SearchPatients ищет пациентов по части имени без учёта регистра или по части номера.
// Пустой запрос возвращает всех пациентов.
func (e *Engine) SearchPatients(query string) []model.User {
	q := strings.ToLower(strings.TrimSpace(query))

	res := make([]model.User, 0)
	for _, u := range e.users {
		if u.Role != model.RolePatient {
			continue
		}
		if q == "" || strings.Contains(strings.ToLower(u.Name), q) || strings.Contains(u.Mobile, q) {
			res = append(res, u)
		}
	}
	return res
}

// FindByMobile возвращает пользователя с указанным номером телефона.
func (e *Engine) FindByMobile(mobile string) (model.User, error) {
	i, ok := e.userIndexByMobile(strings.TrimSpace(mobile))
	if !ok {
		return model.User{}, ErrUserNotFound
	}
	return e.users[i], nil
}

// PatientOverview собирает кошелёк, семью, прогресс уровня и историю пациента.
func (e *Engine) PatientOverview(userID string) (*model.PatientOverview, error) {
	ui, ok := e.userIndex(userID)
	if !ok {
		return nil, ErrUserNotFound
	}
	hi, ok := e.headUser(userID)
	if !ok {
		return nil, ErrFamilyHeadNotFound
	}
	wi, ok := e.effectiveWallet(userID)
	if !ok {
		return nil, ErrWalletNotFound
	}

	user := e.users[ui]
	ov := &model.PatientOverview{
		User:          user,
		Head:          e.users[hi],
		Wallet:        e.wallets[wi],
		FamilyMembers: []model.User{user},
		Progress:      Progress(e.users[hi]),
	}

	if user.FamilyGroupID != "" {
		if fi, ok := e.familyIndex(user.FamilyGroupID); ok {
			family := e.familyGroups[fi]
			ov.Family = &family

			ov.FamilyMembers = ov.FamilyMembers[:0]
			for _, u := range e.users {
				if u.FamilyGroupID == family.ID {
					ov.FamilyMembers = append(ov.FamilyMembers, u)
				}
			}
		}
	}

	ov.Transactions = e.walletHistory(ov.Wallet.ID)

	return ov, nil
}

// DailyActivity возвращает начисленные и списанные баллы эффективного кошелька
// пользователя по дням за последние days дней, начиная с самого раннего.
func (e *Engine) DailyActivity(userID string, days int) ([]model.DailyActivity, error) {
	if _, ok := e.userIndex(userID); !ok {
		return nil, ErrUserNotFound
	}
	wi, ok := e.effectiveWallet(userID)
	if !ok {
		return nil, ErrWalletNotFound
	}

	switch {
	case days <= 0:
		days = DefaultActivityDays
	case days > MaxActivityDays:
		days = MaxActivityDays
	}

	now := e.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	walletID := e.wallets[wi].ID

	res := make([]model.DailyActivity, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		next := day.AddDate(0, 0, 1)

		a := model.DailyActivity{Day: day}
		for _, t := range e.transactions {
			if t.WalletID != walletID {
				continue
			}
			d := t.Date.UTC()
			if d.Before(day) || !d.Before(next) {
				continue
			}
			switch t.Type {
			case model.TransactionEarn:
				a.Earned += t.PointsEarned
			case model.TransactionRedeem:
				a.Redeemed += -t.PointsEarned
			}
		}
		res = append(res, a)
	}

	return res, nil
}

func (e *Engine) walletHistory(walletID string) []model.Transaction {
	res := make([]model.Transaction, 0)
	for _, t := range e.transactions {
		if t.WalletID == walletID {
			res = append(res, t)
		}
	}

	slices.SortStableFunc(res, func(a, b model.Transaction) int {
		return b.Date.Compare(a.Date)
	})
	return res
}
