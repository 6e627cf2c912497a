package ledger

import (
	"fmt"
	"strings"

	"github.com/mmeshcher/clinic-ledger/internal/model"
)

// LinkFamilyMember присоединяет пациента с номером memberMobile к семье headUserID.
// Баланс и история кошелька участника переносятся в кошелёк главы, траты участника
// добавляются к тратам главы. Если headUserID сам является участником чужой семьи,
// траты зачисляются фактическому главе этой группы.
func (e *Engine) LinkFamilyMember(headUserID, memberMobile string) (*Result, error) {
	hi, ok := e.userIndex(headUserID)
	if !ok {
		return nil, ErrHeadUserNotFound
	}
	mi, ok := e.userIndexByMobile(strings.TrimSpace(memberMobile))
	if !ok {
		return nil, ErrMemberNotFound
	}
	if hi == mi {
		return nil, ErrSelfLink
	}
	if e.users[mi].FamilyGroupID != "" {
		return nil, ErrAlreadyInFamily
	}

	hwi, headOK := e.effectiveWallet(e.users[hi].ID)
	mwi, memberOK := e.walletIndexByOwner(e.users[mi].ID)
	merge := headOK && memberOK && e.wallets[hwi].ID != e.wallets[mwi].ID

	ghi, ok := e.headUser(e.users[hi].ID)
	if !ok {
		ghi = hi
	}

	if merge && !fitsBalance(e.wallets[hwi].Balance, e.wallets[mwi].Balance) {
		return nil, ErrLimitExceeded
	}
	consolidated := addMoney(e.users[ghi].LifetimeSpend, e.users[mi].LifetimeSpend)
	if consolidated > MaxLifetimeSpend {
		return nil, ErrLimitExceeded
	}

	groupID := e.users[hi].FamilyGroupID
	if groupID == "" {
		groupID = e.newID("fam")
		e.familyGroups = append(e.familyGroups, model.FamilyGroup{
			ID:         groupID,
			HeadUserID: e.users[hi].ID,
			FamilyName: familyName(e.users[hi].Name),
		})
		e.users[hi].FamilyGroupID = groupID
	}

	e.users[mi].FamilyGroupID = groupID

	res := &Result{}

	if merge {
		transferred := e.wallets[mwi].Balance
		e.wallets[hwi].Balance += transferred
		e.wallets[mwi].Balance = 0

		res.Transferred = transferred
		res.Migrated = e.migrateHistory(e.wallets[mwi].ID, e.wallets[hwi].ID)

		if transferred > 0 {
			tx := model.Transaction{
				ID:           e.newID("tx-merge"),
				WalletID:     e.wallets[hwi].ID,
				AmountPaid:   0,
				PointsEarned: 0,
				Category:     model.CategoryGeneral,
				Type:         model.TransactionEarn,
				Date:         e.now(),
				Description:  fmt.Sprintf("Family Linked: %s joined", e.users[mi].Name),
			}
			e.prepend(tx)
			res.Transaction = &tx
		}
	}

	e.users[ghi].LifetimeSpend = consolidated
	res.TierChange = e.upgradeTier(ghi)

	res.Message = fmt.Sprintf("%s linked to family successfully. Points & History merged.", e.users[mi].Name)
	res.Snapshot = e.Snapshot()

	return res, nil
}

// migrateHistory переназначает транзакции кошелька from на кошелёк to
// и возвращает число перенесённых записей.
func (e *Engine) migrateHistory(from, to string) int {
	n := 0
	for i := range e.transactions {
		if e.transactions[i].WalletID == from {
			e.transactions[i].WalletID = to
			n++
		}
	}
	return n
}

// familyName строит название семьи по фамилии главы, а при её отсутствии по полному имени.
func familyName(headName string) string {
	name := headName
	if parts := strings.Fields(headName); len(parts) > 1 {
		name = parts[1]
	}
	return name + "'s Family"
}
