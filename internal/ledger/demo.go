package ledger

import (
	"time"

	"github.com/mmeshcher/clinic-ledger/internal/model"
)

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

// DemoSnapshot возвращает демонстрационную клинику: семью Менон и двух врачей.
func DemoSnapshot() model.Snapshot {
	return model.Snapshot{
		Users: []model.User{
			{
				ID:            "user-1",
				Mobile:        "9876543210",
				Name:          "Rohan Menon",
				Role:          model.RolePatient,
				FamilyGroupID: "fam-1",
				LifetimeSpend: 42000,
				CurrentTier:   model.TierGold,
				JoinedAt:      mustTime("2023-01-15T10:00:00Z"),
			},
			{
				ID:            "user-2",
				Mobile:        "9876543211",
				Name:          "Anjali Menon",
				Role:          model.RolePatient,
				FamilyGroupID: "fam-1",
				LifetimeSpend: 5000,
				CurrentTier:   model.TierMember,
				JoinedAt:      mustTime("2023-02-20T14:00:00Z"),
			},
			{
				ID:          "doc-1",
				Mobile:      "admin",
				Name:        "Dr. Bastin Cherian",
				Role:        model.RoleAdmin,
				CurrentTier: model.TierMember,
				JoinedAt:    mustTime("2022-11-01T09:00:00Z"),
			},
			{
				ID:          "doc-2",
				Mobile:      "admin2",
				Name:        "Dr. Alda Davis",
				Role:        model.RoleAdmin,
				CurrentTier: model.TierMember,
				JoinedAt:    mustTime("2023-01-01T09:00:00Z"),
			},
		},
		Wallets: []model.Wallet{
			{
				ID:                "wallet-1",
				UserID:            "user-1",
				Balance:           2400,
				LastTransactionAt: mustTime("2023-10-05T16:30:00Z"),
			},
		},
		Transactions: []model.Transaction{
			{
				ID:           "tx-2",
				WalletID:     "wallet-1",
				AmountPaid:   27000,
				PointsEarned: 1350,
				Category:     model.CategoryCosmetic,
				Type:         model.TransactionEarn,
				Date:         mustTime("2023-10-05T16:30:00Z"),
				Description:  "Invisalign Installment 1",
			},
			{
				ID:           "tx-1",
				WalletID:     "wallet-1",
				AmountPaid:   15000,
				PointsEarned: 750,
				Category:     model.CategoryGeneral,
				Type:         model.TransactionEarn,
				Date:         mustTime("2023-09-01T10:00:00Z"),
				Description:  "Root Canal Treatment",
			},
		},
		FamilyGroups: []model.FamilyGroup{
			{
				ID:         "fam-1",
				HeadUserID: "user-1",
				FamilyName: "The Menon Family",
			},
		},
	}
}
