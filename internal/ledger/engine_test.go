package ledger

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/clinic-ledger/internal/model"
)

var testNow = time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, snap model.Snapshot) *Engine {
	t.Helper()

	seq := 0
	return New(snap,
		WithClock(func() time.Time { return testNow }),
		WithIDGenerator(func(prefix string) string {
			seq++
			return fmt.Sprintf("%s-t%d", prefix, seq)
		}),
	)
}

func register(t *testing.T, e *Engine, name, mobile string) model.User {
	t.Helper()

	res, err := e.RegisterPatient(name, mobile)
	require.NoError(t, err)
	require.NotNil(t, res.User)
	return *res.User
}

func earn(t *testing.T, e *Engine, userID string, amount float64) *Result {
	t.Helper()

	res, err := e.ProcessTransaction(userID, amount, model.CategoryGeneral, model.TransactionEarn)
	require.NoError(t, err)
	return res
}

func findUser(t *testing.T, snap model.Snapshot, id string) model.User {
	t.Helper()

	for _, u := range snap.Users {
		if u.ID == id {
			return u
		}
	}
	t.Fatalf("user %s not in snapshot", id)
	return model.User{}
}

func ownWallet(t *testing.T, snap model.Snapshot, userID string) model.Wallet {
	t.Helper()

	for _, w := range snap.Wallets {
		if w.UserID == userID {
			return w
		}
	}
	t.Fatalf("wallet of %s not in snapshot", userID)
	return model.Wallet{}
}

func totalPoints(snap model.Snapshot) int64 {
	var sum int64
	for _, w := range snap.Wallets {
		sum += w.Balance
	}
	return sum
}

func TestAshaScenario(t *testing.T) {
	e := newTestEngine(t, model.Snapshot{})

	asha := register(t, e, "Asha", "9000000001")
	snap := e.Snapshot()
	assert.Equal(t, model.TierMember, findUser(t, snap, asha.ID).CurrentTier)
	assert.Equal(t, int64(0), ownWallet(t, snap, asha.ID).Balance)

	res := earn(t, e, asha.ID, 15000)
	assert.Equal(t, "Processed ₹15000. Earned 750 pts.", res.Message)
	assert.Equal(t, model.TierGold, findUser(t, res.Snapshot, asha.ID).CurrentTier)
	assert.Equal(t, int64(750), res.Snapshot.Transactions[0].PointsEarned)
	assert.Equal(t, int64(750), ownWallet(t, res.Snapshot, asha.ID).Balance)
	require.NotNil(t, res.TierChange)
	assert.Equal(t, model.TierMember, res.TierChange.From)
	assert.Equal(t, model.TierGold, res.TierChange.To)

	_, err := e.ProcessTransaction(asha.ID, 100, model.CategoryGeneral, model.TransactionRedeem)
	require.ErrorIs(t, err, ErrRedeemNotCosmetic)
	assert.Contains(t, err.Error(), "cosmetic treatments")
	assert.Equal(t, int64(750), ownWallet(t, e.Snapshot(), asha.ID).Balance)

	res, err = e.ProcessTransaction(asha.ID, 100, model.CategoryCosmetic, model.TransactionRedeem)
	require.NoError(t, err)
	assert.Equal(t, "Redeemed 100 pts successfully.", res.Message)
	assert.Equal(t, int64(650), ownWallet(t, res.Snapshot, asha.ID).Balance)
	assert.Equal(t, int64(-100), res.Snapshot.Transactions[0].PointsEarned)
	assert.Equal(t, 0.0, res.Snapshot.Transactions[0].AmountPaid)

	ravi := register(t, e, "Ravi Kumar", "9000000002")
	res = earn(t, e, ravi.ID, 10000)
	assert.Equal(t, model.TierMember, findUser(t, res.Snapshot, ravi.ID).CurrentTier)
	raviWallet := ownWallet(t, res.Snapshot, ravi.ID)
	require.Equal(t, int64(200), raviWallet.Balance)

	before := totalPoints(e.Snapshot())

	res, err = e.LinkFamilyMember(asha.ID, "9000000002")
	require.NoError(t, err)
	snap = res.Snapshot

	ashaWallet := ownWallet(t, snap, asha.ID)
	assert.Equal(t, int64(850), ashaWallet.Balance)
	assert.Equal(t, int64(0), ownWallet(t, snap, ravi.ID).Balance)
	assert.Equal(t, before, totalPoints(snap))
	assert.Equal(t, 25000.0, findUser(t, snap, asha.ID).LifetimeSpend)

	for _, tx := range snap.Transactions {
		assert.NotEqual(t, raviWallet.ID, tx.WalletID)
	}
	assert.Equal(t, 1, res.Migrated)
	assert.Equal(t, int64(200), res.Transferred)
}

func TestTierForSpend(t *testing.T) {
	tests := []struct {
		name  string
		spend float64
		want  model.Tier
	}{
		{name: "zero", spend: 0, want: model.TierMember},
		{name: "exactly gold threshold", spend: 10000, want: model.TierMember},
		{name: "one paisa over gold", spend: 10000.01, want: model.TierGold},
		{name: "one rupee over gold", spend: 10001, want: model.TierGold},
		{name: "exactly platinum threshold", spend: 50000, want: model.TierGold},
		{name: "over platinum", spend: 50001, want: model.TierPlatinum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TierForSpend(tt.spend))
		})
	}
}

func TestPointsFor(t *testing.T) {
	tests := []struct {
		name   string
		amount float64
		tier   model.Tier
		want   int64
	}{
		{name: "gold", amount: 15000, tier: model.TierGold, want: 750},
		{name: "member truncates", amount: 99.99, tier: model.TierMember, want: 1},
		{name: "member below one point", amount: 49, tier: model.TierMember, want: 0},
		{name: "platinum", amount: 1234.56, tier: model.TierPlatinum, want: 98},
		{name: "float edge", amount: 1100, tier: model.TierGold, want: 55},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PointsFor(tt.amount, tt.tier))
		})
	}
}

func TestProcessTransaction_CrossingThresholdUsesNewRate(t *testing.T) {
	e := newTestEngine(t, model.Snapshot{})
	u := register(t, e, "Meera Nair", "9000000010")

	earn(t, e, u.ID, 9000)
	res := earn(t, e, u.ID, 2000)

	assert.Equal(t, model.TierGold, findUser(t, res.Snapshot, u.ID).CurrentTier)
	assert.Equal(t, int64(100), res.Transaction.PointsEarned)
	assert.Equal(t, int64(180+100), ownWallet(t, res.Snapshot, u.ID).Balance)
}

func TestProcessTransaction_RecordShape(t *testing.T) {
	e := newTestEngine(t, model.Snapshot{})
	u := register(t, e, "Meera Nair", "9000000010")

	res, err := e.ProcessTransaction(u.ID, 500, model.CategoryHygiene, model.TransactionEarn)
	require.NoError(t, err)

	tx := res.Snapshot.Transactions[0]
	assert.Equal(t, ownWallet(t, res.Snapshot, u.ID).ID, tx.WalletID)
	assert.Equal(t, 500.0, tx.AmountPaid)
	assert.Equal(t, int64(10), tx.PointsEarned)
	assert.Equal(t, model.CategoryHygiene, tx.Category)
	assert.Equal(t, model.TransactionEarn, tx.Type)
	assert.Equal(t, testNow, tx.Date)
	assert.Equal(t, "HYGIENE - Treatment", tx.Description)
	assert.Equal(t, testNow, ownWallet(t, res.Snapshot, u.ID).LastTransactionAt)

	res, err = e.ProcessTransaction(u.ID, 5, model.CategoryCosmetic, model.TransactionRedeem)
	require.NoError(t, err)
	assert.Equal(t, "COSMETIC - Redemption", res.Snapshot.Transactions[0].Description)
	assert.Len(t, res.Snapshot.Transactions, 2)
	assert.Equal(t, model.TransactionRedeem, res.Snapshot.Transactions[0].Type)
	assert.Equal(t, model.TransactionEarn, res.Snapshot.Transactions[1].Type)
}

func TestProcessTransaction_Rejections(t *testing.T) {
	e := newTestEngine(t, DemoSnapshot())

	tests := []struct {
		name     string
		userID   string
		amount   float64
		category model.Category
		txType   model.TransactionType
		wantErr  error
	}{
		{name: "unknown user", userID: "nobody", amount: 100, category: model.CategoryGeneral, txType: model.TransactionEarn, wantErr: ErrUserNotFound},
		{name: "user without wallet", userID: "doc-1", amount: 100, category: model.CategoryGeneral, txType: model.TransactionEarn, wantErr: ErrWalletNotFound},
		{name: "negative amount", userID: "user-1", amount: -5, category: model.CategoryGeneral, txType: model.TransactionEarn, wantErr: ErrInvalidAmount},
		{name: "zero amount", userID: "user-1", amount: 0, category: model.CategoryGeneral, txType: model.TransactionEarn, wantErr: ErrInvalidAmount},
		{name: "NaN amount", userID: "user-1", amount: math.NaN(), category: model.CategoryGeneral, txType: model.TransactionEarn, wantErr: ErrInvalidAmount},
		{name: "infinite amount", userID: "user-1", amount: math.Inf(1), category: model.CategoryGeneral, txType: model.TransactionEarn, wantErr: ErrInvalidAmount},
		{name: "sub-paisa amount", userID: "user-1", amount: 10.001, category: model.CategoryGeneral, txType: model.TransactionEarn, wantErr: ErrInvalidAmount},
		{name: "amount above limit", userID: "user-1", amount: 1.2e20, category: model.CategoryGeneral, txType: model.TransactionEarn, wantErr: ErrInvalidAmount},
		{name: "amount far above limit", userID: "user-1", amount: 5e20, category: model.CategoryGeneral, txType: model.TransactionEarn, wantErr: ErrInvalidAmount},
		{name: "just above max amount", userID: "user-1", amount: MaxAmount + 0.01, category: model.CategoryGeneral, txType: model.TransactionEarn, wantErr: ErrInvalidAmount},
		{name: "fractional redemption", userID: "user-1", amount: 10.5, category: model.CategoryCosmetic, txType: model.TransactionRedeem, wantErr: ErrInvalidAmount},
		{name: "unknown category", userID: "user-1", amount: 100, category: "SURGERY", txType: model.TransactionEarn, wantErr: ErrInvalidCategory},
		{name: "unknown type", userID: "user-1", amount: 100, category: model.CategoryGeneral, txType: "REFUND", wantErr: ErrInvalidType},
		{name: "redeem general", userID: "user-1", amount: 100, category: model.CategoryGeneral, txType: model.TransactionRedeem, wantErr: ErrRedeemNotCosmetic},
		{name: "redeem hygiene", userID: "user-2", amount: 100, category: model.CategoryHygiene, txType: model.TransactionRedeem, wantErr: ErrRedeemNotCosmetic},
		{name: "redeem above balance", userID: "user-2", amount: 2401, category: model.CategoryCosmetic, txType: model.TransactionRedeem, wantErr: ErrInsufficientPoints},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := e.Snapshot()

			res, err := e.ProcessTransaction(tt.userID, tt.amount, tt.category, tt.txType)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, res)
			assert.True(t, IsRejection(err))
			assert.Equal(t, before, e.Snapshot())
		})
	}
}

func TestProcessTransaction_MemberRoutesToHead(t *testing.T) {
	e := newTestEngine(t, DemoSnapshot())

	res, err := e.ProcessTransaction("user-2", 10000, model.CategoryCosmetic, model.TransactionEarn)
	require.NoError(t, err)

	head := findUser(t, res.Snapshot, "user-1")
	member := findUser(t, res.Snapshot, "user-2")

	assert.Equal(t, 52000.0, head.LifetimeSpend)
	assert.Equal(t, model.TierPlatinum, head.CurrentTier)
	assert.Equal(t, 15000.0, member.LifetimeSpend)
	assert.Equal(t, model.TierMember, member.CurrentTier)

	// 10000 × 0.08 по новому уровню главы.
	assert.Equal(t, int64(800), res.Transaction.PointsEarned)
	assert.Equal(t, "wallet-1", res.Transaction.WalletID)
	assert.Equal(t, int64(3200), ownWallet(t, res.Snapshot, "user-1").Balance)

	res, err = e.ProcessTransaction("user-2", 3200, model.CategoryCosmetic, model.TransactionRedeem)
	require.NoError(t, err)
	assert.Equal(t, int64(0), ownWallet(t, res.Snapshot, "user-1").Balance)
	assert.Equal(t, 52000.0, findUser(t, res.Snapshot, "user-1").LifetimeSpend)
}

func TestProcessTransaction_MissingFamilyHead(t *testing.T) {
	snap := DemoSnapshot()
	snap.FamilyGroups[0].HeadUserID = "ghost"
	e := newTestEngine(t, snap)

	_, err := e.ProcessTransaction("user-2", 100, model.CategoryGeneral, model.TransactionEarn)
	require.ErrorIs(t, err, ErrFamilyHeadNotFound)
	assert.True(t, IsNotFound(err))
}

func TestTierMonotonicity(t *testing.T) {
	e := newTestEngine(t, model.Snapshot{})
	head := register(t, e, "Kiran Pillai", "9000000020")
	member := register(t, e, "Lakshmi Pillai", "9000000021")

	earn(t, e, member.ID, 4000)

	prevSpend := 0.0
	prevTier := model.TierMember
	check := func(snap model.Snapshot) {
		u := findUser(t, snap, head.ID)
		assert.GreaterOrEqual(t, u.LifetimeSpend, prevSpend)
		assert.GreaterOrEqual(t, tierRank(u.CurrentTier), tierRank(prevTier))
		prevSpend, prevTier = u.LifetimeSpend, u.CurrentTier
	}

	for _, amount := range []float64{3000, 2500, 7000} {
		check(earn(t, e, head.ID, amount).Snapshot)
	}

	res, err := e.LinkFamilyMember(head.ID, member.Mobile)
	require.NoError(t, err)
	check(res.Snapshot)

	for _, amount := range []float64{20000, 15000.5, 1} {
		check(earn(t, e, member.ID, amount).Snapshot)
	}

	res, err = e.ProcessTransaction(member.ID, 50, model.CategoryCosmetic, model.TransactionRedeem)
	require.NoError(t, err)
	check(res.Snapshot)

	assert.Equal(t, model.TierPlatinum, prevTier)
}

func TestRegisterPatient(t *testing.T) {
	e := newTestEngine(t, DemoSnapshot())

	res, err := e.RegisterPatient("  Devika Rao ", " 9000000030 ")
	require.NoError(t, err)
	assert.Equal(t, "Patient registered successfully.", res.Message)

	u := *res.User
	assert.Equal(t, "Devika Rao", u.Name)
	assert.Equal(t, "9000000030", u.Mobile)
	assert.Equal(t, model.RolePatient, u.Role)
	assert.Equal(t, model.TierMember, u.CurrentTier)
	assert.Zero(t, u.LifetimeSpend)
	assert.Empty(t, u.FamilyGroupID)
	assert.Equal(t, testNow, u.JoinedAt)

	w := ownWallet(t, res.Snapshot, u.ID)
	assert.Zero(t, w.Balance)
	assert.Len(t, res.Snapshot.Users, 5)
	assert.Len(t, res.Snapshot.Wallets, 2)

	before := e.Snapshot()

	_, err = e.RegisterPatient("Someone Else", "9000000030")
	require.ErrorIs(t, err, ErrMobileExists)

	_, err = e.RegisterPatient("", "9000000031")
	require.ErrorIs(t, err, ErrInvalidPatient)

	_, err = e.RegisterPatient("Nobody", "   ")
	require.ErrorIs(t, err, ErrInvalidPatient)

	assert.Equal(t, before, e.Snapshot())
}

func TestDashboardStats(t *testing.T) {
	e := newTestEngine(t, model.Snapshot{
		Users: []model.User{
			{ID: "a", Mobile: "1", Role: model.RolePatient, LifetimeSpend: 9500, CurrentTier: model.TierMember},
			{ID: "b", Mobile: "2", Role: model.RolePatient, LifetimeSpend: 45000, CurrentTier: model.TierGold},
			{ID: "c", Mobile: "3", Role: model.RolePatient, LifetimeSpend: 49999, CurrentTier: model.TierPlatinum},
			{ID: "d", Mobile: "4", Role: model.RolePatient, LifetimeSpend: 10000, CurrentTier: model.TierMember},
			{ID: "e", Mobile: "5", Role: model.RolePatient, LifetimeSpend: 8999, CurrentTier: model.TierMember},
			{ID: "f", Mobile: "6", Role: model.RolePatient, LifetimeSpend: 44999.99, CurrentTier: model.TierGold},
		},
		Wallets: []model.Wallet{
			{ID: "w1", UserID: "a", Balance: 100},
			{ID: "w2", UserID: "b", Balance: 250},
			{ID: "w3", UserID: "c", Balance: 0},
		},
		Transactions: []model.Transaction{
			{ID: "t3", WalletID: "w2", AmountPaid: 0, PointsEarned: -50, Type: model.TransactionRedeem},
			{ID: "t2", WalletID: "w2", AmountPaid: 1000.25, PointsEarned: 50, Type: model.TransactionEarn},
			{ID: "t1", WalletID: "w1", AmountPaid: 5000.5, PointsEarned: 100, Type: model.TransactionEarn},
		},
	})

	stats := e.DashboardStats()
	assert.Equal(t, int64(350), stats.TotalLiability)
	assert.Equal(t, 6000.75, stats.TotalRevenue)
	// a: 500 до GOLD, b: ровно 5000 до PLATINUM. c платиновый, d уже на пороге, e и f слишком далеко.
	assert.Equal(t, 2, stats.UpgradingSoon)
}

func TestSnapshotIsDefensiveCopy(t *testing.T) {
	e := newTestEngine(t, DemoSnapshot())

	snap := e.Snapshot()
	snap.Wallets[0].Balance = 1_000_000
	snap.Users[0].Name = "Mallory"
	snap.Transactions = append(snap.Transactions, model.Transaction{ID: "forged"})

	fresh := e.Snapshot()
	assert.Equal(t, int64(2400), fresh.Wallets[0].Balance)
	assert.Equal(t, "Rohan Menon", fresh.Users[0].Name)
	assert.Len(t, fresh.Transactions, 2)
}

func TestNewCopiesInput(t *testing.T) {
	snap := DemoSnapshot()
	e := newTestEngine(t, snap)

	earn(t, e, "user-1", 1000)

	assert.Equal(t, int64(2400), snap.Wallets[0].Balance)
	assert.Len(t, snap.Transactions, 2)
}

func TestProcessTransaction_LedgerLimits(t *testing.T) {
	t.Run("max amount is accepted", func(t *testing.T) {
		e := newTestEngine(t, model.Snapshot{})
		u := register(t, e, "Asha Rao", "9000000001")

		res := earn(t, e, u.ID, MaxAmount)
		assert.Equal(t, int64(8e10), res.Transaction.PointsEarned)
		assert.Equal(t, int64(8e10), ownWallet(t, res.Snapshot, u.ID).Balance)
	})

	t.Run("balance overflow", func(t *testing.T) {
		snap := DemoSnapshot()
		snap.Wallets[0].Balance = math.MaxInt64 - 10
		e := newTestEngine(t, snap)
		before := e.Snapshot()

		_, err := e.ProcessTransaction("user-1", 1000, model.CategoryGeneral, model.TransactionEarn)
		require.ErrorIs(t, err, ErrLimitExceeded)
		assert.True(t, IsRejection(err))
		assert.Equal(t, before, e.Snapshot())
	})

	t.Run("lifetime spend overflow", func(t *testing.T) {
		snap := DemoSnapshot()
		snap.Users[0].LifetimeSpend = MaxLifetimeSpend - 100
		e := newTestEngine(t, snap)
		before := e.Snapshot()

		_, err := e.ProcessTransaction("user-2", 1000, model.CategoryGeneral, model.TransactionEarn)
		require.ErrorIs(t, err, ErrLimitExceeded)
		assert.Equal(t, before, e.Snapshot())
	})
}

func TestLinkFamilyMember_LedgerLimits(t *testing.T) {
	e := newTestEngine(t, model.Snapshot{})
	head := register(t, e, "Ravi Iyer", "9000000001")
	member := register(t, e, "Meera Iyer", "9000000002")

	snap := e.Snapshot()
	for i := range snap.Wallets {
		snap.Wallets[i].Balance = math.MaxInt64/2 + 1
	}

	e = newTestEngine(t, snap)
	_, err := e.LinkFamilyMember(head.ID, member.Mobile)
	require.ErrorIs(t, err, ErrLimitExceeded)
	assert.Equal(t, snap, e.Snapshot())
	assert.Empty(t, e.Snapshot().FamilyGroups)
}
