// Package model содержит доменные сущности клинической программы лояльности.
package model

import "time"

// Role описывает роль пользователя в клинике.
type Role string

const (
	RolePatient    Role = "PATIENT"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

// Tier описывает уровень статуса в программе лояльности.
type Tier string

const (
	TierMember   Tier = "MEMBER"
	TierGold     Tier = "GOLD"
	TierPlatinum Tier = "PLATINUM"
)

// Category описывает категорию лечения, к которой относится транзакция.
type Category string

const (
	CategoryGeneral  Category = "GENERAL"
	CategoryCosmetic Category = "COSMETIC"
	CategoryHygiene  Category = "HYGIENE"
)

// Valid сообщает, является ли категория известной.
func (c Category) Valid() bool {
	switch c {
	case CategoryGeneral, CategoryCosmetic, CategoryHygiene:
		return true
	}
	return false
}

// TransactionType описывает направление движения баллов.
type TransactionType string

const (
	TransactionEarn   TransactionType = "EARN"
	TransactionRedeem TransactionType = "REDEEM"
)

// Valid сообщает, является ли тип транзакции известным.
func (t TransactionType) Valid() bool {
	return t == TransactionEarn || t == TransactionRedeem
}

// User представляет пациента или сотрудника клиники.
type User struct {
	ID            string    `json:"id"`
	Mobile        string    `json:"mobile"`
	Name          string    `json:"name"`
	Role          Role      `json:"role"`
	FamilyGroupID string    `json:"familyGroupId,omitempty"`
	LifetimeSpend float64   `json:"lifetimeSpend"`
	CurrentTier   Tier      `json:"currentTier"`
	JoinedAt      time.Time `json:"joinedAt"`
}

// Wallet хранит баланс баллов. UserID указывает на фактического владельца кошелька.
type Wallet struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	Balance           int64     `json:"balance"`
	LastTransactionAt time.Time `json:"lastTransactionAt"`
}

// Transaction описывает одну запись журнала начислений и списаний.
// PointsEarned положительно для начислений и отрицательно для списаний.
type Transaction struct {
	ID           string          `json:"id"`
	WalletID     string          `json:"walletId"`
	AmountPaid   float64         `json:"amountPaid"`
	PointsEarned int64           `json:"pointsEarned"`
	Category     Category        `json:"category"`
	Type         TransactionType `json:"type"`
	Date         time.Time       `json:"date"`
	Description  string          `json:"description"`
}

// FamilyGroup объединяет пациентов вокруг кошелька главы семьи.
type FamilyGroup struct {
	ID         string `json:"id"`
	HeadUserID string `json:"headUserId"`
	FamilyName string `json:"familyName"`
}

// Snapshot содержит полное состояние журнала. Transactions упорядочены от новых к старым.
type Snapshot struct {
	Users        []User        `json:"users"`
	Wallets      []Wallet      `json:"wallets"`
	Transactions []Transaction `json:"transactions"`
	FamilyGroups []FamilyGroup `json:"familyGroups"`
}

// Clone возвращает независимую копию снимка.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Users:        append(make([]User, 0, len(s.Users)), s.Users...),
		Wallets:      append(make([]Wallet, 0, len(s.Wallets)), s.Wallets...),
		Transactions: append(make([]Transaction, 0, len(s.Transactions)), s.Transactions...),
		FamilyGroups: append(make([]FamilyGroup, 0, len(s.FamilyGroups)), s.FamilyGroups...),
	}
}

// DashboardStats содержит сводные показатели для панели клиники.
type DashboardStats struct {
	TotalLiability int64   `json:"totalLiability"`
	TotalRevenue   float64 `json:"totalRevenue"`
	UpgradingSoon  int     `json:"upgradingSoon"`
}

// TierProgress описывает прогресс главы семьи до следующего уровня.
type TierProgress struct {
	CurrentTier Tier    `json:"currentTier"`
	NextTier    Tier    `json:"nextTier"`
	RewardRate  float64 `json:"rewardRate"`
	Remaining   float64 `json:"remaining"`
	Percent     float64 `json:"percent"`
}

// PatientOverview собирает данные, необходимые экрану пациента.
type PatientOverview struct {
	User          User          `json:"user"`
	Head          User          `json:"head"`
	Wallet        Wallet        `json:"wallet"`
	Family        *FamilyGroup  `json:"family,omitempty"`
	FamilyMembers []User        `json:"familyMembers"`
	Progress      TierProgress  `json:"progress"`
	Transactions  []Transaction `json:"transactions"`
}

// DailyActivity содержит суммы начисленных и списанных баллов за день.
type DailyActivity struct {
	Day      time.Time `json:"day"`
	Earned   int64     `json:"earned"`
	Redeemed int64     `json:"redeemed"`
}
