package ledger

import "errors"

// Ошибки бизнес-правил. Текст ошибки является сообщением для пользователя.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrFamilyHeadNotFound = errors.New("family head not found")
	ErrWalletNotFound     = errors.New("wallet not found")
	ErrHeadUserNotFound   = errors.New("head user not found")
	ErrMemberNotFound     = errors.New("member user not found")

	ErrMobileExists    = errors.New("patient with this mobile number already exists")
	ErrSelfLink        = errors.New("cannot link user to themselves")
	ErrAlreadyInFamily = errors.New("user is already part of a family group")

	ErrRedeemNotCosmetic  = errors.New("points can only be redeemed for cosmetic treatments")
	ErrInsufficientPoints = errors.New("insufficient points balance")

	ErrInvalidAmount   = errors.New("amount must be a positive value with at most two decimal places")
	ErrInvalidCategory = errors.New("unknown transaction category")
	ErrInvalidType     = errors.New("unknown transaction type")
	ErrInvalidPatient  = errors.New("patient name and mobile are required")

	ErrLimitExceeded = errors.New("operation exceeds ledger limits")
)

// IsNotFound сообщает, что ошибка вызвана неизвестным идентификатором.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrFamilyHeadNotFound) ||
		errors.Is(err, ErrWalletNotFound) ||
		errors.Is(err, ErrHeadUserNotFound) ||
		errors.Is(err, ErrMemberNotFound)
}

// IsRejection сообщает, что ошибка является ожидаемым отказом бизнес-правила,
// а не сбоем инфраструктуры.
func IsRejection(err error) bool {
	return IsNotFound(err) ||
		errors.Is(err, ErrMobileExists) ||
		errors.Is(err, ErrSelfLink) ||
		errors.Is(err, ErrAlreadyInFamily) ||
		errors.Is(err, ErrRedeemNotCosmetic) ||
		errors.Is(err, ErrInsufficientPoints) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidCategory) ||
		errors.Is(err, ErrInvalidType) ||
		errors.Is(err, ErrInvalidPatient) ||
		errors.Is(err, ErrLimitExceeded)
}
