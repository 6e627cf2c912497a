// Package validation содержит функции валидации входных данных.
package validation

import (
	"strings"
	"unicode"
)

const mobileLength = 10

// NormalizeMobile убирает пробелы, дефисы и префикс страны +91 из номера телефона.
func NormalizeMobile(mobile string) string {
	m := strings.TrimSpace(mobile)
	m = strings.NewReplacer(" ", "", "-", "").Replace(m)
	if strings.HasPrefix(m, "+91") && len(m) == mobileLength+3 {
		m = m[3:]
	}
	return m
}

// IsValidMobile проверяет, что номер состоит из десяти цифр и начинается с 6–9.
func IsValidMobile(mobile string) bool {
	if len(mobile) != mobileLength {
		return false
	}

	for i, ch := range mobile {
		if !unicode.IsDigit(ch) {
			return false
		}
		if i == 0 && ch < '6' {
			return false
		}
	}

	return true
}
