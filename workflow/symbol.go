package workflow

import (
	"fmt"
	"strings"

	"stock-council/models"
)

// SymbolErrorKind classifies why a symbol was rejected.
type SymbolErrorKind string

const (
	SymbolEmpty                  SymbolErrorKind = "empty"
	SymbolMalformedAfterPrefix   SymbolErrorKind = "malformed_after_prefix"
	SymbolWrongLength            SymbolErrorKind = "wrong_length"
	SymbolDisallowedLeadingDigit SymbolErrorKind = "disallowed_leading_digit"
)

// SymbolError describes a rejected stock symbol.
type SymbolError struct {
	Kind    SymbolErrorKind
	Symbol  string
	Message string
}

func (e *SymbolError) Error() string {
	return e.Message
}

const codeLength = 6

// allowedLeadingDigits are the first digits of Shanghai (6) and Shenzhen (0, 3) codes.
const allowedLeadingDigits = "036"

// ValidateSymbol checks symbol against the A-share grammar and returns its
// normalized form: lower-case with an explicit market prefix.
func ValidateSymbol(symbol string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(symbol))
	if s == "" {
		return "", &SymbolError{Kind: SymbolEmpty, Symbol: symbol, Message: "stock symbol is required"}
	}

	if market, code := models.SplitSymbol(s); market != "" {
		if !isDigits(code, codeLength) {
			return "", &SymbolError{
				Kind:    SymbolMalformedAfterPrefix,
				Symbol:  s,
				Message: fmt.Sprintf("invalid symbol %q: expected 6 digits after market prefix %q", s, market),
			}
		}
		return s, nil
	}

	if !isDigits(s, codeLength) {
		return "", &SymbolError{
			Kind:    SymbolWrongLength,
			Symbol:  s,
			Message: fmt.Sprintf("invalid symbol %q: stock code must be exactly 6 digits", s),
		}
	}
	if !strings.ContainsRune(allowedLeadingDigits, rune(s[0])) {
		return "", &SymbolError{
			Kind:    SymbolDisallowedLeadingDigit,
			Symbol:  s,
			Message: fmt.Sprintf("invalid symbol %q: stock code must start with 0, 3 or 6", s),
		}
	}

	if s[0] == '6' {
		return string(models.MarketShanghai) + s, nil
	}
	return string(models.MarketShenzhen) + s, nil
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
