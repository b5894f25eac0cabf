// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from strings
// and rendering minor-unit integers for display.
package core

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when no currency code is configured.
const DefaultCurrency = "CNY"

// ParseDecimalToCents converts a decimal string to minor units with half-up rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Only
// strictly positive amounts are accepted.
//
// Examples:
//
//	ParseDecimalToCents("12.34") -> 1234, nil
//	ParseDecimalToCents("12,34") -> 1234, nil
//	ParseDecimalToCents("12.345") -> 1235, nil
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	// decimal accepts exponents; form input never carries them
	if strings.ContainsAny(s, "eE") {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	cents := d.Shift(2).Round(0)
	if !cents.IsPositive() || !cents.IsInteger() {
		return 0, ErrInvalidAmount
	}
	// IntPart silently truncates past int64
	if cents.GreaterThan(decimal.NewFromInt(1<<63 - 1)) {
		return 0, ErrInvalidAmount
	}
	return cents.IntPart(), nil
}

// FormatMinor renders an amount in minor units using the currency's
// symbol and fraction digits, e.g. FormatMinor(1234, "EUR") == "€12.34".
func FormatMinor(amount int64, currency string) string {
	if currency == "" {
		currency = DefaultCurrency
	}
	return money.New(amount, currency).Display()
}
