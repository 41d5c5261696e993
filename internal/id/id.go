package id

import (
	"fmt"
	"strconv"
)

// accountWidth is the minimum number of digits in an account number.
const accountWidth = 4

// FormatAccountNumber returns an account number like "0007".
func FormatAccountNumber(seq int) string {
	return fmt.Sprintf("%0*d", accountWidth, seq)
}

// ParseAccountNumber parses "0007" into 7. Numbers wider than four digits
// are accepted once the store grows past 9999 accounts.
func ParseAccountNumber(number string) (int, error) {
	if len(number) < accountWidth {
		return 0, fmt.Errorf("invalid account number %q: want at least %d digits", number, accountWidth)
	}
	for _, r := range number {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("invalid account number %q: non-digit %q", number, r)
		}
	}
	seq, err := strconv.Atoi(number)
	if err != nil {
		return 0, fmt.Errorf("invalid account number %q: %w", number, err)
	}
	if seq == 0 {
		return 0, fmt.Errorf("invalid account number %q: sequence starts at 1", number)
	}
	return seq, nil
}
