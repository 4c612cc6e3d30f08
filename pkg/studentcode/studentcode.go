// Package studentcode derives and verifies enrollment codes from a DNI.
//
// A code is eleven characters: the fixed prefix "20", the eight DNI digits
// and one check character. The check character is a weighted modulo-11
// checksum over the DNI digits, so a corrupted or forged code is detectable
// without a database lookup. Because the DNI is embedded verbatim, distinct
// DNIs always produce distinct codes.
package studentcode

import (
	"errors"
	"strings"
)

// Prefix identifies enrollment codes issued by this platform.
const Prefix = "20"

// Length is the normalized code length: prefix + 8 DNI digits + check char.
const Length = 11

// ErrInvalidDNI reports a DNI that is not exactly eight ASCII digits.
var ErrInvalidDNI = errors.New("studentcode: dni must be exactly 8 digits")

// mod-11 weights applied to the DNI digits, most significant first.
var weights = [8]int{3, 2, 7, 6, 5, 4, 3, 2}

// ValidDNI reports whether dni is exactly eight ASCII digits.
func ValidDNI(dni string) bool {
	if len(dni) != 8 {
		return false
	}
	for _, r := range dni {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// CheckChar computes the check character for a DNI.
func CheckChar(dni string) (byte, error) {
	if !ValidDNI(dni) {
		return 0, ErrInvalidDNI
	}
	sum := 0
	for i := 0; i < len(dni); i++ {
		sum += int(dni[i]-'0') * weights[i]
	}
	rest := 11 - (sum % 11)
	switch rest {
	case 11:
		return '0', nil
	case 10:
		return 'K', nil
	default:
		return byte('0' + rest), nil
	}
}

// Generate derives the enrollment code for a DNI. It is deterministic:
// the same DNI always yields the same code.
func Generate(dni string) (string, error) {
	check, err := CheckChar(dni)
	if err != nil {
		return "", err
	}
	return Prefix + dni + string(check), nil
}

// Normalize strips presentation separators and uppercases the code.
func Normalize(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "-", "")
	code = strings.ReplaceAll(code, " ", "")
	return code
}

// Format renders a normalized code in its dashed display form,
// e.g. "20-45678912-X". Codes of unexpected length pass through unchanged.
func Format(code string) string {
	code = Normalize(code)
	if len(code) != Length {
		return code
	}
	return code[:2] + "-" + code[2:10] + "-" + code[10:]
}

// DNI extracts the embedded DNI from a normalized code. It does not
// verify the check character; use CheckChar for tamper detection.
func DNI(code string) (string, bool) {
	code = Normalize(code)
	if len(code) != Length || !strings.HasPrefix(code, Prefix) {
		return "", false
	}
	dni := code[2:10]
	if !ValidDNI(dni) {
		return "", false
	}
	return dni, true
}
