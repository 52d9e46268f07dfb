package domain

import "strings"

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeUPC keeps digits, optionally drops the trailing check digit, and strips leading zeros
func NormalizeUPC(upc string, dropCheckDigit bool) string {
	digits := digitsOnly(upc)
	if dropCheckDigit && len(digits) > 0 {
		digits = digits[:len(digits)-1]
	}
	return strings.TrimLeft(digits, "0")
}

// UPCToGTIN13 drops the check digit of a UPC and left-pads it to 13 digits
func UPCToGTIN13(upc string) string {
	digits := digitsOnly(upc)
	if len(digits) > 0 {
		digits = digits[:len(digits)-1]
	}
	if len(digits) >= 13 {
		return digits[len(digits)-13:]
	}
	return strings.Repeat("0", 13-len(digits)) + digits
}

// SameUPC reports whether a reference UPC (with check digit) and a retailer UPC denote the same product.
// Retailers answer either with the full code or with the check digit dropped.
func SameUPC(reference, scraped string) bool {
	s := NormalizeUPC(scraped, false)
	if s == "" {
		return false
	}
	return s == NormalizeUPC(reference, false) || s == NormalizeUPC(reference, true)
}

// PadGTIN13 left-pads a product code a retailer answered with to 13 digits. The code is taken
// as is: GTIN-13 answers already lack the UPC check digit.
func PadGTIN13(code string) string {
	digits := digitsOnly(code)
	if digits == "" {
		return ""
	}
	if len(digits) >= 13 {
		return digits[len(digits)-13:]
	}
	return strings.Repeat("0", 13-len(digits)) + digits
}
