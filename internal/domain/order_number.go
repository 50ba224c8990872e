package domain

import "regexp"

// orderNumberPattern is shared by number generation and webhook parsing; the
// bank echoes the QR description back into the transfer content.
var orderNumberPattern = regexp.MustCompile(`[A-Z]{2,}\d{6,}`)

var orderNumberExact = regexp.MustCompile(`^[A-Z]{2,}\d{6,}$`)

func IsOrderNumber(s string) bool {
	return orderNumberExact.MatchString(s)
}

// FindOrderNumber returns the first order-number token in free text.
func FindOrderNumber(text string) (string, bool) {
	m := orderNumberPattern.FindString(text)
	return m, m != ""
}
