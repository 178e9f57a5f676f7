package daraja

import (
	"errors"
	"strings"
)

// ErrInvalidPhone is returned for numbers outside the Kenyan mobile plan.
var ErrInvalidPhone = errors.New("invalid phone number format, use 07XXXXXXXX or 2547XXXXXXXX")

// NormalizePhone converts 0XXXXXXXXX, XXXXXXXXX (starting 7 or 1) and
// 254XXXXXXXXX forms into the 254XXXXXXXXX form Daraja expects.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, "254") && isSubscriberPrefix(digits[3]):
		return digits, nil
	case len(digits) == 10 && digits[0] == '0' && isSubscriberPrefix(digits[1]):
		return "254" + digits[1:], nil
	case len(digits) == 9 && isSubscriberPrefix(digits[0]):
		return "254" + digits, nil
	}
	return "", ErrInvalidPhone
}

func isSubscriberPrefix(b byte) bool {
	return b == '7' || b == '1'
}
