package conversation

import (
	"errors"
	"strings"
)

// ErrInvalidAddress signals an address that is empty or digit-free after
// normalization, or a pair that collapses to a single participant.
var ErrInvalidAddress = errors.New("invalid address")

// routing prefixes some gateways prepend to the raw address.
var routingPrefixes = []string{"whatsapp:", "tel:", "sms:"}

// NormalizeAddress strips provider routing prefixes, provider domain
// suffixes ("@c.us" and friends) and every non-digit character except a
// leading plus sign. Two addresses are considered equal iff their
// normalized forms are equal.
func NormalizeAddress(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	for _, prefix := range routingPrefixes {
		if strings.HasPrefix(s, prefix) {
			s = s[len(prefix):]
			break
		}
	}
	if at := strings.IndexByte(s, '@'); at >= 0 {
		s = s[:at]
	}

	var b strings.Builder
	for i, r := range s {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	normalized := b.String()
	if normalized == "+" {
		return ""
	}
	return normalized
}

// ResolveKey derives the canonical conversation key for two addresses. The
// key is order-independent: ResolveKey(a, b) == ResolveKey(b, a). It is a
// pure function of its inputs.
func ResolveKey(addressA, addressB string) (string, error) {
	a := NormalizeAddress(addressA)
	b := NormalizeAddress(addressB)
	if a == "" || b == "" {
		return "", ErrInvalidAddress
	}
	if a == b {
		return "", ErrInvalidAddress
	}
	if a > b {
		a, b = b, a
	}
	return a + ":" + b, nil
}
