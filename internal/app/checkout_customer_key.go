/**
 * @description
 * customerKey derivation for the payment widget. The provider requires a
 * stable per-user key from a restricted character set to tokenize saved
 * payment methods.
 */
package app

import (
	"fmt"
	"math/rand"
	"strings"
)

const (
	customerKeyMinLen = 2
	customerKeyMaxLen = 64
)

func customerKeyAllowed(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_', r == '=', r == '.', r == '@':
		return true
	}
	return false
}

// DeriveCustomerKey builds the widget customer key from identity, preferring
// the user ID, then email, then phone, falling back to a random anonymous
// key. Disallowed characters become '-' and the result is length-bounded.
func DeriveCustomerKey(id, email, phone string) string {
	source := id
	if source == "" {
		source = email
	}
	if source == "" {
		source = phone
	}
	if source == "" {
		return anonymousCustomerKey()
	}

	var b strings.Builder
	for _, r := range source {
		if customerKeyAllowed(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('-')
		}
	}

	key := b.String()
	if len(key) > customerKeyMaxLen {
		key = key[:customerKeyMaxLen]
	}
	if len(key) < customerKeyMinLen {
		return anonymousCustomerKey()
	}
	return key
}

func anonymousCustomerKey() string {
	return fmt.Sprintf("anon-%d", rand.Int63())
}
