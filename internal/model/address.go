package model

import (
	"net/mail"
	"strings"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// AddressList is an ordered list of recipient addresses. The stored form is
// a comma separated string.
type AddressList []string

// ParseAddressList splits s on commas, trims every entry and drops empty
// ones.
func ParseAddressList(s string) AddressList {
	var list AddressList
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		list = append(list, part)
	}

	return list
}

// First returns the first address in the list, if any.
func (l AddressList) First() fn.Option[string] {
	if len(l) == 0 {
		return fn.None[string]()
	}

	return fn.Some(l[0])
}

// String formats the list in its stored form.
func (l AddressList) String() string {
	return strings.Join(l, ", ")
}

// LooksLikeAddress is the cheap check applied when listing: anything
// without an "@" is a legacy placeholder that needs resolving.
func LooksLikeAddress(s string) bool {
	return strings.Contains(s, "@")
}

// IsValidAddress reports whether s is a single syntactically valid bare
// address.
func IsValidAddress(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 254 {
		return false
	}

	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}

	return addr.Address == s
}
