package transport

import (
	"fmt"
	"strings"

	"github.com/wasilibs/go-re2"
)

// DefaultBlockedDomains never receive mail.
var DefaultBlockedDomains = []string{"example.com", "example.org", "example.net", "test.com", "localhost", "invalid"}

var addressPattern = re2.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

// AddressValidator checks syntax and the blocklist.
type AddressValidator struct {
	blocked map[string]struct{}
}

// NewAddressValidator builds a validator; nil uses DefaultBlockedDomains.
func NewAddressValidator(blocked []string) *AddressValidator {
	if blocked == nil {
		blocked = DefaultBlockedDomains
	}
	v := &AddressValidator{blocked: make(map[string]struct{}, len(blocked))}
	for _, d := range blocked {
		v.blocked[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	return v
}

// Validate returns an error wrapping ErrInvalidAddress.
func (v *AddressValidator) Validate(addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "localhost" {
		return fmt.Errorf("%q: %w", addr, ErrInvalidAddress)
	}
	at := strings.LastIndexByte(addr, '@')
	if at < 0 {
		return fmt.Errorf("%q: missing @: %w", addr, ErrInvalidAddress)
	}
	domain := strings.ToLower(addr[at+1:])
	if _, ok := v.blocked[domain]; ok {
		return fmt.Errorf("%q: blocked domain %s: %w", addr, domain, ErrInvalidAddress)
	}
	for d := range v.blocked {
		if strings.HasSuffix(domain, "."+d) {
			return fmt.Errorf("%q: blocked domain %s: %w", addr, d, ErrInvalidAddress)
		}
	}
	if strings.Contains(domain, "..") || !addressPattern.MatchString(addr) {
		return fmt.Errorf("%q: malformed: %w", addr, ErrInvalidAddress)
	}
	return nil
}
