// Package credential defines the records held by the skill-credential registry:
// accounts, roles, courses, certificates, delegation grants and the
// notifications emitted when any of them change.
package credential

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

var accountPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// Account identifies a participant. It is a 20-byte address held in
// canonical lowercase hex with a 0x prefix.
type Account string

// ParseAccount validates s and returns its canonical form. Mixed-case input
// must carry a valid EIP-55 checksum.
func ParseAccount(s string) (Account, error) {
	s = strings.TrimSpace(s)
	if !accountPattern.MatchString(s) {
		return "", fmt.Errorf("malformed account %q: want 0x followed by 40 hex digits", s)
	}
	body := s[2:]
	lower := strings.ToLower(body)
	upper := strings.ToUpper(body)
	if body != lower && body != upper {
		if checksum(lower) != body {
			return "", fmt.Errorf("account %q fails checksum", s)
		}
	}
	return Account("0x" + lower), nil
}

// MustParseAccount is ParseAccount that panics on error. Intended for tests
// and constants.
func MustParseAccount(s string) Account {
	a, err := ParseAccount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Validate reports whether a is in canonical form.
func (a Account) Validate() error {
	s := string(a)
	if !accountPattern.MatchString(s) || s != strings.ToLower(s) {
		return fmt.Errorf("malformed account %q", s)
	}
	return nil
}

func (a Account) IsZero() bool { return a == "" }

func (a Account) String() string { return string(a) }

// Checksum renders a in EIP-55 mixed-case form.
func (a Account) Checksum() string {
	if a.Validate() != nil {
		return string(a)
	}
	return "0x" + checksum(string(a)[2:])
}

// Short returns an abbreviated form for logs and tables.
func (a Account) Short() string {
	s := string(a)
	if len(s) < 12 {
		return s
	}
	return s[:6] + "..." + s[len(s)-4:]
}

// UnmarshalJSON stores the canonical form of any valid spelling. Anything
// else is kept verbatim so Validate can reject it where the caller can
// report INVALID_INPUT.
func (a *Account) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if parsed, err := ParseAccount(s); err == nil {
		*a = parsed
		return nil
	}
	*a = Account(s)
	return nil
}

func checksum(lowerHex string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lowerHex))
	digest := hex.EncodeToString(h.Sum(nil))

	out := []byte(lowerHex)
	for i, c := range out {
		if c >= 'a' && c <= 'f' && digest[i] >= '8' {
			out[i] = c - 'a' + 'A'
		}
	}
	return string(out)
}
