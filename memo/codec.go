// Package memo encodes and decodes the short order identifier embedded
// in the on-chain transaction memo. The memo ties a payment back to an
// order without any server-side ledger, so it must be collision
// resistant across devices while fitting the downstream memo field's
// hard 32-byte budget.
package memo

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// MaxBytes is the hard protocol limit on memo length imposed by the
// downstream memo field.
const MaxBytes = 32

// DefaultFingerprintDigits is the width of the numeric fingerprint
// suffix. Collisions are a known, bounded risk: there is no centralized
// uniqueness check, only 10^digits of fingerprint space.
const DefaultFingerprintDigits = 6

// Codec produces and parses memos. The zero value is not usable; use
// New.
type Codec struct {
	digits   int
	maxBytes int
	now      func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithFingerprintDigits sets the numeric fingerprint width. The
// deployed variants used 6 (long salted base) and 5 (acronym-truncated
// base); 6 is canonical here.
func WithFingerprintDigits(digits int) Option {
	return func(c *Codec) {
		if digits > 0 {
			c.digits = digits
		}
	}
}

// WithMaxBytes overrides the memo byte budget. Budgets above MaxBytes
// are clamped.
func WithMaxBytes(n int) Option {
	return func(c *Codec) {
		if n > 0 && n <= MaxBytes {
			c.maxBytes = n
		}
	}
}

// WithClock overrides the time source for the fingerprint base. Used in
// tests to make encoding deterministic.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// New creates a memo codec.
func New(opts ...Option) *Codec {
	c := &Codec{
		digits:   DefaultFingerprintDigits,
		maxBytes: MaxBytes,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encode derives a memo from a product name and a salt. The output is
// ASCII alphanumeric plus underscore and never exceeds the byte budget.
//
// A numeric fingerprint is rolled from the cleaned name, the UTC time
// down to seconds and the salt; as much of the cleaned name as fits is
// prepended, falling back to an acronym of its words when the full name
// would overflow, then to plain truncation. An empty cleaned name
// yields the fingerprint alone.
func (c *Codec) Encode(productName, salt string) string {
	cleaned := Clean(productName)

	base := cleaned + "_" + c.now().UTC().Format("20060102150405") + "_" + salt
	fingerprint := fingerprintOf(base, c.digits)

	prefix := c.fitPrefix(cleaned)
	if prefix == "" {
		return fingerprint
	}
	return prefix + "_" + fingerprint
}

// Decode extracts the product-name prefix from a memo: the leading
// segment before the final underscore-delimited numeric suffix. Memos
// without such a suffix are returned unchanged.
func Decode(memo string) string {
	idx := strings.LastIndex(memo, "_")
	if idx <= 0 {
		return memo
	}
	suffix := memo[idx+1:]
	if suffix == "" || !allDigits(suffix) {
		return memo
	}
	return memo[:idx]
}

// NewSalt returns a short random salt for Encode.
func NewSalt() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

// Clean maps a product name onto the memo alphabet: whitespace runs
// become single underscores and every other non-alphanumeric byte is
// dropped.
func Clean(name string) string {
	joined := strings.Join(strings.Fields(name), "_")

	var b strings.Builder
	for _, r := range joined {
		if r == '_' || (r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))) {
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "_")
}

// fitPrefix chooses the longest usable name prefix within the budget
// left after the fingerprint and its separator.
func (c *Codec) fitPrefix(cleaned string) string {
	budget := c.maxBytes - c.digits - 1
	if cleaned == "" || budget <= 0 {
		return ""
	}
	if len(cleaned) <= budget {
		return cleaned
	}
	if acr := acronym(cleaned); acr != "" && len(acr) <= budget {
		return acr
	}
	return cleaned[:budget]
}

// acronym takes the first byte of each underscore-separated word.
func acronym(cleaned string) string {
	var b strings.Builder
	for _, word := range strings.Split(cleaned, "_") {
		if word != "" {
			b.WriteByte(word[0])
		}
	}
	if b.Len() < 2 {
		return ""
	}
	return b.String()
}

// fingerprintOf rolls a djb2 hash (h = h*33 + c) over the base and
// reduces it to the requested digit width, zero padded.
func fingerprintOf(base string, digits int) string {
	var h uint64 = 5381
	for i := 0; i < len(base); i++ {
		h = h*33 + uint64(base[i])
	}

	var mod uint64 = 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	s := strings.Repeat("0", digits) + strconv.FormatUint(h%mod, 10)
	return s[len(s)-digits:]
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
