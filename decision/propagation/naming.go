package propagation

import (
	"strings"
	"unicode"
)

// Constraints are the platform tag-key limits the normalizer validates
// against. They are injected so the core never hard-codes AWS limits.
type Constraints struct {
	MaxKeyLength int
	Allowed      func(r rune) bool
}

// DefaultConstraints returns the AWS tag-key limits: 128 characters,
// letters, digits and '-'.
func DefaultConstraints() Constraints {
	return Constraints{
		MaxKeyLength: 128,
		Allowed: func(r rune) bool {
			return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-'
		},
	}
}

// KeyNormalizer turns display names into tag-safe keys.
type KeyNormalizer struct {
	constraints Constraints
}

// NewKeyNormalizer creates a normalizer with the given constraints.
func NewKeyNormalizer(c Constraints) *KeyNormalizer {
	if c.MaxKeyLength <= 0 {
		c.MaxKeyLength = DefaultConstraints().MaxKeyLength
	}
	if c.Allowed == nil {
		c.Allowed = DefaultConstraints().Allowed
	}
	return &KeyNormalizer{constraints: c}
}

// Normalize maps a raw display name to a canonical tag key. It trims
// surrounding whitespace, collapses runs of whitespace to a single '-',
// replaces disallowed runes with '-', and truncates to the key length
// limit. Truncation is the only lossy step. Returns ErrNoName when the
// trimmed input is empty.
func (n *KeyNormalizer) Normalize(raw string) (string, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return "", ErrNoName
	}
	joined := strings.Join(fields, "-")

	var b strings.Builder
	b.Grow(len(joined))
	for _, r := range joined {
		if n.constraints.Allowed(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('-')
		}
	}

	key := b.String()
	if runes := []rune(key); len(runes) > n.constraints.MaxKeyLength {
		key = string(runes[:n.constraints.MaxKeyLength])
	}
	return key, nil
}
