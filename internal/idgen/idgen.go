// Package idgen generates prefixed hash-based entity IDs.
//
// IDs look like "deal-x7k2q" or "clm-9f3ab": a short entity prefix plus a
// base36-encoded content hash. Hashing the creating inputs (rather than a
// counter) keeps IDs stable under replay and safe to mint from concurrent
// writers; the nonce handles the rare collision.
package idgen

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Entity prefixes
const (
	PrefixDeal          = "deal"
	PrefixClaim         = "clm"
	PrefixConflict      = "cfl"
	PrefixOMVersion     = "om"
	PrefixDistribution  = "dst"
	PrefixRecipient     = "rcp"
	PrefixResponse      = "rsp"
	PrefixAuthorization = "auth"
)

// DefaultLength is the number of base36 characters after the prefix.
const DefaultLength = 5

// base36Alphabet is the character set for base36 encoding (0-9, a-z).
const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// EncodeBase36 converts a byte slice to a base36 string of the given length,
// keeping the least significant digits and zero-padding on the left.
func EncodeBase36(data []byte, length int) string {
	num := new(big.Int).SetBytes(data)

	base := big.NewInt(36)
	zero := big.NewInt(0)
	mod := new(big.Int)

	chars := make([]byte, 0, length)
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		chars = append(chars, base36Alphabet[mod.Int64()])
	}

	var result strings.Builder
	for i := len(chars) - 1; i >= 0; i-- {
		result.WriteByte(chars[i])
	}

	str := result.String()
	if len(str) < length {
		str = strings.Repeat("0", length-len(str)) + str
	}
	if len(str) > length {
		str = str[len(str)-length:]
	}
	return str
}

// New creates a prefixed hash ID from the given content parts. The timestamp
// and nonce are mixed in so identical content minted twice (e.g. two claims
// with the same extracted value) still gets distinct IDs.
func New(prefix string, timestamp time.Time, nonce int, parts ...string) string {
	content := strings.Join(parts, "|")
	content = fmt.Sprintf("%s|%d|%d", content, timestamp.UnixNano(), nonce)

	hash := sha256.Sum256([]byte(content))
	// 4 bytes = 32 bits, comfortably more entropy than 5 base36 chars hold.
	return prefix + "-" + EncodeBase36(hash[:4], DefaultLength)
}
