package token

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
)

// codeEncoding is unpadded base32; lowercased on output so codes survive
// case-mangling QR scanners and URL bars.
var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

const codeBytes = 16

// NewCode returns a fresh opaque token code with 128 bits of entropy,
// 26 characters long. Codes carry no embedded structure; everything about
// the token lives in its row.
func NewCode() (string, error) {
	buf := make([]byte, codeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token code: %w", err)
	}
	return strings.ToLower(codeEncoding.EncodeToString(buf)), nil
}
