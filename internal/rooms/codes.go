package rooms

import (
	"crypto/rand"
	"math/big"
)

// Room codes are short join tokens typed by hand, so the alphabet drops
// characters that read ambiguously (0/O, 1/I/L).
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const codeLength = 5

// GenerateCode draws a random room code from crypto/rand.
func GenerateCode() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	var code [codeLength]byte
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code[:]), nil
}
