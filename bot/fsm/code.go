package fsm

import (
	"crypto/rand"
	"math/big"
)

// CodeLength is the fixed length of verification codes.
const CodeLength = 10

const codeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomCode returns a random alphanumeric string of length n. It draws
// from crypto/rand so codes are not guessable from earlier ones.
func RandomCode(n int) string {
	out := make([]byte, n)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failing means the platform entropy source is
			// broken; nothing sensible to degrade to.
			panic(err)
		}
		out[i] = codeAlphabet[idx.Int64()]
	}
	return string(out)
}
