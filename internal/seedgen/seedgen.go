package seedgen

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Seeds are 1..99999999, matching the game's seed entry field.
const maxSeed = 100000000

type Generator struct{}

func New() Generator {
	return Generator{}
}

// NewSeed draws a fresh random seed.
func (Generator) NewSeed() (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(maxSeed-1))
	if err != nil {
		return 0, fmt.Errorf("generating seed: %w", err)
	}
	return n.Int64() + 1, nil
}
