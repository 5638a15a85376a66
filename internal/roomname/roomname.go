// Package roomname generates memorable room names for calls started
// without one.
package roomname

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// Generate returns a name like "sleepy-otter-ramen": an adjective followed
// by two words from different lists. Every result is a valid room name.
func Generate() string {
	pools := [][]string{animals, dishes, things}
	first := randomIndex(len(pools))
	second := (first + 1 + randomIndex(len(pools)-1)) % len(pools)

	return strings.Join([]string{
		pick(adjectives),
		pick(pools[first]),
		pick(pools[second]),
	}, "-")
}

func pick(words []string) string {
	return words[randomIndex(len(words))]
}

// randomIndex returns a cryptographically secure index below max.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic("roomname: random source failed: " + err.Error())
	}
	return int(n.Int64())
}
