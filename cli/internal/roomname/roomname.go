// Package roomname generates memorable room ids such as "amber-heron-lantern".
package roomname

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

// ErrExhausted is returned when every attempt produced a taken name.
var ErrExhausted = errors.New("could not find a free room name")

const maxAttempts = 32

var colors = []string{
	"amber", "azure", "coral", "crimson", "ebony", "golden", "indigo", "ivory", "jade", "lilac",
	"mauve", "ochre", "olive", "pearl", "plum", "rose", "ruby", "sage", "scarlet", "silver",
	"teal", "umber", "violet", "copper", "cobalt", "rust", "saffron", "slate", "sand", "mint",
}

var birds = []string{
	"heron", "finch", "wren", "kestrel", "magpie", "plover", "puffin", "raven", "starling", "swift",
	"thrush", "warbler", "egret", "falcon", "gannet", "ibis", "jay", "kite", "lark", "merlin",
	"oriole", "osprey", "petrel", "quail", "rook", "shrike", "tern", "vireo", "curlew", "dunlin",
}

var things = []string{
	"lantern", "anchor", "compass", "harbor", "beacon", "canyon", "meadow", "orchard", "river", "summit",
	"valley", "glacier", "lagoon", "island", "forest", "prairie", "tundra", "delta", "reef", "ridge",
	"harp", "violin", "cello", "drum", "flute", "bell", "kettle", "teapot", "quill", "ribbon",
}

// New returns a random three word room name.
func New() string {
	return strings.Join([]string{pick(colors), pick(birds), pick(things)}, "-")
}

// Free returns a name for which taken reports false.
func Free(taken func(string) bool) (string, error) {
	for range maxAttempts {
		name := New()
		if !taken(name) {
			return name, nil
		}
	}
	return "", ErrExhausted
}

// pick returns a cryptographically random element of words.
func pick(words []string) string {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(words))))
	if err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return words[n.Int64()]
}
