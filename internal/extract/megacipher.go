package extract

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"sync"

	"anistream/internal/media"
)

// megacloudKeysURL serves the rotating MegaCloud secret as {"mega": "..."}.
var megacloudKeysURL = "https://raw.githubusercontent.com/yogesh-hacker/MegacloudKeys/refs/heads/main/keys.json"

// cipherLayers is how many times the source list is wrapped.
const cipherLayers = 3

// The cipher works over printable ASCII; other bytes pass through.
const (
	alphaFirst = 32
	alphaSize  = 95
)

func inAlphabet(b byte) bool {
	return b >= alphaFirst && b < alphaFirst+alphaSize
}

// keyCache holds the fetched MegaCloud secret for the engine's lifetime.
type keyCache struct {
	mu  sync.Mutex
	key string
}

func (c *keyCache) get(ctx context.Context, e *Engine) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.key != "" {
		return c.key, nil
	}

	var keys map[string]string
	if err := e.client.GetJSON(ctx, megacloudKeysURL, nil, &keys); err != nil {
		return "", fmt.Errorf("fetching megacloud keys: %w", err)
	}
	if keys["mega"] == "" {
		return "", fmt.Errorf("megacloud keys: no mega key: %w", media.ErrParse)
	}
	c.key = keys["mega"]
	return c.key, nil
}

// decryptSources unwraps an encrypted getSources payload into its JSON
// source list. The payload is base64 of three cipher layers around a
// 4-digit length prefix and the JSON.
func decryptSources(payload, clientKey, megaKey string) (string, error) {
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(strings.Join(strings.Fields(payload), ""), "="))
	if err != nil {
		return "", fmt.Errorf("megacloud payload: %w", media.ErrPatternNotFound)
	}

	key := deriveKey(megaKey, clientKey)
	for layer := cipherLayers; layer > 0; layer-- {
		raw = unwrapLayer(raw, key+strconv.Itoa(layer))
	}

	if len(raw) < 4 {
		return "", fmt.Errorf("megacloud payload too short: %w", media.ErrPatternNotFound)
	}
	n, err := strconv.Atoi(string(raw[:4]))
	if err != nil || n < 0 || 4+n > len(raw) {
		return "", fmt.Errorf("megacloud payload length %q: %w", raw[:4], media.ErrPatternNotFound)
	}
	return string(raw[4 : 4+n]), nil
}

// lcg is the linear congruential generator both cipher steps draw from.
type lcg uint64

func (g *lcg) next(n int) int {
	*g = (*g*1103515245 + 12345) & 0x7fffffff
	return int(uint64(*g) % uint64(n))
}

// hash31 is the 32-bit s[0]*31^(n-1) + ... + s[n-1] string hash.
func hash31(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return h
}

// unwrapLayer undoes one layer: a seeded shift, then a columnar
// transposition, then a seeded substitution.
func unwrapLayer(buf []byte, layerKey string) []byte {
	out := make([]byte, len(buf))
	g := lcg(hash31(layerKey))
	for i, b := range buf {
		if !inAlphabet(b) {
			out[i] = b
			continue
		}
		idx := int(b - alphaFirst)
		out[i] = byte(alphaFirst + (idx-g.next(alphaSize)+alphaSize)%alphaSize)
	}

	out = untranspose(out, layerKey)

	var inverse [alphaSize]byte
	for i, b := range shuffledAlphabet(layerKey) {
		inverse[b-alphaFirst] = byte(alphaFirst + i)
	}
	for i, b := range out {
		if inAlphabet(b) {
			out[i] = inverse[b-alphaFirst]
		}
	}
	return out
}

// keyOrder returns the column indexes of key sorted by their byte, ties in
// key order.
func keyOrder(key string) []int {
	order := make([]int, len(key))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return key[order[a]] < key[order[b]] })
	return order
}

// untranspose fills a grid of len(key) columns column by column in key
// order and reads it back row by row. Missing cells are spaces.
func untranspose(src []byte, key string) []byte {
	cols := len(key)
	if cols == 0 {
		return src
	}
	rows := (len(src) + cols - 1) / cols
	grid := []byte(strings.Repeat(" ", rows*cols))

	i := 0
	for _, col := range keyOrder(key) {
		for row := 0; row < rows && i < len(src); row++ {
			grid[row*cols+col] = src[i]
			i++
		}
	}
	return grid
}

// shuffledAlphabet is the alphabet after a Fisher-Yates shuffle seeded by key.
func shuffledAlphabet(key string) []byte {
	out := make([]byte, alphaSize)
	for i := range out {
		out[i] = byte(alphaFirst + i)
	}
	g := lcg(hash31(key))
	for i := len(out) - 1; i > 0; i-- {
		j := g.next(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// deriveKey mixes the MegaCloud secret with the page's client key.
func deriveKey(megaKey, clientKey string) string {
	const (
		xorMask = 247
		shift   = 5
	)
	joined := []byte(megaKey + clientKey)
	if len(joined) == 0 {
		return ""
	}

	// h = c + 158*h over the joined bytes, reduced mod 2^63-1.
	h := new(big.Int)
	mul := big.NewInt(158)
	for _, c := range joined {
		h.Mul(h, mul)
		h.Add(h, big.NewInt(int64(c)))
	}
	seed := new(big.Int).Mod(h, new(big.Int).SetUint64(1<<63-1)).Int64()

	for i := range joined {
		joined[i] ^= xorMask
	}
	pivot := (int(seed%int64(len(joined))) + shift) % len(joined)
	rotated := append(append([]byte{}, joined[pivot:]...), joined[:pivot]...)

	// Interleave with the reversed client key.
	leaf := []byte(clientKey)
	for i, j := 0, len(leaf)-1; i < j; i, j = i+1, j-1 {
		leaf[i], leaf[j] = leaf[j], leaf[i]
	}
	mixed := make([]byte, 0, len(rotated)+len(leaf))
	for i := 0; i < max(len(rotated), len(leaf)); i++ {
		if i < len(rotated) {
			mixed = append(mixed, rotated[i])
		}
		if i < len(leaf) {
			mixed = append(mixed, leaf[i])
		}
	}

	mixed = mixed[:min(96+int(seed%33), len(mixed))]
	for i, c := range mixed {
		mixed[i] = byte(int(c)%alphaSize + alphaFirst)
	}
	return string(mixed)
}
