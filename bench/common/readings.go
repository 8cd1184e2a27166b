package common

import (
	"math/rand"
	"strings"

	"github.com/liftbridge-io/telecipher/server/encryption"
	"github.com/liftbridge-io/telecipher/server/telemetry"
)

// MaxLevel bounds generated readings.
const MaxLevel = 100.0

// PreGenerateReadings creates level readings upfront so that benchmarks
// measure only the cipher and transport. The seed makes runs repeatable.
func PreGenerateReadings(n int, seed int64) []float64 {
	r := rand.New(rand.NewSource(seed))
	levels := make([]float64, n)
	for i := range levels {
		levels[i] = r.Float64() * MaxLevel
	}
	return levels
}

// PreEncryptReadings encrypts formatted readings with c for decrypt
// benchmarks.
func PreEncryptReadings(c encryption.Cipher, passphrase string, levels []float64) ([]string, error) {
	ciphertexts := make([]string, len(levels))
	for i, level := range levels {
		ct, err := c.Encrypt(telemetry.FormatLevel(level), passphrase)
		if err != nil {
			return nil, err
		}
		ciphertexts[i] = ct
	}
	return ciphertexts, nil
}

// Split divides n items among workers, giving the remainder to the last one.
// It returns the [start, end) bounds of each worker's share.
func Split(n, workers int) [][2]int {
	if workers <= 0 {
		workers = 1
	}
	per := n / workers
	bounds := make([][2]int, workers)
	for i := 0; i < workers; i++ {
		start := i * per
		end := start + per
		if i == workers-1 {
			end = n
		}
		bounds[i] = [2]int{start, end}
	}
	return bounds
}

// SplitServers flattens comma-separated server lists given to repeated flags.
func SplitServers(values []string) []string {
	var servers []string
	for _, v := range values {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				servers = append(servers, s)
			}
		}
	}
	return servers
}
