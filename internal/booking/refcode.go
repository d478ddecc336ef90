package booking

import (
    "crypto/rand"
    "fmt"
)

// refAlphabet is the reference-code symbol set: 36 symbols, 8 positions,
// about 41 bits of entropy.  Collisions are negligible at realistic
// volumes but the ledger still enforces uniqueness and the engine
// regenerates on a clash.
const (
    refAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
    refLength   = 8
)

// NewRefCode generates a random 8-character booking reference (PNR).
// Bytes are drawn from crypto/rand and mapped through rejection
// sampling so every symbol is uniformly likely.
func NewRefCode() (string, error) {
    out := make([]byte, 0, refLength)
    buf := make([]byte, 16)
    for len(out) < refLength {
        if _, err := rand.Read(buf); err != nil {
            return "", fmt.Errorf("reference code entropy: %w", err)
        }
        for _, b := range buf {
            // Discard bytes outside the largest multiple of 36 below 256
            // to avoid modulo bias.
            if b >= 252 {
                continue
            }
            out = append(out, refAlphabet[int(b)%len(refAlphabet)])
            if len(out) == refLength {
                break
            }
        }
    }
    return string(out), nil
}
