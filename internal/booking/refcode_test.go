package booking

import (
    "strings"
    "testing"
)

func TestNewRefCodeShape(t *testing.T) {
    for i := 0; i < 1000; i++ {
        code, err := NewRefCode()
        if err != nil {
            t.Fatalf("generate: %v", err)
        }
        if len(code) != refLength {
            t.Fatalf("code %q has length %d, want %d", code, len(code), refLength)
        }
        for _, r := range code {
            if !strings.ContainsRune(refAlphabet, r) {
                t.Fatalf("code %q contains %q outside the A-Z0-9 alphabet", code, r)
            }
        }
    }
}

func TestNewRefCodeUniqueness(t *testing.T) {
    const n = 100000
    seen := make(map[string]struct{}, n)
    for i := 0; i < n; i++ {
        code, err := NewRefCode()
        if err != nil {
            t.Fatalf("generate: %v", err)
        }
        if _, dup := seen[code]; dup {
            t.Fatalf("duplicate reference code %q after %d generations", code, i)
        }
        seen[code] = struct{}{}
    }
}
