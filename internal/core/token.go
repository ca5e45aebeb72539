// AngelaMos | 2026
// token.go

package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

const DefaultTokenBytes = 32

// TokenLookup reports whether token is already outstanding somewhere.
type TokenLookup func(ctx context.Context, token string) (bool, error)

type TokenGenerator struct {
	size   int
	lookup TokenLookup
	random io.Reader
}

func NewTokenGenerator(size int, lookup TokenLookup) *TokenGenerator {
	if size < 16 {
		size = DefaultTokenBytes
	}

	return &TokenGenerator{
		size:   size,
		lookup: lookup,
		random: rand.Reader,
	}
}

// Generate returns a URL-safe token that no outstanding verification or reset
// token currently uses. Collisions are retried with fresh randomness; a failing
// random source is returned as-is and must not be retried.
func (g *TokenGenerator) Generate(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("generate token: %w", err)
		}

		token, err := g.random64()
		if err != nil {
			return "", err
		}

		if g.lookup == nil {
			return token, nil
		}

		exists, err := g.lookup(ctx, token)
		if err != nil {
			return "", fmt.Errorf("check token uniqueness: %w", err)
		}

		if !exists {
			return token, nil
		}
	}
}

func (g *TokenGenerator) random64() (string, error) {
	buf := make([]byte, g.size)
	if _, err := io.ReadFull(g.random, buf); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
