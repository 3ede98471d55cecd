package token

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/ga-techcraft/Online-Chat-Messenger/internal/protocol"
)

const (
	// DefaultSize gives 258 bits of entropy over a 64-symbol alphabet.
	DefaultSize = 43
	// Alphabet is the URL-safe base64 alphabet.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
)

// Generator issues session tokens.
type Generator interface {
	Generate() (string, error)
	Validate(tok string) (bool, string) // (valid, reason)
}

// NanoIDGenerator generates tokens with crypto/rand backed NanoID.
type NanoIDGenerator struct {
	size int
}

// NewNanoIDGenerator creates a NanoIDGenerator. size must fit the data
// frame token field.
func NewNanoIDGenerator(size int) (*NanoIDGenerator, error) {
	if size < 16 || size > protocol.MaxTokenBytes {
		return nil, fmt.Errorf("token size must be between 16 and %d, got %d", protocol.MaxTokenBytes, size)
	}
	return &NanoIDGenerator{size: size}, nil
}

func (g *NanoIDGenerator) Generate() (string, error) {
	id, err := gonanoid.Generate(Alphabet, g.size)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return id, nil
}

func (g *NanoIDGenerator) Validate(tok string) (bool, string) {
	if len(tok) != g.size {
		return false, fmt.Sprintf("expected length %d, got %d", g.size, len(tok))
	}
	for _, c := range tok {
		if !strings.ContainsRune(Alphabet, c) {
			return false, fmt.Sprintf("character '%c' not in alphabet", c)
		}
	}
	return true, ""
}
