package magiclink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases", "Pepe.Rone@Example.COM", "pepe.rone@example.com"},
		{"trims whitespace", "  user@example.com \t", "user@example.com"},
		{"already normalized", "user@example.com", "user@example.com"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeEmail(tt.input))
		})
	}
}

func TestNormalizeEmailIsIdempotent(t *testing.T) {
	once := NormalizeEmail("  Pepe.Rone@Example.COM ")
	assert.Equal(t, once, NormalizeEmail(once))
}

func TestValidEmail(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"plain address", "user@example.com", true},
		{"mixed case", "User@Example.COM", true},
		{"subdomain", "user@mail.example.com", true},
		{"plus tag", "user+tag@example.com", true},
		{"empty", "", false},
		{"missing at", "userexample.com", false},
		{"missing local part", "@example.com", false},
		{"missing domain", "user@", false},
		{"domain without tld", "user@example", false},
		{"domain leading dot", "user@.example.com", false},
		{"spaces inside", "us er@example.com", false},
		{"display name form", "Pepe <user@example.com>", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidEmail(tt.input))
		})
	}
}
