package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already normalized", "599123456", "599123456"},
		{"formatted with country code", "+995 599 12 34 56", "599123456"},
		{"zero-prefixed country code", "0995599123456", "599123456"},
		{"bare country code", "995599123456", "599123456"},
		{"dashes and parens", "(599) 12-34-56", "599123456"},
		{"too short stays short", "12345", "12345"},
		{"empty", "", ""},
		{"long without country code keeps last nine", "00599123456", "599123456"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestIsNormalized(t *testing.T) {
	assert.True(t, IsNormalized("599123456"))
	assert.False(t, IsNormalized("59912345"))
	assert.False(t, IsNormalized("5991234567"))
	assert.False(t, IsNormalized("59912345a"))
	assert.False(t, IsNormalized(""))
}

func TestIsPhoneLike(t *testing.T) {
	assert.True(t, IsPhoneLike("+995 599 12 34 56"))
	assert.True(t, IsPhoneLike("(599) 12-34-56"))
	assert.False(t, IsPhoneLike("user@example.com"))
	assert.False(t, IsPhoneLike(""))
}

func TestValidPersonalID(t *testing.T) {
	assert.True(t, ValidPersonalID("01234567890"))
	assert.False(t, ValidPersonalID("0123456789"))
	assert.False(t, ValidPersonalID("01234567890a"))
}
