package gpio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsChipName(t *testing.T) {
	tests := []struct {
		name     string
		expected bool
	}{
		{"gpiochip0", true},
		{"gpiochip12", true},
		{"gpiochip", false},
		{"gpiochip0a", false},
		{"Gpiochip0", false},
		{"ttyUSB0", false},
		{"", false},
		{"gpiochip-1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsChipName(tt.name))
		})
	}
}

func TestChips_DoesNotError(t *testing.T) {
	// The host may or may not have GPIO chips; enumeration itself
	// must succeed either way.
	names, err := Chips()
	assert.NoError(t, err)
	for _, name := range names {
		assert.True(t, IsChipName(name))
	}
}
