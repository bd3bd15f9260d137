package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Notebook Dell", "notebook dell"},
		{"  Notebook   DELL!!  ", "notebook dell"},
		{"Fone-de-ouvido (Bluetooth)", "fone de ouvido bluetooth"},
		{"Protetor Solar FPS 50", "protetor solar fps 50"},
		{"Preço Médio", "preço médio"},
		{"snake_case", "snake_case"},
		{"!!!", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeName(tt.in))
		})
	}
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "notebook dell|3500.00", NormalizeKey("Notebook  Dell", 3500))
	assert.Equal(t, "mouse|19.90", NormalizeKey("MOUSE!", 19.9))
	assert.Equal(t, NormalizeKey("Mouse Gamer", 100), NormalizeKey(" mouse   gamer ", 100.001))
	assert.NotEqual(t, NormalizeKey("mouse", 100), NormalizeKey("mouse", 101))
}
