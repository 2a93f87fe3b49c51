package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name   string
		input  []string
		expect []string
	}{
		{"nil", nil, nil},
		{"all blank", []string{"", "  "}, []string{}},
		{"trims and dedupes in order", []string{"  cpf ", "name", "cpf", "", "name "}, []string{"cpf", "name"}},
		{"case sensitive", []string{"CPF", "cpf"}, []string{"CPF", "cpf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, DedupeAndTrim(tt.input))
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"cpf", "address"}, SplitList(" cpf, address ,,cpf"))
	assert.Empty(t, SplitList(""))
}
