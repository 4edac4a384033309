package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferences(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		want       []string
	}{
		{"arithmetic", "weight / (height * height)", []string{"height", "weight"}},
		{"function call", "ROUND(weight / height, 2)", []string{"height", "weight"}},
		{"conditional", "age > 65 ? 'senior' : 'adult'", []string{"age"}},
		{"literal only", "1 + 2", []string{}},
		{"let binding", "let x = a * 2; x + b", []string{"a", "b"}},
		{"nested let", "let w = weight; let h = height * height; w / h", []string{"height", "weight"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := References(tt.expression)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReferencesInvalid(t *testing.T) {
	_, err := References("weight / (")
	assert.Error(t, err)
}

func TestMergeDependencies(t *testing.T) {
	deps, err := MergeDependencies("weight / (height * height)", []string{"weight", "bmi_source"})
	require.NoError(t, err)
	assert.Equal(t, []string{"weight", "bmi_source", "height"}, deps)
}
