package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil slice", input: nil, expected: nil},
		{name: "empty slice", input: []string{}, expected: []string{}},
		{
			name:     "trims whitespace",
			input:    []string{"  patient  ", "doctor  "},
			expected: []string{"patient", "doctor"},
		},
		{
			name:     "removes duplicates preserving order",
			input:    []string{"patient", "doctor", "patient", "practice"},
			expected: []string{"patient", "doctor", "practice"},
		},
		{
			name:     "drops blanks",
			input:    []string{"", "  ", "patient"},
			expected: []string{"patient"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}

func TestSplitList(t *testing.T) {
	t.Run("comma separated broker list", func(t *testing.T) {
		assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"},
			SplitList(" kafka-1:9092, kafka-2:9092 ,", ","))
	})

	t.Run("populate paths split on commas and spaces", func(t *testing.T) {
		assert.Equal(t, []string{"patient", "doctor", "practice"},
			SplitList("patient doctor,practice patient", ", "))
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, SplitList("", ","))
		assert.Empty(t, SplitList(" , ,", ","))
	})
}
