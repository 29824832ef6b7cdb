package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockTiktoken implements a mock tokenizer for testing
type mockTiktoken struct {
	countTokens func(string) int
}

func (m *mockTiktoken) Encode(text string, allowedSpecial, disallowedSpecial []string) []int {
	return make([]int, m.countTokens(text))
}

func TestRoleRequestValidation(t *testing.T) {
	v := New()

	assert.Empty(t, v.Struct(RoleRequest{Role: "Teacher"}))

	details := v.Struct(RoleRequest{})
	require.Len(t, details, 1)
	assert.Equal(t, "role", details[0].Field)
	assert.Equal(t, "required", details[0].Code)
	assert.Equal(t, "field 'role' is required", details[0].Message)
}

func TestValidatorRole(t *testing.T) {
	v := New()

	assert.Nil(t, v.Role("Student", 100))

	fe := v.Role("", 100)
	require.NotNil(t, fe)
	assert.Equal(t, "required", fe.Code)

	fe = v.Role(strings.Repeat("x", 101), 100)
	require.NotNil(t, fe)
	assert.Equal(t, "max", fe.Code)
	assert.Equal(t, "field 'role' must be at most 100 characters", fe.Message)

	// Zero disables the length check
	assert.Nil(t, v.Role(strings.Repeat("x", 500), 0))
}

func TestTokenCounterWithMock(t *testing.T) {
	tc := NewTokenCounterWith(&mockTiktoken{countTokens: func(s string) int {
		return len(strings.Fields(s))
	}})
	assert.Equal(t, 4, tc.Count("what is a heap"))
	assert.Equal(t, 0, tc.Count(""))
}

func TestTokenCounterTiktoken(t *testing.T) {
	tc, err := NewTokenCounter("cl100k_base")
	if err != nil {
		// The encoding is downloaded on first use
		t.Skipf("encoding unavailable: %v", err)
	}
	assert.Greater(t, tc.Count("Explain binary search in two sentences."), 0)

	_, err = NewTokenCounter("no_such_encoding")
	assert.Error(t, err)
}
