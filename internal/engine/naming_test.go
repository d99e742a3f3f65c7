package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFunctionName_Short(t *testing.T) {
	assert.Equal(t, "api-example-com", FunctionName("api.example.com"))
	assert.Equal(t, "api-example-com", FunctionName("API.Example.com."))
}

func TestDeriveName_Truncation(t *testing.T) {
	prefix := strings.Repeat("a", 70)
	n1 := DeriveName(prefix+"-one", FunctionNameLimit)
	n2 := DeriveName(prefix+"-two", FunctionNameLimit)

	assert.LessOrEqual(t, len(n1), FunctionNameLimit)
	assert.LessOrEqual(t, len(n2), FunctionNameLimit)
	assert.NotEqual(t, n1, n2)

	// deterministic
	assert.Equal(t, n1, DeriveName(prefix+"-one", FunctionNameLimit))
}

func TestDeriveName_ExactLimit(t *testing.T) {
	name := strings.Repeat("b", FunctionNameLimit)
	assert.Equal(t, name, DeriveName(name, FunctionNameLimit))

	over := name + "c"
	got := DeriveName(over, FunctionNameLimit)
	assert.Len(t, got, FunctionNameLimit)
	assert.True(t, strings.HasPrefix(got, strings.Repeat("b", FunctionNameLimit-9)+"-"))
}

func TestFunctionName_LongDomains(t *testing.T) {
	base := strings.Repeat("service", 10)
	d1 := base + ".staging.example.com"
	d2 := base + ".production.example.com"

	f1, f2 := FunctionName(d1), FunctionName(d2)
	assert.LessOrEqual(t, len(f1), FunctionNameLimit)
	assert.LessOrEqual(t, len(f2), FunctionNameLimit)
	assert.NotEqual(t, f1, f2)
}

func TestRootDomain(t *testing.T) {
	root, ok := RootDomain("api.example.com")
	assert.True(t, ok)
	assert.Equal(t, "example.com", root)

	_, ok = RootDomain("example.com")
	assert.False(t, ok)
}
