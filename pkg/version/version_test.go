package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetIgnoresEmpty(t *testing.T) {
	old := version
	t.Cleanup(func() { version = old })

	Set("")
	assert.Equal(t, old, version)
	Set("1.2.3")
	assert.Equal(t, "1.2.3", version)
}

func TestString(t *testing.T) {
	s := String()
	assert.True(t, strings.HasPrefix(s, Name+" "))
	assert.Contains(t, s, Version())
}
