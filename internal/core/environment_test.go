package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvironment(t *testing.T) {
	cases := map[string]Environment{
		"production":  Production,
		"staging":     Staging,
		"testing":     Testing,
		"development": Development,
		"":            Development,
		"PRODUCTION":  Development,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseEnvironment(in), "input %q", in)
	}
}

func TestEnvironmentDecode(t *testing.T) {
	var e Environment
	require.NoError(t, e.Decode("production"))
	assert.True(t, e.IsProduction())

	require.NoError(t, e.Decode("bogus"))
	assert.Equal(t, Development, e)
}
