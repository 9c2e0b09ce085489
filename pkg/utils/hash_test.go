package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashQueryNormalizes(t *testing.T) {
	require.Equal(t, HashQuery("What happened?"), HashQuery("  what happened?  "))
	require.NotEqual(t, HashQuery("first question"), HashQuery("second question"))
}

func TestHashStringIsCaseSensitive(t *testing.T) {
	require.NotEqual(t, HashString("Text"), HashString("text"))
	require.Len(t, HashString("anything"), 32)
}
