package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointers(t *testing.T) {
	f := Float64Pointer(0)
	require.NotNil(t, f)
	assert.Equal(t, 0.0, *f)

	i := IntPointer(256)
	require.NotNil(t, i)
	assert.Equal(t, 256, *i)

	s := StringPointer("gpt-4")
	require.NotNil(t, s)
	assert.Equal(t, "gpt-4", *s)

	assert.Equal(t, int64(12), *Int64Pointer(12))
	assert.NotSame(t, IntPointer(1), IntPointer(1))
}
