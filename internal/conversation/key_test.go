package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"+15551230000":             "+15551230000",
		"whatsapp:+1 555 123-0000": "+15551230000",
		"15551230000@c.us":         "15551230000",
		"tel:+49 (171) 123":        "+49171123",
		" +1 555.999.0000 ":        "+15559990000",
		"no digits here":           "",
		"+":                        "",
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeAddress(raw), "raw=%q", raw)
	}
}

func TestResolveKeyOrderIndependent(t *testing.T) {
	k1, err := ResolveKey("+15551230000", "+15559990000")
	require.NoError(t, err)
	k2, err := ResolveKey("+15559990000", "+15551230000")
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	// stable across repeated calls
	k3, err := ResolveKey("+15551230000", "+15559990000")
	require.NoError(t, err)
	assert.Equal(t, k1, k3)
}

func TestResolveKeyNormalizesNoise(t *testing.T) {
	k1, err := ResolveKey("whatsapp:+1 555 123 0000", "+15559990000@s.whatsapp.net")
	require.NoError(t, err)
	k2, err := ResolveKey("+15551230000", "+15559990000")
	require.NoError(t, err)
	assert.Equal(t, k2, k1)
}

func TestResolveKeyInvalid(t *testing.T) {
	_, err := ResolveKey("", "+15559990000")
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = ResolveKey("abc", "+15559990000")
	assert.ErrorIs(t, err, ErrInvalidAddress)

	// same participant twice
	_, err = ResolveKey("+15551230000", "whatsapp:+15551230000")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}
