package cryptoutils

import (
	"strings"
	"testing"

	"filippo.io/age"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePassword(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		password, err := GeneratePassword(DefaultPasswordLength)
		require.NoError(t, err)
		assert.Len(t, password, DefaultPasswordLength)

		for _, class := range passwordClasses {
			assert.True(t, strings.ContainsAny(password, class), "password %q misses class %q", password, class)
		}
		assert.False(t, seen[password])
		seen[password] = true
	}

	_, err := GeneratePassword(3)
	assert.Error(t, err)
}

func TestDeriveMachineKey(t *testing.T) {
	k1, err := DeriveMachineKey([]byte("machine-a"), "salt", "info")
	require.NoError(t, err)
	assert.Len(t, k1, MachineKeySize)

	again, err := DeriveMachineKey([]byte("machine-a"), "salt", "info")
	require.NoError(t, err)
	assert.Equal(t, k1, again)

	k2, err := DeriveMachineKey([]byte("machine-b"), "salt", "info")
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)

	_, err = DeriveMachineKey(nil, "salt", "info")
	assert.Error(t, err)
}

func TestSealOpen(t *testing.T) {
	key, err := DeriveMachineKey([]byte("machine-a"), "salt", "info")
	require.NoError(t, err)

	sealed, err := Seal(key, []byte("hunter2"), []byte("ref"))
	require.NoError(t, err)

	plaintext, err := Open(key, sealed, []byte("ref"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hunter2"), plaintext)

	_, err = Open(key, sealed, []byte("other-ref"))
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	otherKey, err := DeriveMachineKey([]byte("machine-b"), "salt", "info")
	require.NoError(t, err)
	_, err = Open(otherKey, sealed, []byte("ref"))
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = Open(key, []byte{1, 2}, nil)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestSealForRecipients(t *testing.T) {
	alice, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	bob, err := age.GenerateX25519Identity()
	require.NoError(t, err)

	sealed, err := SealForRecipients([]byte("secret"), []string{alice.Recipient().String(), bob.Recipient().String()})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(sealed), "-----BEGIN AGE ENCRYPTED FILE-----"))

	for _, id := range []*age.X25519Identity{alice, bob} {
		plaintext, err := OpenWithIdentity(sealed, id.String())
		require.NoError(t, err)
		assert.Equal(t, []byte("secret"), plaintext)
	}

	eve, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	_, err = OpenWithIdentity(sealed, eve.String())
	assert.Error(t, err)

	_, err = SealForRecipients([]byte("secret"), nil)
	assert.Error(t, err)
	_, err = SealForRecipients([]byte("secret"), []string{"not-a-key"})
	assert.Error(t, err)
}
