package wallet

import (
	"crypto/ed25519"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"
)

func TestDeriveSLIP10Vectors(t *testing.T) {
	seed, err := hex.DecodeString("000102030405060708090a0b0c0d0e0f")
	require.NoError(t, err)

	key, chain := deriveSLIP10(seed, nil)
	require.Equal(t, "2b4be7f19ee27bbf30c667b642d5f4aa69fd169872f8fc3059c08ebae2eb19e7", hex.EncodeToString(key))
	require.Equal(t, "90046a93de5380a72b5e45010748567d5ea02bbf6522f979e05c0d8d8ca9fffb", hex.EncodeToString(chain))

	key, chain = deriveSLIP10(seed, []uint32{0})
	require.Equal(t, "68e0fe46dfb67e368c75379acec591dad19df3cde26e63b93a8e704f1dade7a3", hex.EncodeToString(key))
	require.Equal(t, "8b59aa11380b624e81507a27fedda59fea6d0b779a778918a2fd3590e16e9c69", hex.EncodeToString(chain))
}

func TestNewMnemonicHasTwelveWords(t *testing.T) {
	m, err := NewMnemonic()
	require.NoError(t, err)
	require.Len(t, strings.Fields(m), 12)
}

func TestDeriveKeypairIsDeterministic(t *testing.T) {
	m, err := NewMnemonic()
	require.NoError(t, err)

	a, err := DeriveKeypair(m)
	require.NoError(t, err)
	b, err := DeriveKeypair(m)
	require.NoError(t, err)
	require.Equal(t, a.PublicKey(), b.PublicKey())

	pub, err := base58.Decode(a.PublicKey())
	require.NoError(t, err)
	require.Len(t, pub, ed25519.PublicKeySize)

	secret, err := base58.Decode(a.SecretKey())
	require.NoError(t, err)
	require.Len(t, secret, ed25519.PrivateKeySize)
	require.Equal(t, pub, secret[32:])

	_, err = DeriveKeypair("not a valid mnemonic")
	require.Error(t, err)
}
