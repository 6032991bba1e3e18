package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSeed = "0000000000000000000000000000000000000000000000000000000000000001"

func TestIdentityFromSeed(t *testing.T) {
	identity, err := IdentityFromSeed(testSeed)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(identity.Address, "0x"))
	assert.Len(t, identity.Address, 42)

	// same seed, same address
	again, err := IdentityFromSeed("0x" + testSeed)
	require.NoError(t, err)
	assert.Equal(t, identity.Address, again.Address)
}

func TestIdentityFromSeedRejectsBadMaterial(t *testing.T) {
	_, err := IdentityFromSeed("not-hex")
	assert.Error(t, err)

	_, err = IdentityFromSeed("abcd")
	assert.Error(t, err)
}

func TestSignVerifies(t *testing.T) {
	identity, err := IdentityFromSeed(testSeed)
	require.NoError(t, err)

	message := []byte("cancel_0xabc_1700000000")
	sigHex := identity.Sign(message)

	sig, err := hex.DecodeString(sigHex)
	require.NoError(t, err)

	seed, _ := hex.DecodeString(testSeed)
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	assert.True(t, ed25519.Verify(pub, message, sig))
}

func TestResolveEnvBackend(t *testing.T) {
	t.Setenv("TEST_WALLET_KEY", testSeed)

	manager := NewManager("", "")
	identity, err := manager.Resolve(context.Background(), "TEST_WALLET_KEY", BackendEnv)
	require.NoError(t, err)
	assert.NotEmpty(t, identity.Address)

	// second resolve hits the cache and returns the same identity
	cached, err := manager.Resolve(context.Background(), "TEST_WALLET_KEY", BackendEnv)
	require.NoError(t, err)
	assert.Same(t, identity, cached)
}

func TestResolveMissingEnvVar(t *testing.T) {
	manager := NewManager("", "")
	_, err := manager.Resolve(context.Background(), "UNSET_WALLET_KEY", BackendEnv)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestResolveUnknownBackend(t *testing.T) {
	manager := NewManager("", "")
	_, err := manager.Resolve(context.Background(), "whatever", "hsm")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestResolveVaultUnconfigured(t *testing.T) {
	manager := NewManager("", "")
	_, err := manager.Resolve(context.Background(), "secret/data/wallets/agent-1", BackendVault)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}
