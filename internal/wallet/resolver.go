// Package wallet resolves signing identities from pluggable secret backends.
// Private keys are never stored in the database; agents carry only an opaque
// secret reference (env var name or vault path) and a backend name.
package wallet

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrKeyNotFound means the secret reference could not be resolved to a key.
// This is a configuration error, not retryable: the caller must block the
// order rather than attempt to sign.
var ErrKeyNotFound = errors.New("signing key not found")

const (
	BackendEnv   = "env"
	BackendVault = "vault"
)

// Identity is a resolved signing identity. The private key never leaves this
// package; callers sign through it.
type Identity struct {
	Address string
	key     ed25519.PrivateKey
}

// Sign returns the hex signature over message.
func (id *Identity) Sign(message []byte) string {
	return hex.EncodeToString(ed25519.Sign(id.key, message))
}

// Resolver turns a secret reference into a signing identity.
type Resolver interface {
	Resolve(ctx context.Context, secretRef, backend string) (*Identity, error)
}

// Manager resolves keys from env or Vault and caches identities by reference.
type Manager struct {
	vaultAddr  string
	vaultToken string
	http       *http.Client

	mu    sync.Mutex
	cache map[string]*Identity
}

func NewManager(vaultAddr, vaultToken string) *Manager {
	return &Manager{
		vaultAddr:  vaultAddr,
		vaultToken: vaultToken,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		cache: make(map[string]*Identity),
	}
}

func (m *Manager) Resolve(ctx context.Context, secretRef, backend string) (*Identity, error) {
	cacheKey := backend + ":" + secretRef

	m.mu.Lock()
	if identity, ok := m.cache[cacheKey]; ok {
		m.mu.Unlock()
		return identity, nil
	}
	m.mu.Unlock()

	seedHex, err := m.resolveSecret(ctx, secretRef, backend)
	if err != nil {
		return nil, err
	}

	identity, err := IdentityFromSeed(seedHex)
	if err != nil {
		return nil, fmt.Errorf("invalid key material for %s: %w", secretRef, err)
	}

	m.mu.Lock()
	m.cache[cacheKey] = identity
	m.mu.Unlock()

	log.Info().Str("address", identity.Address).Str("backend", backend).Msg("Loaded wallet")
	return identity, nil
}

func (m *Manager) resolveSecret(ctx context.Context, secretRef, backend string) (string, error) {
	switch backend {
	case BackendEnv:
		value := os.Getenv(secretRef)
		if value == "" {
			return "", fmt.Errorf("%w: env var %s not set", ErrKeyNotFound, secretRef)
		}
		return value, nil

	case BackendVault:
		return m.resolveFromVault(ctx, secretRef)

	default:
		return "", fmt.Errorf("%w: unknown secret backend %q", ErrKeyNotFound, backend)
	}
}

// resolveFromVault reads a KV v2 secret whose data holds a private_key field.
func (m *Manager) resolveFromVault(ctx context.Context, path string) (string, error) {
	if m.vaultAddr == "" || m.vaultToken == "" {
		return "", fmt.Errorf("%w: vault not configured", ErrKeyNotFound)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1/%s", m.vaultAddr, path), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-Vault-Token", m.vaultToken)

	resp, err := m.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: vault fetch failed: %v", ErrKeyNotFound, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: vault returned status %d for %s", ErrKeyNotFound, resp.StatusCode, path)
	}

	var payload struct {
		Data struct {
			Data struct {
				PrivateKey string `json:"private_key"`
			} `json:"data"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: invalid vault response: %v", ErrKeyNotFound, err)
	}
	if payload.Data.Data.PrivateKey == "" {
		return "", fmt.Errorf("%w: vault secret %s has no private_key", ErrKeyNotFound, path)
	}
	return payload.Data.Data.PrivateKey, nil
}

// IdentityFromSeed derives a signing identity from a hex-encoded ed25519
// seed, with or without a 0x prefix.
func IdentityFromSeed(seedHex string) (*Identity, error) {
	seed, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(seedHex), "0x"))
	if err != nil {
		return nil, err
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}

	key := ed25519.NewKeyFromSeed(seed)
	pub := key.Public().(ed25519.PublicKey)
	digest := sha256.Sum256(pub)

	return &Identity{
		Address: "0x" + hex.EncodeToString(digest[:20]),
		key:     key,
	}, nil
}
