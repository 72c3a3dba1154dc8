package identity

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// SaveEncryptedKey writes priv to path, sealed with a key derived from
// passphrase via HKDF-SHA256, ChaCha20-Poly1305 (nonce ‖ ciphertext).
// An empty passphrase stores the raw hex-encoded key,
// matching KeyStoreConfig.Type == "file".
func SaveEncryptedKey(path string, priv *ecdsa.PrivateKey, passphrase string) error {
	raw := gethcrypto.FromECDSA(priv)
	if passphrase == "" {
		return os.WriteFile(path, []byte(hex.EncodeToString(raw)), 0600)
	}

	key, err := deriveKeystoreKey(passphrase)
	if err != nil {
		return err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return fmt.Errorf("identity: keystore cipher: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("identity: keystore nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, raw, nil)

	out := make([]byte, len(nonce)+len(sealed))
	copy(out, nonce)
	copy(out[len(nonce):], sealed)

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("identity: keystore dir: %w", err)
	}
	return os.WriteFile(path, []byte(hex.EncodeToString(out)), 0600)
}

// LoadEncryptedKey is the inverse of SaveEncryptedKey.
func LoadEncryptedKey(path string, passphrase string) (*ecdsa.PrivateKey, error) {
	hexData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity: read keystore file: %w", err)
	}
	data, err := hex.DecodeString(string(hexData))
	if err != nil {
		return nil, fmt.Errorf("identity: decode keystore file: %w", err)
	}

	if passphrase == "" {
		return gethcrypto.ToECDSA(data)
	}

	if len(data) < chacha20poly1305.NonceSize {
		return nil, fmt.Errorf("identity: keystore file too short")
	}
	key, err := deriveKeystoreKey(passphrase)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("identity: keystore cipher: %w", err)
	}
	nonce, sealed := data[:chacha20poly1305.NonceSize], data[chacha20poly1305.NonceSize:]
	raw, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("identity: keystore decrypt failed, wrong passphrase?: %w", err)
	}
	return gethcrypto.ToECDSA(raw)
}

func deriveKeystoreKey(passphrase string) ([]byte, error) {
	h := hkdf.New(sha256.New, []byte(passphrase), []byte("rings-keystore"), []byte("encryption"))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, fmt.Errorf("identity: derive keystore key: %w", err)
	}
	return key, nil
}
