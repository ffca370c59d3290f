package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// DefaultMachineIDPath is where systemd hosts keep their machine id
const DefaultMachineIDPath = "/etc/machine-id"

var hkdfInfo = []byte("topio-agent mining password v1")

// Vault encrypts and decrypts tenant mining passwords at rest
type Vault struct {
	encryptionKey []byte // 32 bytes for AES-256
}

// NewVault creates a vault with the given encryption key
// The key should be 32 bytes for AES-256-GCM
func NewVault(key []byte) (*Vault, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes for AES-256, got %d", len(key))
	}

	return &Vault{
		encryptionKey: key,
	}, nil
}

// NewHostVault derives the key from the host's machine id, so a config file
// copied to another machine cannot be decrypted there
func NewHostVault(machineIDPath string) (*Vault, error) {
	if machineIDPath == "" {
		machineIDPath = DefaultMachineIDPath
	}
	data, err := os.ReadFile(machineIDPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read machine id: %w", err)
	}
	id := strings.TrimSpace(string(data))
	if id == "" {
		return nil, fmt.Errorf("machine id at %s is empty", machineIDPath)
	}

	key, err := DeriveHostKey(id)
	if err != nil {
		return nil, err
	}
	return NewVault(key)
}

// DeriveHostKey derives a 32-byte key from a machine id with HKDF-SHA256
func DeriveHostKey(machineID string) ([]byte, error) {
	if machineID == "" {
		return nil, fmt.Errorf("machine id cannot be empty")
	}
	r := hkdf.New(sha256.New, []byte(machineID), nil, hkdfInfo)
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

// Encrypt encrypts plaintext using AES-256-GCM
// Returns encrypted data with nonce prepended
func (v *Vault) Encrypt(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("cannot encrypt empty data")
	}

	gcm, err := v.gcm()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt decrypts data encrypted with Encrypt
// Expects nonce to be prepended to ciphertext
func (v *Vault) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("cannot decrypt empty data")
	}

	gcm, err := v.gcm()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}

func (v *Vault) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// SealPassword encrypts a password into the hex form stored in the config file
func (v *Vault) SealPassword(password string) (string, error) {
	ct, err := v.Encrypt([]byte(password))
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(ct), nil
}

// OpenPassword decrypts a password sealed with SealPassword
func (v *Vault) OpenPassword(sealed string) (string, error) {
	ct, err := hex.DecodeString(strings.TrimSpace(sealed))
	if err != nil {
		return "", fmt.Errorf("sealed password is not hex: %w", err)
	}
	pt, err := v.Decrypt(ct)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
