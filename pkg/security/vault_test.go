package security

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVault(t *testing.T) {
	tests := []struct {
		name    string
		key     []byte
		wantErr bool
	}{
		{name: "valid 32-byte key", key: make([]byte, 32)},
		{name: "invalid short key", key: make([]byte, 16), wantErr: true},
		{name: "invalid long key", key: make([]byte, 64), wantErr: true},
		{name: "empty key", key: []byte{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewVault(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, v)
		})
	}
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	key := make([]byte, 32)
	copy(key, []byte("test-encryption-key-32-bytes-!!"))
	v, err := NewVault(key)
	require.NoError(t, err)

	for _, pt := range [][]byte{
		[]byte("hello world"),
		{0x00, 0x01, 0xFF},
		bytes.Repeat([]byte("pw"), 500),
	} {
		ct, err := v.Encrypt(pt)
		require.NoError(t, err)
		assert.NotEqual(t, pt, ct)

		got, err := v.Decrypt(ct)
		require.NoError(t, err)
		assert.Equal(t, pt, got)
	}
}

func TestDecrypt_Errors(t *testing.T) {
	v, err := NewVault(make([]byte, 32))
	require.NoError(t, err)

	for name, ct := range map[string][]byte{
		"empty":     {},
		"too short": {0x01, 0x02},
		"corrupted": bytes.Repeat([]byte("x"), 100),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Decrypt(ct)
			assert.Error(t, err)
		})
	}
}

func TestSealOpenPassword(t *testing.T) {
	key, err := DeriveHostKey("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	v, err := NewVault(key)
	require.NoError(t, err)

	sealed, err := v.SealPassword("correct horse")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "correct horse")

	opened, err := v.OpenPassword(sealed)
	require.NoError(t, err)
	assert.Equal(t, "correct horse", opened)

	_, err = v.OpenPassword("not-hex")
	assert.Error(t, err)

	_, err = v.SealPassword("")
	assert.Error(t, err)
}

func TestHostVault_BoundToMachine(t *testing.T) {
	dir := t.TempDir()
	idA := filepath.Join(dir, "a")
	idB := filepath.Join(dir, "b")
	require.NoError(t, os.WriteFile(idA, []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa\n"), 0o600))
	require.NoError(t, os.WriteFile(idB, []byte("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb\n"), 0o600))

	va, err := NewHostVault(idA)
	require.NoError(t, err)
	vb, err := NewHostVault(idB)
	require.NoError(t, err)

	sealed, err := va.SealPassword("pw")
	require.NoError(t, err)

	_, err = vb.OpenPassword(sealed)
	assert.Error(t, err, "another host must not decrypt the password")

	again, err := NewHostVault(idA)
	require.NoError(t, err)
	got, err := again.OpenPassword(sealed)
	require.NoError(t, err)
	assert.Equal(t, "pw", got)
}

func TestHostVault_Errors(t *testing.T) {
	_, err := NewHostVault(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(empty, []byte("\n"), 0o600))
	_, err = NewHostVault(empty)
	assert.Error(t, err)

	_, err = DeriveHostKey("")
	assert.Error(t, err)
}
