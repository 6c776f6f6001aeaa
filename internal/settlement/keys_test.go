package settlement

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"
)

// encryptForTest builds a key file the way the companion CLI tooling does.
func encryptForTest(t *testing.T, keyHex, password string) []byte {
	t.Helper()

	keyBytes, err := ethcrypto.HexToECDSA(keyHex)
	require.NoError(t, err)

	salt := make([]byte, 16)
	_, err = rand.Read(salt)
	require.NoError(t, err)

	derived := pbkdf2.Key([]byte(password), salt, keyDerivationIterations, derivedKeyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)

	nonce := make([]byte, gcm.NonceSize())
	_, err = rand.Read(nonce)
	require.NoError(t, err)

	ciphertext := gcm.Seal(nil, nonce, ethcrypto.FromECDSA(keyBytes), nil)

	out, err := json.Marshal(keyFile{
		Version:    keyFileVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	})
	require.NoError(t, err)
	return out
}

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestLoadSignerKeyRawHex(t *testing.T) {
	key, err := LoadSignerKey(KeySource{RawHex: "0x" + testKeyHex})
	require.NoError(t, err)

	want, err := ethcrypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	assert.Equal(t, want.D, key.D)
}

func TestLoadSignerKeyEncryptedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signer.json")
	require.NoError(t, os.WriteFile(path, encryptForTest(t, testKeyHex, "hunter2"), 0o600))

	key, err := LoadSignerKey(KeySource{EncryptedFilePath: path, Password: "hunter2"})
	require.NoError(t, err)

	want, err := ethcrypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	assert.Equal(t, want.D, key.D)
}

func TestLoadSignerKeyWrongPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signer.json")
	require.NoError(t, os.WriteFile(path, encryptForTest(t, testKeyHex, "hunter2"), 0o600))

	_, err := LoadSignerKey(KeySource{EncryptedFilePath: path, Password: "wrong"})
	assert.ErrorContains(t, err, "decryption failed")
}

func TestLoadSignerKeyNothingConfigured(t *testing.T) {
	_, err := LoadSignerKey(KeySource{})
	assert.ErrorContains(t, err, "no signer key configured")
}
