package settlement

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// keyDerivationIterations follows the OWASP minimum for PBKDF2-HMAC-SHA256.
	keyDerivationIterations = 480_000
	derivedKeyLen           = 32
	keyFileVersion          = 1
)

// keyFile is the on-disk format of an encrypted signer key. All binary
// fields are base64 standard encoding.
type keyFile struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeySource tells LoadSignerKey where the liquidator's private key lives.
// Either a raw hex key (typically from an environment variable) or an
// encrypted key file plus password.
type KeySource struct {
	RawHex            string
	EncryptedFilePath string
	Password          string
}

// LoadSignerKey resolves the signing key for on-chain settlement. A raw hex
// key wins over an encrypted file when both are set.
func LoadSignerKey(src KeySource) (*ecdsa.PrivateKey, error) {
	if src.RawHex != "" {
		key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(src.RawHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("settlement: parsing raw signer key: %w", err)
		}
		return key, nil
	}

	if src.EncryptedFilePath == "" {
		return nil, errors.New("settlement: no signer key configured")
	}
	if src.Password == "" {
		return nil, errors.New("settlement: key password must not be empty")
	}

	data, err := os.ReadFile(src.EncryptedFilePath)
	if err != nil {
		return nil, fmt.Errorf("settlement: reading key file: %w", err)
	}

	keyHex, err := decryptKeyFile(data, src.Password)
	if err != nil {
		return nil, err
	}

	key, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("settlement: decrypted key is not a valid secp256k1 key: %w", err)
	}
	return key, nil
}

func decryptKeyFile(data []byte, password string) (string, error) {
	var stored keyFile
	if err := json.Unmarshal(data, &stored); err != nil {
		return "", fmt.Errorf("settlement: parsing key file: %w", err)
	}
	if stored.Version != keyFileVersion {
		return "", fmt.Errorf("settlement: unsupported key file version %d", stored.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return "", fmt.Errorf("settlement: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(stored.Nonce)
	if err != nil {
		return "", fmt.Errorf("settlement: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("settlement: decoding ciphertext: %w", err)
	}

	derived := pbkdf2.Key([]byte(password), salt, keyDerivationIterations, derivedKeyLen, sha256.New)

	block, err := aes.NewCipher(derived)
	if err != nil {
		return "", fmt.Errorf("settlement: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("settlement: creating GCM: %w", err)
	}

	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("settlement: decryption failed (wrong password?): %w", err)
	}
	return fmt.Sprintf("%x", plain), nil
}
