// Package vault encrypts and decrypts stored credential secrets.
//
// A sealed secret is a bundle of four hex segments, salt:iv:tag:ciphertext.
// The key is derived per bundle from the process passphrase and the bundle's
// salt, so the same plaintext never produces the same bundle twice.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/xkilldash9x/brandpilot/api/schemas"
)

const (
	// MinPassphraseLength is the shortest passphrase accepted for key derivation.
	MinPassphraseLength = 32

	saltSize   = 64
	ivSize     = 16
	tagSize    = 16
	keySize    = 32
	iterations = 100000

	segmentCount = 4
	separator    = ":"
)

var hexSegment = regexp.MustCompile(`(?i)^[0-9a-f]+$`)

// randReader is swapped in tests to exercise entropy failures.
var randReader io.Reader = rand.Reader

// Encrypt seals plaintext under passphrase and returns the hex bundle.
func Encrypt(plaintext, passphrase string) (string, error) {
	if err := checkPassphrase(passphrase); err != nil {
		return "", err
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(randReader, salt); err != nil {
		return "", fmt.Errorf("vault: read salt: %w", err)
	}
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(randReader, iv); err != nil {
		return "", fmt.Errorf("vault: read iv: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	// Seal returns ciphertext || tag.
	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	split := len(sealed) - tagSize
	ciphertext, tag := sealed[:split], sealed[split:]

	return strings.Join([]string{
		hex.EncodeToString(salt),
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	}, separator), nil
}

// Decrypt opens a bundle produced by Encrypt. Malformed or tampered bundles
// and wrong passphrases fail with a DECRYPTION_ERROR; the plaintext is never
// guessed.
func Decrypt(bundle, passphrase string) (string, error) {
	if err := checkPassphrase(passphrase); err != nil {
		return "", err
	}

	parts := strings.Split(bundle, separator)
	if len(parts) != segmentCount {
		return "", decryptionError(fmt.Sprintf("expected %d segments, got %d", segmentCount, len(parts)), nil)
	}

	decoded := make([][]byte, segmentCount)
	for i, part := range parts {
		b, err := hex.DecodeString(part)
		if err != nil {
			return "", decryptionError(fmt.Sprintf("segment %d is not hex", i), err)
		}
		decoded[i] = b
	}
	salt, iv, tag, ciphertext := decoded[0], decoded[1], decoded[2], decoded[3]

	if len(salt) == 0 {
		return "", decryptionError("empty salt", nil)
	}
	if len(iv) != ivSize {
		return "", decryptionError(fmt.Sprintf("iv must be %d bytes, got %d", ivSize, len(iv)), nil)
	}
	if len(tag) != tagSize {
		return "", decryptionError(fmt.Sprintf("tag must be %d bytes, got %d", tagSize, len(tag)), nil)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", decryptionError("authentication failed", err)
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether value has the shape of a sealed bundle: exactly
// four colon separated segments, each made only of hex digits.
func IsEncrypted(value string) bool {
	parts := strings.Split(value, separator)
	if len(parts) != segmentCount {
		return false
	}
	for _, part := range parts {
		if !hexSegment.MatchString(part) {
			return false
		}
	}
	return true
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(passphrase), salt, iterations, keySize, sha512.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("vault: cipher.NewGCM: %w", err)
	}
	return gcm, nil
}

func checkPassphrase(passphrase string) error {
	if passphrase == "" {
		return schemas.NewError(schemas.ErrCodeConfiguration, "vault", "encryption passphrase is not set", nil)
	}
	if len(passphrase) < MinPassphraseLength {
		return schemas.NewError(schemas.ErrCodeConfiguration, "vault",
			fmt.Sprintf("encryption passphrase must be at least %d characters", MinPassphraseLength), nil)
	}
	return nil
}

func decryptionError(msg string, err error) error {
	return schemas.NewError(schemas.ErrCodeDecryption, "decrypt", msg, err)
}
