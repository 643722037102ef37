package vault

import (
	"errors"
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/brandpilot/api/schemas"
)

const testPassphrase = "0123456789abcdef0123456789abcdef-test"

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	cases := []string{"", "hunter2", "p@ss w0rd with spaces", "JBSWY3DPEHPK3PXP", "ünïcödé 🔑"}
	for _, plaintext := range cases {
		bundle, err := Encrypt(plaintext, testPassphrase)
		require.NoError(t, err)
		assert.True(t, IsEncrypted(bundle) || plaintext == "", "bundle %q should look encrypted", bundle)

		got, err := Decrypt(bundle, testPassphrase)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestEncrypt_BundleLayout(t *testing.T) {
	bundle, err := Encrypt("secret", testPassphrase)
	require.NoError(t, err)

	parts := strings.Split(bundle, ":")
	require.Len(t, parts, 4)
	assert.Len(t, parts[0], saltSize*2, "salt")
	assert.Len(t, parts[1], ivSize*2, "iv")
	assert.Len(t, parts[2], tagSize*2, "tag")
	assert.Len(t, parts[3], len("secret")*2, "ciphertext")
}

func TestEncrypt_NonDeterministic(t *testing.T) {
	a, err := Encrypt("same input", testPassphrase)
	require.NoError(t, err)
	b, err := Encrypt("same input", testPassphrase)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEncrypt_PassphraseValidation(t *testing.T) {
	_, err := Encrypt("x", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrConfiguration)

	_, err = Encrypt("x", strings.Repeat("k", MinPassphraseLength-1))
	assert.ErrorIs(t, err, schemas.ErrConfiguration)

	_, err = Encrypt("x", strings.Repeat("k", MinPassphraseLength))
	assert.NoError(t, err)
}

func TestEncrypt_RandomSourceFailure(t *testing.T) {
	orig := randReader
	t.Cleanup(func() { randReader = orig })
	randReader = failingReader{}

	_, err := Encrypt("x", testPassphrase)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read salt")
}

func TestDecrypt_Failures(t *testing.T) {
	bundle, err := Encrypt("secret", testPassphrase)
	require.NoError(t, err)
	parts := strings.Split(bundle, ":")

	flip := func(s string) string {
		b := []byte(s)
		if b[0] == '0' {
			b[0] = '1'
		} else {
			b[0] = '0'
		}
		return string(b)
	}

	tests := []struct {
		name       string
		bundle     string
		passphrase string
	}{
		{"wrong passphrase", bundle, strings.Repeat("z", 40)},
		{"too few segments", strings.Join(parts[:3], ":"), testPassphrase},
		{"too many segments", bundle + ":00", testPassphrase},
		{"non hex segment", strings.Join([]string{parts[0], parts[1], parts[2], "zz"}, ":"), testPassphrase},
		{"short iv", strings.Join([]string{parts[0], "0011", parts[2], parts[3]}, ":"), testPassphrase},
		{"short tag", strings.Join([]string{parts[0], parts[1], "00", parts[3]}, ":"), testPassphrase},
		{"tampered ciphertext", strings.Join([]string{parts[0], parts[1], parts[2], flip(parts[3])}, ":"), testPassphrase},
		{"tampered tag", strings.Join([]string{parts[0], parts[1], flip(parts[2]), parts[3]}, ":"), testPassphrase},
		{"tampered salt", strings.Join([]string{flip(parts[0]), parts[1], parts[2], parts[3]}, ":"), testPassphrase},
		{"plaintext", "plainPassword1", testPassphrase},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decrypt(tt.bundle, tt.passphrase)
			require.Error(t, err)
			assert.Empty(t, got)
			assert.ErrorIs(t, err, schemas.ErrDecryption)
		})
	}
}

func TestDecrypt_EmptyPassphraseIsConfigurationError(t *testing.T) {
	_, err := Decrypt("00:00:00:00", "")
	assert.ErrorIs(t, err, schemas.ErrConfiguration)
}

func TestIsEncrypted(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"plainPassword1", false},
		{"a:b:c", false},
		{"zz:11:22:33", false},
		{"aa:bb:cc:dd", true},
		{"AA:bb:0C:d9", true},
		{"aa:bb:cc:dd:ee", false},
		{"aa::cc:dd", false},
		{"", false},
		{":::", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsEncrypted(tt.value), "IsEncrypted(%q)", tt.value)
	}
}

func TestCipher_SealSkipsBundles(t *testing.T) {
	c, err := NewCipher(testPassphrase)
	require.NoError(t, err)

	sealed, err := c.Seal("hunter2")
	require.NoError(t, err)
	assert.True(t, IsEncrypted(sealed))

	again, err := c.Seal(sealed)
	require.NoError(t, err)
	assert.Equal(t, sealed, again, "sealing a bundle must be a no-op")

	opened, err := c.Open(again)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", opened)
}

func TestNewCipher_RejectsShortPassphrase(t *testing.T) {
	_, err := NewCipher("short")
	assert.ErrorIs(t, err, schemas.ErrConfiguration)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("no entropy") }

func FuzzDecrypt(f *testing.F) {
	f.Add([]byte("aa:bb:cc:dd"))
	f.Add([]byte("plainPassword1"))
	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		bundle, err := consumer.GetString()
		if err != nil {
			return
		}
		// Random input must never decrypt and never panic.
		got, err := Decrypt(bundle, testPassphrase)
		if err == nil {
			t.Fatalf("unexpected successful decrypt of %q to %q", bundle, got)
		}
		if code := schemas.CodeOf(err); code != schemas.ErrCodeDecryption {
			t.Fatalf("unexpected code %q for %q", code, bundle)
		}
	})
}
