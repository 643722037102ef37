package vault

// Cipher binds the package functions to one passphrase.
type Cipher struct {
	passphrase string
}

// NewCipher validates passphrase up front so misconfiguration surfaces before
// any secret is touched.
func NewCipher(passphrase string) (*Cipher, error) {
	if err := checkPassphrase(passphrase); err != nil {
		return nil, err
	}
	return &Cipher{passphrase: passphrase}, nil
}

// Seal encrypts value unless it already holds a bundle. Write paths must go
// through Seal: encrypting a bundle again would make it undecryptable to its
// original plaintext.
func (c *Cipher) Seal(value string) (string, error) {
	if IsEncrypted(value) {
		return value, nil
	}
	return Encrypt(value, c.passphrase)
}

// Open decrypts a bundle.
func (c *Cipher) Open(bundle string) (string, error) {
	return Decrypt(bundle, c.passphrase)
}
