package login

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// CodeGenerator produces the one time code typed on the 2FA page.
type CodeGenerator interface {
	Code(secret string) (string, error)
}

// TOTP generates RFC 6238 codes: SHA-1, six digits, 30 second period.
type TOTP struct {
	// Now defaults to time.Now.
	Now func() time.Time
}

// Code derives the current code from a base32 secret as shown by the
// provider, which may include spaces and lowercase letters.
func (g TOTP) Code(secret string) (string, error) {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	code, err := totp.GenerateCodeCustom(NormalizeSecret(secret), now(), totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate totp code: %w", err)
	}
	return code, nil
}

// NormalizeSecret strips whitespace and upper-cases a base32 secret.
func NormalizeSecret(secret string) string {
	return strings.ToUpper(strings.Join(strings.Fields(secret), ""))
}
