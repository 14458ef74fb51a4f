package security

import (
	"strings"

	"github.com/pquerna/otp/totp"
)

// totpIssuer labels generated authenticator entries.
const totpIssuer = "Timecard"

// GenerateTOTPSecret creates a new TOTP secret and its otpauth URL.
func GenerateTOTPSecret(account string) (secret string, url string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: account,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

// ValidateTOTP checks a one-time code against secret.
func ValidateTOTP(code, secret string) bool {
	code = strings.TrimSpace(code)
	if code == "" || secret == "" {
		return false
	}
	return totp.Validate(code, secret)
}
