package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// instanceTokenPrefix marks bearer tokens issued to instances.
const instanceTokenPrefix = "tc_"

// instanceTokenBytes is the entropy of an instance token.
const instanceTokenBytes = 32

// GenerateInstanceToken creates a new bearer token for an instance.
func GenerateInstanceToken() (string, error) {
	secret, err := GenerateOpaqueSecret(instanceTokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate instance token: %w", err)
	}
	return instanceTokenPrefix + secret, nil
}

// GenerateOpaqueSecret returns n random bytes encoded as unpadded base64url.
func GenerateOpaqueSecret(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("generate secret: invalid length %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
