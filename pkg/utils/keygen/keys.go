package keygen

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	urlSafeCharset  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_"
	passwordCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#%^*-_=+"
)

// GenerateToken returns a URL-safe random string of the given length.
func GenerateToken(length int) (string, error) {
	return randomString(urlSafeCharset, length)
}

// GeneratePassword generates a secure random password of given length
func GeneratePassword(length int) (string, error) {
	return randomString(passwordCharset, length)
}

func randomString(charset string, length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("keygen: invalid length %d", length)
	}
	max := big.NewInt(int64(len(charset)))
	result := make([]byte, length)
	for i := range result {
		num, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("keygen: %w", err)
		}
		result[i] = charset[num.Int64()]
	}
	return string(result), nil
}
