package services

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// OTPLength is the number of digits in a collection code.
const OTPLength = 6

var otpSpace = big.NewInt(1_000_000)

// NewOTP returns a uniformly random 6-digit code from the OS CSPRNG.
func NewOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpSpace)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", OTPLength, n.Int64()), nil
}

func validOTP(code string) bool {
	if len(code) != OTPLength {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
