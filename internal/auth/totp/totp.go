// Package totp generates the broker's time-based one-time passwords from an
// authenticator secret, so the CLI can log in without a phone at hand.
package totp

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Period is the step of the broker's TOTP.
const Period = 30

// normalizeSecret strips the spacing authenticator apps show and upper-cases
// the base32 text.
func normalizeSecret(secret string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
}

// Code returns the six digit code for secret at t.
func Code(secret string, t time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(normalizeSecret(secret), t, totp.ValidateOpts{
		Period:    Period,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate TOTP code: %w", err)
	}
	return code, nil
}

// Validate reports whether code is valid for secret at t, allowing one step
// of clock skew either way.
func Validate(code, secret string, t time.Time) bool {
	ok, err := totp.ValidateCustom(code, normalizeSecret(secret), t, totp.ValidateOpts{
		Period:    Period,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
