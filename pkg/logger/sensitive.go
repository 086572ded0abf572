package logger

import (
	"strings"

	"go.uber.org/zap"
)

// Credential material must never reach the log stream in plaintext. Token
// returns a field with the value partially masked; anything shorter than
// minMaskLength is masked entirely.

const (
	maskValue     = "***"
	showFirst     = 4
	minMaskLength = 12
)

// Token returns a log field with the token value masked.
func Token(key, value string) zap.Field {
	return zap.String(key, MaskToken(value))
}

// MaskToken masks a token value, keeping a short identifying prefix.
func MaskToken(value string) string {
	if value == "" {
		return ""
	}
	if len(value) < minMaskLength {
		return maskValue
	}
	return value[:showFirst] + maskValue
}

// MaskAuthorization masks the credential part of an Authorization header
// value, preserving the scheme.
func MaskAuthorization(value string) string {
	scheme, rest, found := strings.Cut(value, " ")
	if !found {
		return MaskToken(value)
	}
	return scheme + " " + MaskToken(rest)
}
