package credential

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"unicode"
)

const (
	MaxCourseNameLen  = 100
	MaxContentHashLen = 256
	MaxTokenURILen    = 2048
	contentHashPrefix = "sha256:"
)

// DigestContent hashes r and returns a content hash suitable for
// IssueCertificate. The content itself is never stored.
func DigestContent(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("digest content: %w", err)
	}
	return contentHashPrefix + hex.EncodeToString(h.Sum(nil)), nil
}

// ValidateContentHash checks the opaque digest recorded on a certificate.
// Any scheme is accepted as long as it is non-empty, bounded and free of
// whitespace.
func ValidateContentHash(s string) error {
	if s == "" {
		return fmt.Errorf("content hash is required")
	}
	if len(s) > MaxContentHashLen {
		return fmt.Errorf("content hash exceeds %d characters", MaxContentHashLen)
	}
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return fmt.Errorf("content hash must not contain whitespace")
	}
	return nil
}

// ValidateTokenURI checks the optional metadata pointer.
func ValidateTokenURI(s string) error {
	if len(s) > MaxTokenURILen {
		return fmt.Errorf("token uri exceeds %d characters", MaxTokenURILen)
	}
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return fmt.Errorf("token uri must not contain whitespace")
	}
	return nil
}
