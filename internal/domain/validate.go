package domain

import "strings"

// ValidateMessage rejects an absent or blank message. The original text is
// returned untouched; trimming only decides emptiness.
func ValidateMessage(raw *string) (string, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return "", ErrEmptyMessage
	}
	return *raw, nil
}
