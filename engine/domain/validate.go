// Package domain defines the error taxonomy and input validation shared by the
// answer service and its presentation layers.
package domain

import "strings"

// ValidateQuery rejects empty or whitespace-only query text.
func ValidateQuery(text string) error {
	if strings.TrimSpace(text) == "" {
		return NewValidationError("query", text, ErrEmptyQuery)
	}
	return nil
}
