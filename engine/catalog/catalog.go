// Package catalog holds the closed, static set of known game bugs that the
// answer service seeds into the vector store.
package catalog

import (
	"fmt"
	"strings"

	"github.com/WessleyAI/bugbot/engine/domain"
)

// BugRecord is a single known issue.
type BugRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Text returns the string that gets embedded for this record.
func (b BugRecord) Text() string {
	return b.Title + ". " + b.Description
}

// Validate checks that every record has a non-empty id, title and
// description and that ids are unique.
func Validate(records []BugRecord) error {
	seen := make(map[string]bool, len(records))
	for i, r := range records {
		switch {
		case strings.TrimSpace(r.ID) == "":
			return domain.NewValidationError(fmt.Sprintf("records[%d].id", i), r.ID, domain.ErrInvalidRecord)
		case strings.TrimSpace(r.Title) == "":
			return domain.NewValidationError(r.ID+".title", r.Title, domain.ErrInvalidRecord)
		case strings.TrimSpace(r.Description) == "":
			return domain.NewValidationError(r.ID+".description", r.Description, domain.ErrInvalidRecord)
		}
		if seen[r.ID] {
			return domain.NewValidationError(r.ID+".id", r.ID, fmt.Errorf("%w: duplicate id", domain.ErrInvalidRecord))
		}
		seen[r.ID] = true
	}
	return nil
}

// Bugs returns a copy of the built-in catalog.
func Bugs() []BugRecord {
	out := make([]BugRecord, len(bugs))
	copy(out, bugs)
	return out
}
