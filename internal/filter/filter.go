// internal/filter/filter.go

// Package filter turns natural-language selection criteria into the
// structured, schema-validated filter maps consumed by the deletion
// gateway.
package filter

import (
	"fmt"
	"sort"

	"github.com/user/labkeeper/internal/labdb"
)

// Map is a structured selection criterion: field name to scalar value.
// Every key must belong to the closed vocabulary; it is produced fresh per
// turn and consumed exactly once by the deletion gateway.
type Map map[string]any

// Reason classifies why a criterion could not be resolved.
type Reason string

const (
	ReasonAmbiguous         Reason = "ambiguous"
	ReasonIncomplete        Reason = "incomplete"
	ReasonUnsupportedFields Reason = "unsupported_fields"
	ReasonOffTopic          Reason = "off_topic"
)

// ResolveError is the structured failure contract of the resolver. Callers
// branch on Reason, never on message text.
type ResolveError struct {
	Reason  Reason
	Message string
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// Validate checks every key of the map against the closed vocabulary.
// An unrecognized key is a hard error, never silently dropped.
func Validate(m Map) error {
	vocab, err := labdb.LoadVocabulary()
	if err != nil {
		return err
	}

	var unknown []string
	for field := range m {
		if !vocab.KnownFilter(field) {
			unknown = append(unknown, field)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return &ResolveError{
			Reason:  ReasonUnsupportedFields,
			Message: fmt.Sprintf("unsupported fields: %v", unknown),
		}
	}
	if len(m) == 0 {
		return &ResolveError{
			Reason:  ReasonIncomplete,
			Message: "no filter fields were provided",
		}
	}
	return nil
}
