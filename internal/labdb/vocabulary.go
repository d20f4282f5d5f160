// internal/labdb/vocabulary.go
package labdb

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed vocabulary.yaml
var vocabularyYAML []byte

// Vocabulary is the closed set of schema field names usable in filters,
// plus the CSV validation rules for metadata imports.
type Vocabulary struct {
	Filters []string `yaml:"filters"`
	CSV     CSVRules `yaml:"csv"`

	filterSet map[string]bool
}

// CSVRules describes how a metadata CSV is validated before insertion.
type CSVRules struct {
	Required   []string `yaml:"required"`
	Numeric    []string `yaml:"numeric"`
	DateFields []string `yaml:"date_fields"`
	Unique     string   `yaml:"unique"`
}

var (
	vocabOnce sync.Once
	vocab     *Vocabulary
	vocabErr  error
)

// LoadVocabulary parses the embedded vocabulary once and caches it.
func LoadVocabulary() (*Vocabulary, error) {
	vocabOnce.Do(func() {
		v := &Vocabulary{}
		if err := yaml.Unmarshal(vocabularyYAML, v); err != nil {
			vocabErr = fmt.Errorf("parse vocabulary: %w", err)
			return
		}
		v.filterSet = make(map[string]bool, len(v.Filters))
		for _, f := range v.Filters {
			v.filterSet[f] = true
		}
		vocab = v
	})
	return vocab, vocabErr
}

// KnownFilter reports whether the field name is part of the closed
// vocabulary. Field names are matched exactly; no case folding.
func (v *Vocabulary) KnownFilter(field string) bool {
	return v.filterSet[field]
}
