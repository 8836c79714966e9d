package schema

import (
	"encoding/json"
	"fmt"
)

type FormField struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
}

type FormStructure struct {
	Fields []FormField `json:"fields"`
}

func ParseFormStructure(data []byte) (FormStructure, error) {
	var structure FormStructure
	if err := json.Unmarshal(data, &structure); err != nil {
		return FormStructure{}, fmt.Errorf("invalid form structure: %w", err)
	}

	seen := map[string]struct{}{}
	for _, field := range structure.Fields {
		if field.Name == "" {
			return FormStructure{}, fmt.Errorf("form structure contains a field with no name")
		}
		if _, ok := seen[field.Name]; ok {
			return FormStructure{}, fmt.Errorf("form structure contains duplicate field '%v'", field.Name)
		}
		seen[field.Name] = struct{}{}
	}

	return structure, nil
}

// ValidateAnswers checks that every required field has a key in the answer
// mapping. Values are not type checked, presence is the only criterion.
func (s *FormStructure) ValidateAnswers(answers map[string]json.RawMessage) error {
	for _, field := range s.Fields {
		if !field.Required {
			continue
		}
		if _, ok := answers[field.Name]; !ok {
			return fmt.Errorf("missing required field '%v'", field.Name)
		}
	}
	return nil
}
