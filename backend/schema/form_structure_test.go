package schema_test

import (
	"encoding/json"
	"testing"

	"formsite/backend/schema"

	"github.com/stretchr/testify/require"
)

func TestParseFormStructure(t *testing.T) {
	structure, err := schema.ParseFormStructure([]byte(`{
		"fields": [
			{"name": "email", "type": "text", "label": "Email", "required": true},
			{"name": "notes", "type": "textarea", "label": "Notes"}
		]
	}`))
	require.NoError(t, err)
	require.Len(t, structure.Fields, 2)
	require.True(t, structure.Fields[0].Required)
	require.False(t, structure.Fields[1].Required)

	_, err = schema.ParseFormStructure([]byte(`{"fields": [{"type": "text"}]}`))
	require.Error(t, err)

	_, err = schema.ParseFormStructure([]byte(`{"fields": [{"name": "a"}, {"name": "a"}]}`))
	require.Error(t, err)

	_, err = schema.ParseFormStructure([]byte(`not json`))
	require.Error(t, err)
}

func TestValidateAnswers(t *testing.T) {
	structure, err := schema.ParseFormStructure([]byte(`{
		"fields": [
			{"name": "email", "required": true},
			{"name": "notes"}
		]
	}`))
	require.NoError(t, err)

	answers := map[string]json.RawMessage{"email": json.RawMessage(`"a@b.com"`)}
	require.NoError(t, structure.ValidateAnswers(answers))

	// Optional fields may be omitted, required fields may not.
	require.Error(t, structure.ValidateAnswers(map[string]json.RawMessage{"notes": json.RawMessage(`"x"`)}))

	// Presence is enough, values are not type checked.
	require.NoError(t, structure.ValidateAnswers(map[string]json.RawMessage{"email": json.RawMessage(`null`)}))
}
