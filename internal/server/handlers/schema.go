// Describes the submission document as JSON Schema.

package handlers

import (
	"context"

	"github.com/invopop/jsonschema"

	"github.com/whintake/whintake/internal/schema"
	"github.com/whintake/whintake/internal/server/dto"
)

// SchemaHandler serves the JSON Schema of the submit body.
type SchemaHandler struct {
	schema *jsonschema.Schema
}

// NewSchemaHandler builds the schema from the field registry.
func NewSchemaHandler() *SchemaHandler {
	return &SchemaHandler{schema: SubmissionSchema()}
}

// Schema returns the submission schema.
func (h *SchemaHandler) Schema(ctx context.Context, _ *dto.SchemaRequest) (*jsonschema.Schema, error) {
	return h.schema, nil
}

// SubmissionSchema describes POST /api/submit bodies. Properties are in
// registry order. Unknown properties are allowed and ignored.
func SubmissionSchema() *jsonschema.Schema {
	s := &jsonschema.Schema{
		Version:              jsonschema.Version,
		Title:                "Submission",
		Type:                 "object",
		Properties:           jsonschema.NewProperties(),
		Required:             []string{schema.ColumnSessionDate},
		AdditionalProperties: jsonschema.TrueSchema,
	}
	for _, f := range schema.Fields() {
		s.Properties.Set(f.Name, fieldSchema(&f))
	}
	return s
}

func fieldSchema(f *schema.Field) *jsonschema.Schema {
	if f.Name == schema.ColumnSessionDate {
		return &jsonschema.Schema{Type: "string", Description: "Date of the session."}
	}
	scalars := []*jsonschema.Schema{
		{Type: "string"},
		{Type: "number"},
		{Type: "boolean"},
		{Type: "null"},
	}
	out := &jsonschema.Schema{AnyOf: scalars}
	switch {
	case f.MultiSelect:
		out.AnyOf = append(out.AnyOf, &jsonschema.Schema{Type: "array", Items: &jsonschema.Schema{Type: "string"}})
		out.Description = "One value, or several joined with \"" + schema.MultiSeparator + "\"."
	case f.Flag:
		out.Default = schema.FlagDefault
	}
	return out
}
