package manifest

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaSource string

// Validate checks a decoded manifest document against the #Manifest schema.
// Unknown sections and fields are rejected.
func Validate(doc map[string]any) error {
	if doc == nil {
		doc = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Manifest"))

	v := ctx.Encode(doc)
	if err := v.Err(); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return err
	}
	return nil
}
