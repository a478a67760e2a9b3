package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed sweep.cue
var sweepSchema []byte

// SweepSchema returns the built-in CUE schema for sweep configurations.
func SweepSchema() []byte { return sweepSchema }

// ValidateWithCue validates a JSON or YAML document against a CUE schema.
// An empty schema selects the built-in sweep schema.
func ValidateWithCue(name string, data, schema []byte) error {
	if len(schema) == 0 {
		schema = sweepSchema
	}
	ctx := cuecontext.New()

	var configVal cue.Value
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		// JSON is valid CUE
		configVal = ctx.CompileBytes(data, cue.Filename(name))
	} else {
		file, err := cueyaml.Extract(name, data)
		if err != nil {
			return fmt.Errorf("cannot parse YAML config: %w", err)
		}
		configVal = ctx.BuildFile(file)
	}
	if configVal.Err() != nil {
		return fmt.Errorf("cannot compile config: %w", configVal.Err())
	}

	schemaVal := ctx.CompileBytes(schema, cue.Filename("schema.cue"))
	if schemaVal.Err() != nil {
		return fmt.Errorf("cannot compile CUE schema: %w", schemaVal.Err())
	}

	final := configVal.Unify(schemaVal)
	if final.Err() != nil {
		return fmt.Errorf("schema unify failed: %w", final.Err())
	}
	if err := final.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// ValidateFile validates configFile against the schema in cueFile, or the
// built-in schema when cueFile is empty.
func ValidateFile(configFile, cueFile string) error {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("cannot read config: %w", err)
	}
	var schema []byte
	if cueFile != "" {
		if schema, err = os.ReadFile(cueFile); err != nil {
			return fmt.Errorf("cannot read CUE schema: %w", err)
		}
	}
	return ValidateWithCue(configFile, data, schema)
}
