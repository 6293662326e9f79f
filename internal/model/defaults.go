package model

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Defaults returns the compiled-in content records. Each call returns a
// fresh value, so callers may mutate it.
func Defaults() Records {
	var r Records
	if err := yaml.Unmarshal(defaultsYAML, &r); err != nil {
		// The file is embedded at build time; a parse error is a build defect.
		panic(fmt.Sprintf("model: embedded defaults.yaml is invalid: %v", err))
	}
	return r
}

// DefaultsWithOverride parses an operator-supplied YAML document over the
// compiled-in defaults. Top-level sections missing from override keep their
// compiled-in value; a present links list replaces the default list.
func DefaultsWithOverride(override []byte) (Records, error) {
	r := Defaults()
	if len(override) == 0 {
		return r, nil
	}
	if err := yaml.Unmarshal(override, &r); err != nil {
		return Records{}, fmt.Errorf("model: parsing defaults override: %w", err)
	}
	return r, nil
}
