package codec

import "gopkg.in/yaml.v3"

// YAML encodes with gopkg.in/yaml.v3. Struct fields use their yaml tags.
type YAML struct{}

func (YAML) Name() string { return "yaml" }

func (YAML) Marshal(v any) ([]byte, error) { return yaml.Marshal(v) }

func (YAML) Unmarshal(data []byte, v any) error { return yaml.Unmarshal(data, v) }
