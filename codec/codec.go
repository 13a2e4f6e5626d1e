// Package codec centralizes the encoding of structured resource content and
// command output.
package codec

import "fmt"

// Codec turns values into bytes and back. Implementations are stateless and
// safe for concurrent use.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Default is the codec used when none is given.
var Default Codec = JSON{}

// Names lists the built-in codecs in a stable order.
var Names = []string{"json", "yaml"}

// ByName returns a built-in codec. "yml" is accepted for "yaml".
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "yaml", "yml":
		return YAML{}, true
	}
	return nil, false
}

// MustMarshal encodes v with c, or with Default if c is nil, and panics on
// failure. It is meant for fixtures whose values always encode.
func MustMarshal(c Codec, v any) []byte {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("codec: %s: %v", c.Name(), err))
	}
	return b
}
