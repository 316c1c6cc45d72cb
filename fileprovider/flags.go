package fileprovider

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/launchdarkly/flutter-client-bridge/util"
)

const (
	StateEnabled  = "ENABLED"
	StateDisabled = "DISABLED"
)

// Flag is one entry of a flag file. A disabled flag always serves the caller's default.
type Flag struct {
	Variations       []interface{} `json:"variations"`
	DefaultVariation int           `json:"defaultVariation"`
	State            string        `json:"state,omitempty"`
}

func (f Flag) enabled() bool {
	return f.State != StateDisabled
}

type flagFile struct {
	Flags map[string]Flag `json:"flags"`
}

const flagFileSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["flags"],
  "properties": {
    "flags": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["variations", "defaultVariation"],
        "additionalProperties": false,
        "properties": {
          "variations": {"type": "array", "minItems": 1},
          "defaultVariation": {"type": "integer", "minimum": 0},
          "state": {"enum": ["ENABLED", "DISABLED"]}
        }
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(flagFileSchema)

var ErrInvalidFlagFile = errors.New("invalid flag file")

// Parse validates raw against the flag file schema and returns its flags by key.
func Parse(raw []byte) (map[string]Flag, error) {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFlagFile, err)
	}
	if !result.Valid() {
		messages := make([]string, len(result.Errors()))
		for i, e := range result.Errors() {
			messages[i] = e.String()
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidFlagFile, strings.Join(messages, "; "))
	}

	var file flagFile
	if err = util.Decode(raw, &file, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFlagFile, err)
	}
	for key, flag := range file.Flags {
		if flag.DefaultVariation >= len(flag.Variations) {
			return nil, fmt.Errorf("%w: %s has no variation %d", ErrInvalidFlagFile, key, flag.DefaultVariation)
		}
	}
	if file.Flags == nil {
		file.Flags = map[string]Flag{}
	}
	return file.Flags, nil
}

// changedKeys lists the keys added, removed or modified between two flag sets, sorted.
func changedKeys(previous, current map[string]Flag) []string {
	var keys []string
	for key, flag := range current {
		if old, ok := previous[key]; !ok || !reflect.DeepEqual(old, flag) {
			keys = append(keys, key)
		}
	}
	for key := range previous {
		if _, ok := current[key]; !ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}
