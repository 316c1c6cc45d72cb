package util

import (
	"bytes"
	"encoding/json"
)

// JSONConfig provides centralized JSON configuration for consistent serialization behavior
type JSONConfig struct {
	// DisallowUnknownFields controls whether unknown fields should be rejected
	DisallowUnknownFields bool
	// UseNumber controls whether numbers should be decoded as json.Number
	UseNumber bool
}

// DefaultConfig returns the default JSON configuration. Numbers decode to float64, which is
// the representation the bridge uses for every numeric flag value.
func DefaultConfig() *JSONConfig {
	return &JSONConfig{
		DisallowUnknownFields: false,
		UseNumber:             false,
	}
}

// StrictConfig returns a strict JSON configuration that disallows unknown fields
func StrictConfig() *JSONConfig {
	return &JSONConfig{
		DisallowUnknownFields: true,
		UseNumber:             false,
	}
}

// Decode decodes JSON data using the specified configuration
func Decode(data []byte, v interface{}, config *JSONConfig) error {
	if config == nil {
		config = DefaultConfig()
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	if config.DisallowUnknownFields {
		decoder.DisallowUnknownFields()
	}
	if config.UseNumber {
		decoder.UseNumber()
	}
	return decoder.Decode(v)
}

// Encode encodes data to JSON using the specified configuration
func Encode(v interface{}, config *JSONConfig) ([]byte, error) {
	if config == nil {
		config = DefaultConfig()
	}

	return json.Marshal(v)
}
