package config

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/MrWong99/speakerfmt/internal/transcript/resolve"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// DefaultYAML returns the embedded default configuration document. The
// check command prints it as a starting point for user files.
func DefaultYAML() []byte {
	return bytes.Clone(defaultsYAML)
}

// Default returns a fresh copy of the built-in configuration. Prompts come
// from [resolve.DefaultPrompts] so they are defined in one place.
func Default() *Config {
	cfg := &Config{Prompts: resolve.DefaultPrompts()}
	if err := decodeInto(cfg, bytes.NewReader(defaultsYAML)); err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}
