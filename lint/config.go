package lint

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/gnolang/closelint/internal"
	tt "github.com/gnolang/closelint/internal/types"
)

// DefaultConfigFile is looked up in the working directory when no
// configuration path is given.
const DefaultConfigFile = ".closelint.yaml"

// Config represents the overall configuration with a name and a slice of rules.
type Config struct {
	Name  string                   `yaml:"name"`
	Rules map[string]tt.ConfigRule `yaml:"rules"`

	// Factories and Borrowed are qualified function names, as in ignore lists.
	Factories []string `yaml:"factories,omitempty"`
	Borrowed  []string `yaml:"borrowed,omitempty"`

	IgnoreFiles  []string `yaml:"ignore-files,omitempty"`
	ExcludePaths []string `yaml:"exclude-paths,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Name:         "closelint",
		Rules:        internal.DefaultRules(),
		ExcludePaths: []string{"vendor/", "testdata/"},
	}
}

// LoadConfig reads the configuration at path. A missing file yields the
// defaults. Relative ignore files are resolved against the file's directory.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config, nil
	}
	if err != nil {
		return config, fmt.Errorf("error reading configuration: %w", err)
	}

	var parsed Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&parsed); err != nil {
		return config, fmt.Errorf("error parsing configuration %s: %w", path, err)
	}

	if parsed.Name != "" {
		config.Name = parsed.Name
	}
	for name, rule := range parsed.Rules {
		config.Rules[name] = rule
	}
	config.Factories = parsed.Factories
	config.Borrowed = parsed.Borrowed
	if parsed.ExcludePaths != nil {
		config.ExcludePaths = parsed.ExcludePaths
	}
	dir := filepath.Dir(path)
	for _, file := range parsed.IgnoreFiles {
		if !filepath.IsAbs(file) {
			file = filepath.Join(dir, file)
		}
		config.IgnoreFiles = append(config.IgnoreFiles, file)
	}

	return config, nil
}

// WriteConfig stores config at path in the format LoadConfig reads.
func WriteConfig(path string, config Config) error {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("error encoding configuration: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Fingerprint identifies the analysis settings of config, for the result cache.
func (c Config) Fingerprint() string {
	out, err := yaml.Marshal(c)
	if err != nil {
		return ""
	}
	return string(out)
}
