package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load reads the YAML file at path, expands environment references and
// applies defaults. An empty path yields the zero-config defaults.
func Load(path string) (*Config, error) {
	dirs := []string{"."}
	if path != "" {
		dirs = append(dirs, filepath.Dir(path))
	}
	if err := LoadEnvFiles(dirs...); err != nil {
		return nil, err
	}

	if path == "" {
		slog.Debug("No config file given, using defaults")
		cfg := Default()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	return fromKoanf(k)
}

// LoadBytes parses YAML content. Used by validate and tests.
func LoadBytes(content []byte) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(rawBytes(content), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return fromKoanf(k)
}

func fromKoanf(k *koanf.Koanf) (*Config, error) {
	data, err := ExpandEnvVarsInData(k.Raw())
	if err != nil {
		return nil, err
	}
	expanded, ok := data.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected type after env var expansion")
	}

	k = koanf.New(".")
	if err := k.Load(confmap.Provider(expanded, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load expanded config: %w", err)
	}

	if unknown := unknownKeys(k.Keys()); len(unknown) > 0 {
		return nil, fmt.Errorf("configuration has unknown fields: %s", strings.Join(unknown, ", "))
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

type rawBytes []byte

func (b rawBytes) ReadBytes() ([]byte, error) { return b, nil }

func (b rawBytes) Read() (map[string]interface{}, error) {
	return nil, fmt.Errorf("raw bytes provider does not support Read")
}

// unknownKeys reports flattened keys that do not map onto a yaml-tagged
// field of Config. Map-typed fields accept any sub-key.
func unknownKeys(keys []string) []string {
	var unknown []string
	root := reflect.TypeOf(Config{})
	for _, key := range keys {
		if !knownPath(root, strings.Split(key, ".")) {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}

func knownPath(t reflect.Type, parts []string) bool {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if len(parts) == 0 {
		return true
	}
	switch t.Kind() {
	case reflect.Map:
		return true
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			name := strings.Split(field.Tag.Get("yaml"), ",")[0]
			if name == parts[0] {
				return knownPath(field.Type, parts[1:])
			}
		}
		return false
	default:
		return false
	}
}
