package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// envRef matches $$, $NAME, ${NAME}, ${NAME:-fallback} and ${NAME:?message}.
var envRef = regexp.MustCompile(`\$\$|\$\{([A-Za-z_][A-Za-z0-9_]*)(?:(:[-?])([^}]*))?\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// envFiles are read from each directory in order; variables already set win.
var envFiles = []string{".env.local", ".env"}

// MissingEnvError lists ${NAME:?message} references whose variable is unset.
type MissingEnvError struct {
	Refs []string
}

func (e *MissingEnvError) Error() string {
	return "required environment variables are not set: " + strings.Join(e.Refs, "; ")
}

type envExpander struct {
	lookup  func(string) (string, bool)
	missing []string
}

func (x *envExpander) expand(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	return envRef.ReplaceAllStringFunc(s, func(match string) string {
		if match == "$$" {
			return "$"
		}
		m := envRef.FindStringSubmatch(match)
		name, op, arg := m[1], m[2], m[3]
		if name == "" {
			name = m[4]
		}
		val, ok := x.lookup(name)
		switch op {
		case ":-":
			if !ok || val == "" {
				return arg
			}
		case ":?":
			if !ok || val == "" {
				if arg == "" {
					arg = "required"
				}
				x.missing = append(x.missing, name+": "+arg)
			}
		}
		return val
	})
}

// walk expands every string in a decoded YAML tree. A scalar that is a
// single reference is re-typed so ${PORT} can fill an int field.
func (x *envExpander) walk(data interface{}) interface{} {
	switch v := data.(type) {
	case string:
		out := x.expand(v)
		if out != v && isSingleRef(v) {
			return scalar(out)
		}
		return out
	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, value := range v {
			result[key] = x.walk(value)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = x.walk(item)
		}
		return result
	default:
		return v
	}
}

func isSingleRef(s string) bool {
	loc := envRef.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s) && s != "$$"
}

func scalar(s string) interface{} {
	if s == "true" || s == "false" {
		return s == "true"
	}
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// ExpandEnvVarsInData substitutes environment references in every string of
// a decoded YAML tree. Unset ${NAME:?message} references are reported
// together as a *MissingEnvError.
func ExpandEnvVarsInData(data interface{}) (interface{}, error) {
	x := &envExpander{lookup: os.LookupEnv}
	out := x.walk(data)
	if len(x.missing) > 0 {
		return nil, &MissingEnvError{Refs: x.missing}
	}
	return out, nil
}

// LoadEnvFiles loads .env.local then .env from each directory, "." when
// none is given. A directory is visited once.
func LoadEnvFiles(dirs ...string) error {
	if len(dirs) == 0 {
		dirs = []string{"."}
	}
	seen := make(map[string]bool, len(dirs))
	var errs []error
	for _, dir := range dirs {
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
		if seen[dir] {
			continue
		}
		seen[dir] = true
		for _, name := range envFiles {
			path := filepath.Join(dir, name)
			if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, fmt.Errorf("failed to load %s: %w", path, err))
			}
		}
	}
	return errors.Join(errs...)
}
