package variables

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to variable names when they are looked up in the
// process environment.
const EnvPrefix = "ELGRID_VAR"

// Store is a read-only key/value source of grid variables.
type Store interface {
	Get(name string) (string, bool)
}

// Options configures a viper-backed store.
type Options struct {
	// File is an optional variables file (YAML, JSON, TOML, ...).
	File string
}

// Viper is a Store backed by the environment and an optional file.
type Viper struct {
	v *viper.Viper
}

// New builds a Store from the environment and, if set, a variables file.
// Environment values win over file values.
func New(opts Options) (*Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading variables file %s: %w", opts.File, err)
		}
	}
	return &Viper{v: v}, nil
}

// Get returns the raw value for name. Structured values from a variables
// file (maps, lists) come back as their JSON encoding so that `json = true`
// variables read the same regardless of where they were set.
func (s *Viper) Get(name string) (string, bool) {
	if !s.v.IsSet(name) {
		return "", false
	}
	switch val := s.v.Get(name).(type) {
	case map[string]any, []any:
		raw, err := json.Marshal(val)
		if err != nil {
			return "", false
		}
		return string(raw), true
	default:
		return cast.ToString(val), true
	}
}

// Map is an in-memory Store, used by tests and embedders.
type Map map[string]string

// Get implements Store.
func (m Map) Get(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}
