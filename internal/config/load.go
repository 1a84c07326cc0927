package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// LoadOptions selects the sources of a configuration.
type LoadOptions struct {
	// Path of the TOML file; DefaultFile when empty.
	Path string
	// Environ replaces os.Environ() when non-nil.
	Environ []string
	// PublicAddress overrides public.address when set.
	PublicAddress string
}

// Load reads the configuration file, overlays DOZER_ environment variables
// and command line overrides, then decodes and validates the result.
// A missing file is accepted when DOZER_ variables are present.
func Load(opts LoadOptions) (*Config, error) {
	path := opts.Path
	if path == "" {
		path = DefaultFile
	}
	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}

	v := viper.New()
	v.SetConfigType("toml")
	defaults := map[string]any{}
	for _, k := range flatten("", Defaults(), defaults) {
		// a missing version must stay detectable
		if k == "config.version" {
			continue
		}
		v.SetDefault(k, defaults[k])
	}

	env := envOverrides(environ)
	var loadedFrom string
	switch _, err := os.Stat(path); {
	case err == nil:
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if abs, err := filepath.Abs(path); err == nil {
			loadedFrom = abs
		} else {
			loadedFrom = path
		}
	case errors.Is(err, fs.ErrNotExist):
		if len(env) == 0 {
			return nil, fmt.Errorf("%w: config file %s does not exist\nhint: run `dozer config generate` or configure dozer through %s environment variables", ErrNoConfig, path, EnvPrefix)
		}
	default:
		return nil, fmt.Errorf("stat config %s: %w", path, err)
	}

	for alias, key := range keyAliases {
		if v.InConfig(alias) && !v.InConfig(key) {
			v.Set(key, v.Get(alias))
		}
	}
	for k, val := range env {
		v.Set(k, val)
	}
	if opts.PublicAddress != "" {
		v.Set("public.address", opts.PublicAddress)
	}

	var c Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationHook(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&c, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.Path = loadedFrom
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// durationHook decodes durations from integer seconds or Go duration strings.
func durationHook() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(_ reflect.Type, t reflect.Type, data any) (any, error) {
		if t != durationType {
			return data, nil
		}
		switch d := data.(type) {
		case time.Duration:
			return d, nil
		case int:
			return time.Duration(d) * time.Second, nil
		case int64:
			return time.Duration(d) * time.Second, nil
		case uint64:
			return time.Duration(d) * time.Second, nil
		case float64:
			return time.Duration(d * float64(time.Second)), nil
		case string:
			s := strings.TrimSpace(d)
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return time.Duration(n) * time.Second, nil
			}
			dur, err := time.ParseDuration(s)
			if err != nil {
				return nil, fmt.Errorf("invalid duration %q: use seconds or a value like 90s", d)
			}
			return dur, nil
		}
		return data, nil
	}
}
