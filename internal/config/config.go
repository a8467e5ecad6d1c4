package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	EnvConfigPath     = "MOMENTUM_CONFIG"
	DefaultConfigPath = "configs/config.yaml"
	envPrefix         = "MOMENTUM"
)

// envKeys can be overridden with MOMENTUM_<SECTION>_<KEY>, e.g.
// MOMENTUM_DATA_PROXY_URL.
var envKeys = []string{
	"app.env",
	"app.log_level",
	"app.log_path",
	"app.http_addr",
	"data.candle_db_dir",
	"data.results_db_path",
	"data.source",
	"data.proxy_url",
}

// ResolvePath picks the config file: an explicit path, then MOMENTUM_CONFIG,
// then configs/config.yaml.
func ResolvePath(explicit string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	return DefaultConfigPath
}

// Load reads path and its includes (included files first, the including file
// last so it wins), applies environment overrides, decodes, fills unset keys
// with defaults and validates.
func Load(path string) (*Config, error) {
	files, err := newIncludeResolver().resolve(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigType("yaml")
	for _, file := range files {
		part := viper.New()
		part.SetConfigFile(file)
		if err := part.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
		if err := v.MergeConfigMap(part.AllSettings()); err != nil {
			return nil, fmt.Errorf("merge config %s: %w", file, err)
		}
	}
	for _, key := range envKeys {
		env := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	keys := make(keySet)
	markKeys("", v.AllSettings(), keys)
	cfg.applyDefaults(keys)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// includeResolver orders a config file after everything it includes.
// Relative includes resolve against the including file's directory.
type includeResolver struct {
	done   map[string]bool
	active map[string]bool
	order  []string
}

func newIncludeResolver() *includeResolver {
	return &includeResolver{done: map[string]bool{}, active: map[string]bool{}}
}

func (r *includeResolver) resolve(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if err := r.visit(abs); err != nil {
		return nil, err
	}
	return r.order, nil
}

func (r *includeResolver) visit(path string) error {
	path = filepath.Clean(path)
	switch {
	case r.active[path]:
		return fmt.Errorf("include cycle detected: %s", path)
	case r.done[path]:
		return nil
	}
	r.active[path] = true
	includes, err := readIncludes(path)
	if err != nil {
		return fmt.Errorf("read includes of %s: %w", path, err)
	}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		if err := r.visit(inc); err != nil {
			return err
		}
	}
	delete(r.active, path)
	r.done[path] = true
	r.order = append(r.order, path)
	return nil
}

func readIncludes(path string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if !v.IsSet("include") {
		return nil, nil
	}
	if _, ok := v.Get("include").([]any); !ok {
		return nil, fmt.Errorf("include must be a list of paths")
	}
	var out []string
	for _, inc := range v.GetStringSlice("include") {
		if inc = strings.TrimSpace(inc); inc != "" {
			out = append(out, inc)
		}
	}
	return out, nil
}

// markKeys records every leaf path present in the merged settings, so
// defaults only fill keys the user never wrote. Lists count as leaves,
// which keeps an explicit empty list.
func markKeys(prefix string, node any, keys keySet) {
	settings, ok := node.(map[string]any)
	if !ok {
		keys.mark(prefix)
		return
	}
	for k, child := range settings {
		path := strings.ToLower(strings.TrimSpace(k))
		if path == "" {
			continue
		}
		if prefix != "" {
			path = prefix + "." + path
		}
		markKeys(path, child, keys)
	}
}
