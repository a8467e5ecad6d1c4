package profile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"momentum/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Snapshot is a read-only copy of the loaded presets.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Presets  map[string]Preset
}

// ChangeListener runs after every successful reload.
type ChangeListener func(Snapshot)

// Registry holds strategy presets and reloads them when the file changes.
// A failed reload keeps the previous set.
type Registry struct {
	path   string
	v      *viper.Viper
	schema *jsonschema.Schema

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewRegistry reads path and starts watching it.
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("preset registry requires path")
	}
	schema, err := compileSchema(presetSchema)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read preset file failed: %w", err)
	}
	r := &Registry{path: path, v: v, schema: schema}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if evt.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		if err := r.reload(); err != nil {
			logger.Errorf("[profile] reload failed (%s): %v", evt.Name, err)
			return
		}
		r.notify()
	})
	v.WatchConfig()
	return r, nil
}

// NewStatic builds a registry that never reloads.
func NewStatic(presets ...Preset) (*Registry, error) {
	r := &Registry{snapshot: Snapshot{Version: 1, LoadedAt: time.Now(), Presets: make(map[string]Preset, len(presets))}}
	for _, p := range presets {
		norm, err := normalizePreset(p.Name, p)
		if err != nil {
			return nil, err
		}
		r.snapshot.Presets[norm.Name] = norm
	}
	return r, nil
}

func (r *Registry) Get(name string) (Preset, bool) {
	if r == nil {
		return Preset{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.snapshot.Presets[strings.TrimSpace(name)]
	return p, ok
}

// Default returns the preset flagged default, if any.
func (r *Registry) Default() (Preset, bool) {
	for _, p := range r.List() {
		if p.Default {
			return p, true
		}
	}
	return Preset{}, false
}

// List returns the presets sorted by name.
func (r *Registry) List() []Preset {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedPresets(r.snapshot.Presets)
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Subscribe registers fn; it runs on its own goroutine after each reload.
func (r *Registry) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) reload() error {
	cfg, raw, err := readPresetFile(r.path)
	if err != nil {
		return err
	}
	presets := make(map[string]Preset, len(cfg.Presets))
	defaults := 0
	for name, p := range cfg.Presets {
		if err := r.validate(name, raw[name]); err != nil {
			return err
		}
		norm, err := normalizePreset(name, p)
		if err != nil {
			return err
		}
		if norm.Default {
			defaults++
		}
		presets[norm.Name] = norm
	}
	if defaults > 1 {
		return fmt.Errorf("%d presets flagged default", defaults)
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Presets:  presets,
	}
	r.mu.Unlock()
	logger.Infof("[profile] loaded %d presets from %s", len(presets), filepath.Base(r.path))
	return nil
}

func (r *Registry) validate(name string, doc any) error {
	if r.schema == nil {
		return nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("preset %s: %w", name, err)
	}
	var val any
	d := json.NewDecoder(bytes.NewReader(raw))
	d.UseNumber()
	if err := d.Decode(&val); err != nil {
		return fmt.Errorf("preset %s: %w", name, err)
	}
	if err := r.schema.Validate(val); err != nil {
		return fmt.Errorf("preset %s: %w", name, err)
	}
	return nil
}

func (r *Registry) notify() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Errorf("[profile] listener panic: %v", rec)
				}
			}()
			cb(snap)
		}(fn)
	}
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:  src.Version,
		LoadedAt: src.LoadedAt,
		Presets:  make(map[string]Preset, len(src.Presets)),
	}
	for name, p := range src.Presets {
		dst.Presets[name] = p
	}
	return dst
}

func compileSchema(doc string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("preset.json", strings.NewReader(doc)); err != nil {
		return nil, err
	}
	return compiler.Compile("preset.json")
}

// readPresetFile decodes the file strictly and also returns each preset as a
// generic document for schema validation.
func readPresetFile(path string) (FileConfig, map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, nil, fmt.Errorf("read preset file failed: %w", err)
	}
	// editors truncate before writing; an empty read is never a real preset set
	if len(bytes.TrimSpace(raw)) == 0 {
		return FileConfig{}, nil, errors.New("preset file is empty")
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, nil, fmt.Errorf("parse preset file failed: %w", err)
	}
	var generic struct {
		Presets map[string]any `yaml:"presets"`
	}
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return FileConfig{}, nil, fmt.Errorf("parse preset file failed: %w", err)
	}
	return cfg, generic.Presets, nil
}
