package audio

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

const presetExt = ".json"

// PresetManager stores patches as one JSON file per name in a directory.
type PresetManager struct {
	dir string
}

func NewPresetManager(dir string) *PresetManager {
	return &PresetManager{dir: dir}
}

func (pm *PresetManager) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", errors.Errorf("invalid preset name %q", name)
	}
	return filepath.Join(pm.dir, name+presetExt), nil
}

// List returns the preset names in lexical order. A missing directory is empty.
func (pm *PresetManager) List() ([]string, error) {
	entries, err := os.ReadDir(pm.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to read %s", pm.dir)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), presetExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), presetExt))
	}
	sort.Strings(names)
	return names, nil
}

// Load applies the named preset to target.
func (pm *PresetManager) Load(name string, target *Params) error {
	path, err := pm.path(name)
	if err != nil {
		return err
	}
	bytes, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to load preset %s", name)
	}
	return target.ApplyJSON(bytes)
}

// Save writes the current params under name, replacing any existing preset.
func (pm *PresetManager) Save(name string, source *Params) error {
	path, err := pm.path(name)
	if err != nil {
		return err
	}
	bytes, err := source.ToJSON()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(pm.dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", pm.dir)
	}
	if err := os.WriteFile(path, bytes, 0o644); err != nil {
		return errors.Wrapf(err, "failed to save preset %s", name)
	}
	return nil
}
