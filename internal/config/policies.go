package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/TaomasSpace/clubhall-guard/internal/guard"
)

// PolicyFile is the YAML layout of default antinuke policies:
//
//	policies:
//	  ban:
//	    enabled: true
//	    threshold: 3
//	    punishment: ban
//	  mention-flood:
//	    enabled: true
//	    threshold: 8
//	    punishment: timeout
//	    timeout: 10m
type PolicyFile struct {
	Policies map[string]guard.WindowPolicy `yaml:"policies"`
}

// LoadPolicies parses and validates a policy file.
func LoadPolicies(path string) (map[guard.Category]guard.WindowPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicies(data)
}

func ParsePolicies(data []byte) (map[guard.Category]guard.WindowPolicy, error) {
	var file PolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}

	out := make(map[guard.Category]guard.WindowPolicy, len(file.Policies))
	for name, p := range file.Policies {
		cat, err := guard.ParseCategory(name)
		if err != nil {
			return nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("policy %s: %w", name, err)
		}
		out[cat] = p
	}
	return out, nil
}

// WatchPolicies calls apply with the parsed file whenever it changes, until
// ctx is done. Invalid edits are logged and ignored.
func WatchPolicies(ctx context.Context, path string, log zerolog.Logger, apply func(map[guard.Category]guard.WindowPolicy)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// editors replace the file, so watch the directory
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	target := filepath.Clean(path)

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			debounce = time.After(100 * time.Millisecond)
		case <-debounce:
			debounce = nil
			policies, err := LoadPolicies(path)
			if err != nil {
				log.Warn().Err(err).Str("file", path).Msg("ignoring invalid policy file")
				continue
			}
			apply(policies)
			log.Info().Int("policies", len(policies)).Str("file", path).Msg("default policies reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("policy watcher error")
		}
	}
}
