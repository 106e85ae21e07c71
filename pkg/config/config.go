// Package config loads the farm configuration from TOML, merges it with
// process flags (an explicit flag always beats the file), and handles YAML
// identity rosters.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"chorus/pkg/protocol"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DefaultMasterName is used when the config file does not set one.
const DefaultMasterName = "PokeBot"

// File mirrors the on-disk TOML configuration.
type File struct {
	MasterName  string              `toml:"master_name"`
	Address     string              `toml:"address"`
	Channel     string              `toml:"channel"`
	Verbose     int                 `toml:"verbose"`
	Domain      string              `toml:"domain"`
	BindAddress string              `toml:"bind_address"`
	WebEnable   bool                `toml:"web_enable"`
	Names       []string            `toml:"names"`
	ID          *protocol.Identity  `toml:"id"`
	IDs         []protocol.Identity `toml:"ids"`
	IDsFile     string              `toml:"ids_file"`
	Local       bool                `toml:"local"`
}

// Overrides are the process flags that may shadow file values. Zero values
// mean "not given" (verbose follows the reference semantics: only a value
// greater than zero overrides).
type Overrides struct {
	Address string
	Channel string
	Verbose int
	Local   bool
}

// Load reads and parses the TOML file at path and resolves an external
// identity roster if ids_file is set and no inline ids are present.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // config path comes from the operator
	if err != nil {
		return File{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if f.MasterName == "" {
		f.MasterName = DefaultMasterName
	}
	if f.IDsFile != "" && len(f.IDs) == 0 {
		ids, err := LoadRoster(f.IDsFile)
		if err != nil {
			return File{}, err
		}
		f.IDs = ids
	}
	return f, nil
}

// Merge applies flag overrides on top of the file values: address and
// channel are replaced when given, verbose when greater than zero, local
// when set.
func (f File) Merge(o Overrides) File {
	if o.Address != "" {
		f.Address = o.Address
	}
	if o.Channel != "" {
		f.Channel = o.Channel
	}
	if o.Verbose > 0 {
		f.Verbose = o.Verbose
	}
	if o.Local {
		f.Local = true
	}
	return f
}

// Validate checks that a merged configuration can actually run a farm.
func (f File) Validate() error {
	if !f.Local && f.Address == "" {
		return errors.New("config: address is required unless running in local mode")
	}
	if len(f.Names) == 0 {
		return errors.New("config: at least one bot name is required")
	}
	if len(f.IDs) == 0 {
		return errors.New("config: at least one identity is required (inline ids or ids_file)")
	}
	if f.Verbose < 0 || f.Verbose > 3 {
		return fmt.Errorf("config: verbose must be 0-3, got %d", f.Verbose)
	}
	return nil
}

// roster is the YAML shape of an identity roster file.
type roster struct {
	Identities []protocol.Identity `yaml:"identities"`
}

// LoadRoster reads a YAML identity roster.
func LoadRoster(path string) ([]protocol.Identity, error) {
	data, err := os.ReadFile(path) //nolint:gosec // roster path comes from the config
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}
	var r roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", path, err)
	}
	return r.Identities, nil
}

// SaveRoster writes a YAML identity roster.
func SaveRoster(path string, ids []protocol.Identity) error {
	data, err := yaml.Marshal(roster{Identities: ids})
	if err != nil {
		return fmt.Errorf("marshal roster: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write roster %s: %w", path, err)
	}
	return nil
}

// GenerateRoster creates n fresh random identities.
func GenerateRoster(n int) ([]protocol.Identity, error) {
	out := make([]protocol.Identity, 0, n)
	for range n {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate identity key: %w", err)
		}
		out = append(out, protocol.Identity{Key: base64.StdEncoding.EncodeToString(key)})
	}
	return out, nil
}
