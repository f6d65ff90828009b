// Package allowlist holds the set of adapter contracts a plan is permitted
// to call. The set is sourced from router configuration; an empty or missing
// file yields an empty allowlist, which denies every plan (fail closed).
package allowlist

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/relayguard/relayguard/internal/model"
)

// File is the on-disk YAML shape.
type File struct {
	Adapters []string `yaml:"adapters"`
}

// Allowlist is an immutable, case-insensitive set of adapter addresses.
type Allowlist struct {
	set      map[string]struct{}
	adapters []string
	hash     string
}

// New builds an allowlist from raw addresses. A malformed address is a
// configuration bug, not a policy decision, and is reported as an error.
func New(adapters []string) (*Allowlist, error) {
	set := make(map[string]struct{}, len(adapters))
	for _, a := range adapters {
		if !model.IsAddress(a) {
			return nil, fmt.Errorf("allowlist entry %q is not a valid address", a)
		}
		set[model.NormalizeAddress(a)] = struct{}{}
	}

	normalized := make([]string, 0, len(set))
	for a := range set {
		normalized = append(normalized, a)
	}
	sort.Strings(normalized)

	return &Allowlist{
		set:      set,
		adapters: normalized,
		hash:     hashOf(nil),
	}, nil
}

// Load reads an allowlist from a YAML file. Empty path falls back to
// ~/.relayguard/allowlist.yaml. A missing file yields an empty allowlist.
// The content hash is computed over the raw bytes on disk so operators can
// correlate verdicts in the audit log with the exact config that produced
// them.
func Load(path string) (*Allowlist, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(nil)
		}
		return nil, fmt.Errorf("failed to read allowlist: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse allowlist: %w", err)
	}

	al, err := New(f.Adapters)
	if err != nil {
		return nil, err
	}
	al.hash = hashOf(data)
	return al, nil
}

// DefaultPath returns the default allowlist location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "relayguard-allowlist.yaml")
	}
	return filepath.Join(home, ".relayguard", "allowlist.yaml")
}

// Contains reports whether the adapter address is allowlisted.
// Comparison is case-insensitive.
func (a *Allowlist) Contains(adapter string) bool {
	_, ok := a.set[model.NormalizeAddress(adapter)]
	return ok
}

// Adapters returns the normalized entries in stable order.
func (a *Allowlist) Adapters() []string {
	out := make([]string, len(a.adapters))
	copy(out, a.adapters)
	return out
}

// Hash returns "sha256:<hex>" of the raw config bytes.
func (a *Allowlist) Hash() string {
	return a.hash
}

// Len returns the number of distinct entries.
func (a *Allowlist) Len() int {
	return len(a.set)
}

func hashOf(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

// DefaultYAML returns a commented starter config for init-allowlist.
func DefaultYAML() string {
	return `# relayguard adapter allowlist
# Generated by: relayguard init-allowlist
#
# Every action in a relayed plan must call one of these adapter contracts.
# Addresses are compared case-insensitively. An empty list denies all plans.
adapters: []
#  - "0x1111111111111111111111111111111111111111"  # swap router adapter
#  - "0x2222222222222222222222222222222222222222"  # lending adapter
`
}
