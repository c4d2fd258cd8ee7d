package deploy

import (
	"fmt"
	"math"
	"strings"

	"implregistry/internal/contractid"
	"implregistry/internal/models"

	"github.com/BurntSushi/toml"
)

// Manifest is the seed state applied to a fresh or running deployment
//
//	[[types]]
//	name = "Initializable"
//
//	[[implementations]]
//	type = "Initializable"
//	template = "Initializable"   # or address = "C..."
//	version = 1
//	commit = "0x..."
//
//	[factory]
//	implementation = "Initializable"
//
//	[[clones]]
//	salt = "first"
//	template = "Initializable"
//	owner = "G..."
//	label = "first clone"
type Manifest struct {
	Types           []TypeEntry           `toml:"types"`
	Implementations []ImplementationEntry `toml:"implementations"`
	Factory         FactoryEntry          `toml:"factory"`
	Clones          []CloneEntry          `toml:"clones"`
}

type TypeEntry struct {
	Name string `toml:"name"`
}

type ImplementationEntry struct {
	Type     string `toml:"type"`
	Address  string `toml:"address"`
	Template string `toml:"template"`
	Version  int64  `toml:"version"`
	Commit   string `toml:"commit"`
}

type FactoryEntry struct {
	// Implementation is an address or the name of a built-in template
	Implementation string `toml:"implementation"`
}

type CloneEntry struct {
	// Salt is a label hashed into the clone salt, or 64 hex characters used as is
	Salt     string `toml:"salt"`
	Template string `toml:"template"`
	Owner    string `toml:"owner"`
	Label    string `toml:"label"`
}

// LoadManifest reads a manifest file
func LoadManifest(path string) (*Manifest, error) {
	var m Manifest
	meta, err := toml.DecodeFile(path, &m)
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	return checkManifest(&m, meta)
}

// ParseManifest reads a manifest from TOML text
func ParseManifest(data string) (*Manifest, error) {
	var m Manifest
	meta, err := toml.Decode(data, &m)
	if err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return checkManifest(&m, meta)
}

func checkManifest(m *Manifest, meta toml.MetaData) (*Manifest, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("manifest: unknown keys %s", strings.Join(keys, ", "))
	}

	for i, t := range m.Types {
		if strings.TrimSpace(t.Name) == "" {
			return nil, fmt.Errorf("manifest: types[%d]: name is required", i)
		}
	}
	for i, impl := range m.Implementations {
		if impl.Type == "" {
			return nil, fmt.Errorf("manifest: implementations[%d]: type is required", i)
		}
		if (impl.Address == "") == (impl.Template == "") {
			return nil, fmt.Errorf("manifest: implementations[%d]: exactly one of address and template is required", i)
		}
		if impl.Version <= 0 || impl.Version > math.MaxUint32 {
			return nil, fmt.Errorf("manifest: implementations[%d]: version %d out of range", i, impl.Version)
		}
		if _, err := models.ParseHash32(impl.Commit); err != nil {
			return nil, fmt.Errorf("manifest: implementations[%d]: commit: %w", i, err)
		}
	}
	for i, c := range m.Clones {
		if c.Salt == "" || c.Template == "" {
			return nil, fmt.Errorf("manifest: clones[%d]: salt and template are required", i)
		}
	}
	return m, nil
}

// CloneSalt turns a manifest salt into a salt value
func CloneSalt(s string) models.Salt {
	if h, err := models.ParseHash32(s); err == nil {
		return h
	}
	return models.Salt(contractid.NamedSalt(s))
}
