package models

import "time"

// Role is a capability tag checked before mutating operations
type Role string

const (
	AdminRole   Role = "DEFAULT_ADMIN_ROLE"
	UpdaterRole Role = "UPDATER_ROLE"
)

// ContractType is a named family of implementations
type ContractType struct {
	Key  TypeKey `json:"type_key"`
	Name string  `json:"name"`

	// LatestVersion is the highest version ever added, 0 while the type has none
	LatestVersion uint32 `json:"latest_version"`
}

// ImplementationRecord is one registered build of a contract type. Immutable once stored.
type ImplementationRecord struct {
	TypeKey    TypeKey    `json:"type_key"`
	Version    uint32     `json:"version"`
	Address    Address    `json:"address"`
	CommitHash CommitHash `json:"commit_hash"`
	CreatedAt  time.Time  `json:"created_at"`
}

// CloneRecord is a forwarding object created by a factory
type CloneRecord struct {
	Address   Address   `json:"address"`
	Factory   Address   `json:"factory"`
	Template  Address   `json:"template"`
	Salt      Salt      `json:"salt"`
	CreatedAt time.Time `json:"created_at"`
}

// FactoryConfig is the mutable configuration of one clone factory
type FactoryConfig struct {
	Factory        Address `json:"factory"`
	Implementation Address `json:"implementation"`
	Initialized    bool    `json:"initialized"`
}
