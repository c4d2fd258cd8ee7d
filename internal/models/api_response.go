package models

import (
	"time"
)

// ContractTypeResponse represents a contract type for API responses
type ContractTypeResponse struct {
	Name          string  `json:"name"`
	TypeKey       TypeKey `json:"type_key"`
	LatestVersion uint32  `json:"latest_version"` // 0 while no implementation exists
}

// ContractTypeListResponse represents every registered type
type ContractTypeListResponse struct {
	Types []ContractTypeResponse `json:"types"`
	Total int                    `json:"total"`
}

// ImplementationResponse represents one version of a contract type
type ImplementationResponse struct {
	Name       string     `json:"name"`
	Version    uint32     `json:"version"`
	Address    Address    `json:"address"`
	CommitHash CommitHash `json:"commit_hash"`
	CreatedAt  time.Time  `json:"created_at"`
}

// VersionListResponse represents the version history of a type, ascending
type VersionListResponse struct {
	Name     string                   `json:"name"`
	Versions []ImplementationResponse `json:"versions"`
}

// TypeHashResponse represents the storage key of a type name
type TypeHashResponse struct {
	Name    string  `json:"name"`
	TypeKey TypeKey `json:"type_key"`
}

// FactoryResponse represents the factory configuration
type FactoryResponse struct {
	Factory        Address            `json:"factory"`
	Implementation *Address           `json:"implementation,omitempty"`
	Initialized    bool               `json:"initialized"`
	Templates      map[string]Address `json:"templates,omitempty"`
}

// PredictResponse represents a predicted clone address
type PredictResponse struct {
	Factory  Address `json:"factory"`
	Template Address `json:"template"`
	Salt     Salt    `json:"salt"`
	Address  Address `json:"address"`
}

// EventListResponse represents a page of the audit log
type EventListResponse struct {
	Events []Event `json:"events"`
	Next   uint64  `json:"next"` // pass as ?after= to read the following page
}

// NewImplementationResponse builds the response for a stored record
func NewImplementationResponse(name string, rec ImplementationRecord) ImplementationResponse {
	return ImplementationResponse{
		Name:       name,
		Version:    rec.Version,
		Address:    rec.Address,
		CommitHash: rec.CommitHash,
		CreatedAt:  rec.CreatedAt,
	}
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Code    int    `json:"code"`
}
