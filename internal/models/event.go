package models

import (
	"time"

	"github.com/google/uuid"
)

// EventKind names an audit-log entry
type EventKind string

const (
	EventContractTypeAdded    EventKind = "ContractTypeAdded"
	EventImplementationAdded  EventKind = "ImplementationAdded"
	EventImplementationStored EventKind = "ImplementationStored"
	EventCloneCreated         EventKind = "CloneCreated"
	EventCloneInitialized     EventKind = "CloneInitialized"
	EventRoleGranted          EventKind = "RoleGranted"
	EventRoleRevoked          EventKind = "RoleRevoked"
)

// Event is an append-only audit record. It is stored in the same transaction as the
// state change it describes, so it exists only if that change committed.
type Event struct {
	Seq     uint64            `json:"seq"`
	TxID    uuid.UUID         `json:"tx_id"` // shared by every event of one atomic call
	Kind    EventKind         `json:"kind"`
	Emitter Address           `json:"emitter"`
	Attrs   map[string]string `json:"attrs"`
	Time    time.Time         `json:"time"`
}

// NewEvent builds an unsequenced event; the store assigns Seq on append
func NewEvent(txID uuid.UUID, kind EventKind, emitter Address, attrs map[string]string) *Event {
	return &Event{
		TxID:    txID,
		Kind:    kind,
		Emitter: emitter,
		Attrs:   attrs,
		Time:    time.Now().UTC(),
	}
}

// EventFilter selects a page of the audit log
type EventFilter struct {
	AfterSeq uint64
	Kind     EventKind
	Limit    int
}
