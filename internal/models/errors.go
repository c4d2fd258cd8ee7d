package models

import "errors"

// Categorical failures of the registry and factory. Components wrap them with
// fmt.Errorf("%w: ...") so callers can match the kind with errors.Is.
var (
	ErrNotAuthorized       = errors.New("not authorized")
	ErrInvalidTypeName     = errors.New("invalid type name")
	ErrTypeAlreadyExists   = errors.New("type already exists")
	ErrTypeDoesNotExist    = errors.New("type does not exist")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrInvalidVersion      = errors.New("invalid version")
	ErrVersionExists       = errors.New("version exists")
	ErrCommitExists        = errors.New("commit exists")
	ErrNoImplementations   = errors.New("no implementations")
	ErrVersionDoesNotExist = errors.New("version does not exist")

	ErrAlreadyInitialized = errors.New("already initialized")
	ErrCloneExists        = errors.New("clone already exists")
	ErrNoCode             = errors.New("no code at address")
)

// ErrorKind returns a stable snake_case label for a categorical error, or "internal"
func ErrorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.label
		}
	}
	return "internal"
}

var errorKinds = []struct {
	err   error
	label string
}{
	{ErrNotAuthorized, "not_authorized"},
	{ErrInvalidTypeName, "invalid_type_name"},
	{ErrTypeAlreadyExists, "type_already_exists"},
	{ErrTypeDoesNotExist, "type_does_not_exist"},
	{ErrInvalidAddress, "invalid_address"},
	{ErrInvalidVersion, "invalid_version"},
	{ErrVersionExists, "version_exists"},
	{ErrCommitExists, "commit_exists"},
	{ErrNoImplementations, "no_implementations"},
	{ErrVersionDoesNotExist, "version_does_not_exist"},
	{ErrAlreadyInitialized, "already_initialized"},
	{ErrCloneExists, "clone_exists"},
	{ErrNoCode, "no_code"},
}
