// Package templates holds the built-in template code objects can be cloned from.
package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"implregistry/internal/host"
	"implregistry/internal/models"
)

// InitializableName is the contract type the built-in template is registered under
const InitializableName = "Initializable"

var (
	ErrUnknownFunction = errors.New("unknown function")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotInitialized  = errors.New("not initialized")
)

const (
	slotOwner = "owner"
	slotLabel = "label"
)

// Envelope is the wire form of a template invocation
type Envelope struct {
	Fn   string          `json:"fn"`
	Args json.RawMessage `json:"args,omitempty"`
}

// InitializeArgs are the arguments of "initialize"
type InitializeArgs struct {
	Owner string `json:"owner"`
	Label string `json:"label,omitempty"`
}

// Initializable is a template that can be initialized exactly once with an owner
// and a label, and then answers "owner" and "label".
type Initializable struct{}

// NewInitializable returns the template code
func NewInitializable() host.Code {
	return Initializable{}
}

// Invoke dispatches the envelope in call.Input
func (Initializable) Invoke(ctx context.Context, call *host.Call) ([]byte, error) {
	var env Envelope
	if err := json.Unmarshal(call.Input, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	switch env.Fn {
	case "initialize":
		return initialize(ctx, call, env.Args)
	case slotOwner, slotLabel:
		return read(ctx, call, env.Fn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, env.Fn)
	}
}

func initialize(ctx context.Context, call *host.Call, raw json.RawMessage) ([]byte, error) {
	var args InitializeArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}

	owner, err := models.ParseAddress(args.Owner)
	if err != nil {
		return nil, err
	}
	if owner.IsZero() {
		return nil, fmt.Errorf("%w: owner is the zero address", models.ErrInvalidAddress)
	}

	_, done, err := call.Storage.Get(ctx, slotOwner)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, fmt.Errorf("%w: %s", models.ErrAlreadyInitialized, call.Self)
	}

	if err := call.Storage.Put(ctx, slotOwner, []byte(owner.String())); err != nil {
		return nil, err
	}
	if err := call.Storage.Put(ctx, slotLabel, []byte(args.Label)); err != nil {
		return nil, err
	}

	return json.Marshal(map[string]string{
		"self":  call.Self.String(),
		"owner": owner.String(),
	})
}

func read(ctx context.Context, call *host.Call, slot string) ([]byte, error) {
	v, ok, err := call.Storage.Get(ctx, slot)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotInitialized, call.Self)
	}
	return json.Marshal(string(v))
}

// InitializeCall encodes the init data that initializes a clone
func InitializeCall(owner models.Address, label string) ([]byte, error) {
	args, err := json.Marshal(InitializeArgs{Owner: owner.String(), Label: label})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal initialize args: %w", err)
	}
	return json.Marshal(Envelope{Fn: "initialize", Args: args})
}

// ReadCall encodes a call to one of the read functions, "owner" or "label"
func ReadCall(fn string) []byte {
	b, _ := json.Marshal(Envelope{Fn: fn})
	return b
}
