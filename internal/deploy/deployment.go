// Package deploy stands up a registry and a factory as a deployer would, seeds them from a
// manifest and records where everything landed.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"implregistry/internal/contractid"
	"implregistry/internal/factory"
	"implregistry/internal/host"
	"implregistry/internal/models"
	"implregistry/internal/registry"
	"implregistry/internal/storage"
	"implregistry/internal/templates"
	"implregistry/internal/txn"
)

// Component labels, also the salt labels their default addresses derive from
const (
	RegistryComponent = "ImplementationRegistry"
	FactoryComponent  = "CloneFactory"
)

// Options configure Deploy
type Options struct {
	NetworkPassphrase string
	Deployer          models.Address

	// Zero addresses are derived from the deployer and the component label
	RegistryAddress models.Address
	FactoryAddress  models.Address

	MaxTypeNameLength int

	Store     storage.Store
	Publisher txn.Publisher
}

// Deployment is a running registry and factory sharing one store and one host
type Deployment struct {
	Registry *registry.Registry
	Factory  *factory.Factory
	Host     *host.Host

	Deployer          models.Address
	NetworkPassphrase string

	templates map[string]models.Address
	lastSeq   *seqTracker
}

// Deploy creates the components, installs the built-in templates and grants the deployer
// its roles. Roles are granted only on the first run against a store; later runs leave
// the role tables as they are.
func Deploy(ctx context.Context, opts Options) (*Deployment, error) {
	if opts.Deployer.IsZero() {
		return nil, fmt.Errorf("%w: deployer is required", models.ErrInvalidAddress)
	}
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}

	d := &Deployment{
		Host:              host.New(),
		Deployer:          opts.Deployer,
		NetworkPassphrase: opts.NetworkPassphrase,
		templates:         make(map[string]models.Address),
		lastSeq:           &seqTracker{next: opts.Publisher},
	}

	registryAddr, err := d.componentAddress(opts.RegistryAddress, RegistryComponent)
	if err != nil {
		return nil, err
	}
	factoryAddr, err := d.componentAddress(opts.FactoryAddress, FactoryComponent)
	if err != nil {
		return nil, err
	}

	if err := d.installTemplate(templates.InitializableName, templates.NewInitializable()); err != nil {
		return nil, err
	}

	d.Registry = registry.New(registryAddr, opts.Store, d.lastSeq, opts.MaxTypeNameLength)
	err = d.Registry.Bootstrap(ctx, opts.Deployer)
	if err != nil && !errors.Is(err, models.ErrAlreadyInitialized) {
		return nil, fmt.Errorf("failed to bootstrap registry: %w", err)
	}

	d.Factory, err = factory.New(factoryAddr, opts.NetworkPassphrase, opts.Store, d.lastSeq, d.Host)
	if err != nil {
		return nil, err
	}
	err = d.Factory.Initialize(ctx, opts.Deployer)
	if err != nil && !errors.Is(err, models.ErrAlreadyInitialized) {
		return nil, fmt.Errorf("failed to initialize factory: %w", err)
	}

	slog.Info("Deploy: components ready",
		"registry", registryAddr,
		"factory", factoryAddr,
		"deployer", opts.Deployer,
	)
	return d, nil
}

// Template returns the address of a built-in template
func (d *Deployment) Template(name string) (models.Address, bool) {
	addr, ok := d.templates[name]
	return addr, ok
}

// Templates lists the built-in templates by name
func (d *Deployment) Templates() map[string]models.Address {
	out := make(map[string]models.Address, len(d.templates))
	for k, v := range d.templates {
		out[k] = v
	}
	return out
}

// LastSeq returns the sequence number of the latest event this deployment emitted
func (d *Deployment) LastSeq() uint64 {
	return d.lastSeq.last.Load()
}

// ResolveAddress parses an address or looks up a built-in template by name
func (d *Deployment) ResolveAddress(s string) (models.Address, error) {
	if addr, ok := d.templates[s]; ok {
		return addr, nil
	}
	return models.ParseAddress(s)
}

// DeriveAddress returns where deployer places the component or template called label
func DeriveAddress(networkPassphrase string, deployer models.Address, label string) (models.Address, error) {
	return contractid.Derive(networkPassphrase, deployer, contractid.NamedSalt(label))
}

func (d *Deployment) componentAddress(configured models.Address, label string) (models.Address, error) {
	if !configured.IsZero() {
		return configured, nil
	}
	return DeriveAddress(d.NetworkPassphrase, d.Deployer, label)
}

func (d *Deployment) installTemplate(name string, code host.Code) error {
	addr, err := DeriveAddress(d.NetworkPassphrase, d.Deployer, name)
	if err != nil {
		return err
	}
	if err := d.Host.Install(addr, code); err != nil {
		return fmt.Errorf("failed to install template %s: %w", name, err)
	}
	d.templates[name] = addr
	return nil
}

// seqTracker remembers the highest event sequence published and forwards the events
type seqTracker struct {
	next txn.Publisher
	last atomic.Uint64
}

func (s *seqTracker) Publish(ctx context.Context, events []*models.Event) {
	for _, ev := range events {
		for {
			cur := s.last.Load()
			if ev.Seq <= cur || s.last.CompareAndSwap(cur, ev.Seq) {
				break
			}
		}
	}
	if s.next != nil {
		s.next.Publish(ctx, events)
	}
}
