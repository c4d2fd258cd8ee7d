package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"implregistry/internal/models"
	"implregistry/internal/templates"
)

// Summary counts what Apply changed and what it found already in place
type Summary struct {
	Applied int
	Skipped int
}

// Apply seeds the deployment from m, acting as the deployer. Entries already present
// with the same content are skipped, so applying one manifest twice is safe.
func (d *Deployment) Apply(ctx context.Context, m *Manifest) (Summary, error) {
	var sum Summary

	for _, t := range m.Types {
		err := d.Registry.AddContractType(ctx, d.Deployer, t.Name)
		switch {
		case err == nil:
			sum.Applied++
		case errors.Is(err, models.ErrTypeAlreadyExists):
			sum.Skipped++
		default:
			return sum, fmt.Errorf("failed to add type %q: %w", t.Name, err)
		}
	}

	for _, impl := range m.Implementations {
		applied, err := d.applyImplementation(ctx, impl)
		if err != nil {
			return sum, err
		}
		if applied {
			sum.Applied++
		} else {
			sum.Skipped++
		}
	}

	if m.Factory.Implementation != "" {
		applied, err := d.applyFactory(ctx, m.Factory)
		if err != nil {
			return sum, err
		}
		if applied {
			sum.Applied++
		} else {
			sum.Skipped++
		}
	}

	for _, c := range m.Clones {
		applied, err := d.applyClone(ctx, c)
		if err != nil {
			return sum, err
		}
		if applied {
			sum.Applied++
		} else {
			sum.Skipped++
		}
	}

	slog.Info("Deploy: manifest applied", "applied", sum.Applied, "skipped", sum.Skipped)
	return sum, nil
}

func (d *Deployment) applyImplementation(ctx context.Context, e ImplementationEntry) (bool, error) {
	ref := e.Address
	if ref == "" {
		ref = e.Template
	}
	addr, err := d.ResolveAddress(ref)
	if err != nil {
		return false, fmt.Errorf("implementation %s v%d: %w", e.Type, e.Version, err)
	}
	commit, err := models.ParseHash32(e.Commit)
	if err != nil {
		return false, fmt.Errorf("implementation %s v%d: %w", e.Type, e.Version, err)
	}
	version := uint32(e.Version)

	err = d.Registry.AddImplementation(ctx, d.Deployer, e.Type, addr, version, commit)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, models.ErrVersionExists) {
		return false, fmt.Errorf("failed to add implementation %s v%d: %w", e.Type, version, err)
	}

	existing, getErr := d.Registry.GetImplementationByVersion(ctx, e.Type, version)
	if getErr != nil {
		return false, getErr
	}
	if existing.Address != addr || existing.CommitHash != commit {
		return false, fmt.Errorf("implementation %s v%d already registered with different content: %w", e.Type, version, err)
	}
	return false, nil
}

func (d *Deployment) applyFactory(ctx context.Context, e FactoryEntry) (bool, error) {
	addr, err := d.ResolveAddress(e.Implementation)
	if err != nil {
		return false, fmt.Errorf("factory implementation: %w", err)
	}

	current, err := d.Factory.Implementation(ctx)
	if err != nil {
		return false, err
	}
	if current == addr {
		return false, nil
	}

	if err := d.Factory.UpdateImplementation(ctx, d.Deployer, addr); err != nil {
		return false, fmt.Errorf("failed to update factory implementation: %w", err)
	}
	return true, nil
}

func (d *Deployment) applyClone(ctx context.Context, e CloneEntry) (bool, error) {
	template, err := d.ResolveAddress(e.Template)
	if err != nil {
		return false, fmt.Errorf("clone %q: %w", e.Salt, err)
	}
	salt := CloneSalt(e.Salt)

	if e.Owner == "" {
		_, err = d.Factory.Clone(ctx, d.Deployer, salt, template)
	} else {
		owner, perr := models.ParseAddress(e.Owner)
		if perr != nil {
			return false, fmt.Errorf("clone %q owner: %w", e.Salt, perr)
		}
		initData, ierr := templates.InitializeCall(owner, e.Label)
		if ierr != nil {
			return false, ierr
		}
		_, _, err = d.Factory.CloneAndInitialize(ctx, d.Deployer, salt, template, initData)
	}

	if errors.Is(err, models.ErrCloneExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create clone %q: %w", e.Salt, err)
	}
	return true, nil
}
