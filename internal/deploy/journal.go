package deploy

import (
	"fmt"
	"os"
	"sync"

	"implregistry/internal/models"
)

// Journal appends one line per deployed component to a contracts.out style file
type Journal struct {
	mu   sync.Mutex
	path string
}

// NewJournal writes to path. Lines are appended, earlier deployments are kept.
func NewJournal(path string) *Journal {
	return &Journal{path: path}
}

// Record appends "<component> contract deployed at: <address> - Ledger: <seq>"
func (j *Journal) Record(component string, address models.Address, seq uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open deployments file: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s contract deployed at: %s - Ledger: %d\n", component, address, seq); err != nil {
		return fmt.Errorf("failed to write deployments file: %w", err)
	}
	return nil
}

// RecordDeployment writes the registry, the factory and every built-in template
func (j *Journal) RecordDeployment(d *Deployment) error {
	seq := d.LastSeq()
	if err := j.Record(RegistryComponent, d.Registry.Address(), seq); err != nil {
		return err
	}
	if err := j.Record(FactoryComponent, d.Factory.Address(), seq); err != nil {
		return err
	}
	for name, addr := range d.Templates() {
		if err := j.Record(name, addr, seq); err != nil {
			return err
		}
	}
	return nil
}
