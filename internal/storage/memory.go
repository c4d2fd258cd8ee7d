package storage

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"implregistry/internal/models"
)

type roleKey struct {
	scope  models.Address
	role   models.Role
	member models.Address
}

type implKey struct {
	typeKey models.TypeKey
	version uint32
}

type slotKey struct {
	object models.Address
	key    string
}

// MemoryStore keeps all state in process memory. Update holds the write lock for the whole
// call and records an undo entry per write, replayed in reverse if the call fails.
type MemoryStore struct {
	mu sync.RWMutex

	roles     map[roleKey]struct{}
	types     map[models.TypeKey]models.ContractType
	impls     map[implKey]models.ImplementationRecord
	commits   map[models.CommitHash]implKey
	factories map[models.Address]models.FactoryConfig
	clones    map[models.Address]models.CloneRecord
	slots     map[slotKey][]byte
	events    []models.Event
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		roles:     make(map[roleKey]struct{}),
		types:     make(map[models.TypeKey]models.ContractType),
		impls:     make(map[implKey]models.ImplementationRecord),
		commits:   make(map[models.CommitHash]implKey),
		factories: make(map[models.Address]models.FactoryConfig),
		clones:    make(map[models.Address]models.CloneRecord),
		slots:     make(map[slotKey][]byte),
	}
}

// View runs fn under the read lock
func (s *MemoryStore) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memoryTx{s: s})
}

// Update runs fn under the write lock and undoes its writes unless it returns nil
func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{s: s, writable: true}
	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			panic(p)
		}
		if err != nil {
			tx.rollback()
		}
	}()

	return fn(tx)
}

// Ping always succeeds
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}

type memoryTx struct {
	s        *MemoryStore
	writable bool
	undo     []func()
}

func (tx *memoryTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (tx *memoryTx) write() error {
	if !tx.writable {
		return ErrReadOnly
	}
	return nil
}

func (tx *memoryTx) HasRole(ctx context.Context, scope models.Address, role models.Role, member models.Address) (bool, error) {
	_, ok := tx.s.roles[roleKey{scope, role, member}]
	return ok, nil
}

func (tx *memoryTx) SetRole(ctx context.Context, scope models.Address, role models.Role, member models.Address, granted bool) error {
	if err := tx.write(); err != nil {
		return err
	}
	k := roleKey{scope, role, member}
	_, had := tx.s.roles[k]
	if granted {
		tx.s.roles[k] = struct{}{}
	} else {
		delete(tx.s.roles, k)
	}
	tx.undo = append(tx.undo, func() {
		if had {
			tx.s.roles[k] = struct{}{}
		} else {
			delete(tx.s.roles, k)
		}
	})
	return nil
}

func (tx *memoryTx) RoleMembers(ctx context.Context, scope models.Address, role models.Role) ([]models.Address, error) {
	var members []models.Address
	for k := range tx.s.roles {
		if k.scope == scope && k.role == role {
			members = append(members, k.member)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].String() < members[j].String()
	})
	return members, nil
}

func (tx *memoryTx) ContractType(ctx context.Context, key models.TypeKey) (models.ContractType, error) {
	ct, ok := tx.s.types[key]
	if !ok {
		return models.ContractType{}, ErrNotFound
	}
	return ct, nil
}

func (tx *memoryTx) ContractTypes(ctx context.Context) ([]models.ContractType, error) {
	list := make([]models.ContractType, 0, len(tx.s.types))
	for _, ct := range tx.s.types {
		list = append(list, ct)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list, nil
}

func (tx *memoryTx) PutContractType(ctx context.Context, ct models.ContractType) error {
	if err := tx.write(); err != nil {
		return err
	}
	prev, had := tx.s.types[ct.Key]
	tx.s.types[ct.Key] = ct
	tx.undo = append(tx.undo, func() {
		if had {
			tx.s.types[ct.Key] = prev
		} else {
			delete(tx.s.types, ct.Key)
		}
	})
	return nil
}

func (tx *memoryTx) Implementation(ctx context.Context, key models.TypeKey, version uint32) (models.ImplementationRecord, error) {
	rec, ok := tx.s.impls[implKey{key, version}]
	if !ok {
		return models.ImplementationRecord{}, ErrNotFound
	}
	return rec, nil
}

func (tx *memoryTx) Implementations(ctx context.Context, key models.TypeKey) ([]models.ImplementationRecord, error) {
	var list []models.ImplementationRecord
	for k, rec := range tx.s.impls {
		if k.typeKey == key {
			list = append(list, rec)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Version < list[j].Version
	})
	return list, nil
}

func (tx *memoryTx) InsertImplementation(ctx context.Context, rec models.ImplementationRecord) error {
	if err := tx.write(); err != nil {
		return err
	}
	k := implKey{rec.TypeKey, rec.Version}
	if _, ok := tx.s.impls[k]; ok {
		return models.ErrVersionExists
	}
	if _, ok := tx.s.commits[rec.CommitHash]; ok {
		return models.ErrCommitExists
	}
	tx.s.impls[k] = rec
	tx.s.commits[rec.CommitHash] = k
	tx.undo = append(tx.undo, func() {
		delete(tx.s.impls, k)
		delete(tx.s.commits, rec.CommitHash)
	})
	return nil
}

func (tx *memoryTx) CommitExists(ctx context.Context, hash models.CommitHash) (bool, error) {
	_, ok := tx.s.commits[hash]
	return ok, nil
}

func (tx *memoryTx) Factory(ctx context.Context, factory models.Address) (models.FactoryConfig, error) {
	cfg, ok := tx.s.factories[factory]
	if !ok {
		return models.FactoryConfig{}, ErrNotFound
	}
	return cfg, nil
}

func (tx *memoryTx) PutFactory(ctx context.Context, cfg models.FactoryConfig) error {
	if err := tx.write(); err != nil {
		return err
	}
	prev, had := tx.s.factories[cfg.Factory]
	tx.s.factories[cfg.Factory] = cfg
	tx.undo = append(tx.undo, func() {
		if had {
			tx.s.factories[cfg.Factory] = prev
		} else {
			delete(tx.s.factories, cfg.Factory)
		}
	})
	return nil
}

func (tx *memoryTx) Clone(ctx context.Context, address models.Address) (models.CloneRecord, error) {
	rec, ok := tx.s.clones[address]
	if !ok {
		return models.CloneRecord{}, ErrNotFound
	}
	return rec, nil
}

func (tx *memoryTx) InsertClone(ctx context.Context, rec models.CloneRecord) error {
	if err := tx.write(); err != nil {
		return err
	}
	if _, ok := tx.s.clones[rec.Address]; ok {
		return models.ErrCloneExists
	}
	tx.s.clones[rec.Address] = rec
	tx.undo = append(tx.undo, func() {
		delete(tx.s.clones, rec.Address)
	})
	return nil
}

func (tx *memoryTx) Slot(ctx context.Context, object models.Address, key string) ([]byte, error) {
	v, ok := tx.s.slots[slotKey{object, key}]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (tx *memoryTx) PutSlot(ctx context.Context, object models.Address, key string, value []byte) error {
	if err := tx.write(); err != nil {
		return err
	}
	k := slotKey{object, key}
	prev, had := tx.s.slots[k]
	tx.s.slots[k] = bytes.Clone(value)
	tx.undo = append(tx.undo, func() {
		if had {
			tx.s.slots[k] = prev
		} else {
			delete(tx.s.slots, k)
		}
	})
	return nil
}

func (tx *memoryTx) AppendEvent(ctx context.Context, event *models.Event) error {
	if err := tx.write(); err != nil {
		return err
	}
	n := len(tx.s.events)
	event.Seq = uint64(n) + 1
	tx.s.events = append(tx.s.events, *event)
	tx.undo = append(tx.undo, func() {
		tx.s.events = tx.s.events[:n]
	})
	return nil
}

func (tx *memoryTx) Events(ctx context.Context, filter models.EventFilter) ([]models.Event, error) {
	var out []models.Event
	start := int(min(filter.AfterSeq, uint64(len(tx.s.events))))
	for _, ev := range tx.s.events[start:] {
		if filter.Kind != "" && ev.Kind != filter.Kind {
			continue
		}
		out = append(out, ev)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}
