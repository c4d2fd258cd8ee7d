package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"implregistry/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

// writerLockKey is the advisory lock serializing Update across processes
const writerLockKey int64 = 0x696d706c726567 // "implreg"

// PostgresStore implements the Store interface using PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{
		pool: pool,
	}, nil
}

// Migrate creates the tables if they do not exist yet
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// View runs fn inside a read-only transaction
func (s *PostgresStore) View(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	return fn(&pgTx{tx: tx})
}

// Update runs fn inside a transaction and commits only if fn returns nil. Writers take a
// transaction-scoped advisory lock first, so updates from every process sharing the
// database apply one at a time and event sequence numbers commit in increasing order.
func (s *PostgresStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	// read committed: once the lock is held, every earlier writer has committed and
	// each statement sees its effects
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, writerLockKey); err != nil {
		return fmt.Errorf("failed to acquire writer lock: %w", err)
	}

	if err := fn(&pgTx{tx: tx, writable: true}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Ping checks if the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the database connection pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

type pgTx struct {
	tx       pgx.Tx
	writable bool
}

func (t *pgTx) write() error {
	if !t.writable {
		return ErrReadOnly
	}
	return nil
}

func (t *pgTx) HasRole(ctx context.Context, scope models.Address, role models.Role, member models.Address) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM role_members WHERE scope = $1 AND role = $2 AND member = $3)`

	var exists bool
	if err := t.tx.QueryRow(ctx, query, scope.String(), string(role), member.String()).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check role: %w", err)
	}
	return exists, nil
}

func (t *pgTx) SetRole(ctx context.Context, scope models.Address, role models.Role, member models.Address, granted bool) error {
	if err := t.write(); err != nil {
		return err
	}

	query := `
		INSERT INTO role_members (scope, role, member)
		VALUES ($1, $2, $3)
		ON CONFLICT (scope, role, member) DO NOTHING
	`
	if !granted {
		query = `DELETE FROM role_members WHERE scope = $1 AND role = $2 AND member = $3`
	}

	if _, err := t.tx.Exec(ctx, query, scope.String(), string(role), member.String()); err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	return nil
}

func (t *pgTx) RoleMembers(ctx context.Context, scope models.Address, role models.Role) ([]models.Address, error) {
	query := `SELECT member FROM role_members WHERE scope = $1 AND role = $2 ORDER BY member ASC`

	rows, err := t.tx.Query(ctx, query, scope.String(), string(role))
	if err != nil {
		return nil, fmt.Errorf("failed to list role members: %w", err)
	}
	defer rows.Close()

	var members []models.Address
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan role member: %w", err)
		}
		member, err := models.ParseAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse role member: %w", err)
		}
		members = append(members, member)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role members: %w", err)
	}

	return members, nil
}

func (t *pgTx) ContractType(ctx context.Context, key models.TypeKey) (models.ContractType, error) {
	query := `SELECT type_key, name, latest_version FROM contract_types WHERE type_key = $1`

	ct, err := scanContractType(t.tx.QueryRow(ctx, query, key[:]))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ContractType{}, ErrNotFound
	}
	if err != nil {
		return models.ContractType{}, fmt.Errorf("failed to get contract type: %w", err)
	}
	return ct, nil
}

func (t *pgTx) ContractTypes(ctx context.Context) ([]models.ContractType, error) {
	query := `SELECT type_key, name, latest_version FROM contract_types ORDER BY name ASC`

	rows, err := t.tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list contract types: %w", err)
	}
	defer rows.Close()

	var types []models.ContractType
	for rows.Next() {
		ct, err := scanContractType(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract type: %w", err)
		}
		types = append(types, ct)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contract types: %w", err)
	}

	return types, nil
}

func (t *pgTx) PutContractType(ctx context.Context, ct models.ContractType) error {
	if err := t.write(); err != nil {
		return err
	}

	query := `
		INSERT INTO contract_types (type_key, name, latest_version)
		VALUES ($1, $2, $3)
		ON CONFLICT (type_key) DO UPDATE SET latest_version = EXCLUDED.latest_version
	`

	if _, err := t.tx.Exec(ctx, query, ct.Key[:], ct.Name, int64(ct.LatestVersion)); err != nil {
		return fmt.Errorf("failed to save contract type: %w", err)
	}
	return nil
}

func (t *pgTx) Implementation(ctx context.Context, key models.TypeKey, version uint32) (models.ImplementationRecord, error) {
	query := `
		SELECT type_key, version, address, commit_hash, created_at
		FROM implementations
		WHERE type_key = $1 AND version = $2
	`

	rec, err := scanImplementation(t.tx.QueryRow(ctx, query, key[:], int64(version)))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ImplementationRecord{}, ErrNotFound
	}
	if err != nil {
		return models.ImplementationRecord{}, fmt.Errorf("failed to get implementation: %w", err)
	}
	return rec, nil
}

func (t *pgTx) Implementations(ctx context.Context, key models.TypeKey) ([]models.ImplementationRecord, error) {
	query := `
		SELECT type_key, version, address, commit_hash, created_at
		FROM implementations
		WHERE type_key = $1
		ORDER BY version ASC
	`

	rows, err := t.tx.Query(ctx, query, key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to list implementations: %w", err)
	}
	defer rows.Close()

	var records []models.ImplementationRecord
	for rows.Next() {
		rec, err := scanImplementation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan implementation: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating implementations: %w", err)
	}

	return records, nil
}

func (t *pgTx) InsertImplementation(ctx context.Context, rec models.ImplementationRecord) error {
	if err := t.write(); err != nil {
		return err
	}

	query := `
		INSERT INTO implementations (type_key, version, address, commit_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := t.tx.Exec(ctx, query,
		rec.TypeKey[:],
		int64(rec.Version),
		rec.Address.String(),
		rec.CommitHash[:],
		rec.CreatedAt,
	)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case "implementations_pkey":
			return models.ErrVersionExists
		case "implementations_commit_hash_key":
			return models.ErrCommitExists
		}
	}
	if err != nil {
		return fmt.Errorf("failed to save implementation: %w", err)
	}
	return nil
}

func (t *pgTx) CommitExists(ctx context.Context, hash models.CommitHash) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM implementations WHERE commit_hash = $1)`

	var exists bool
	if err := t.tx.QueryRow(ctx, query, hash[:]).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check commit hash: %w", err)
	}
	return exists, nil
}

func (t *pgTx) Factory(ctx context.Context, factory models.Address) (models.FactoryConfig, error) {
	query := `SELECT implementation, initialized FROM factories WHERE factory = $1`

	var implementation string
	cfg := models.FactoryConfig{Factory: factory}
	err := t.tx.QueryRow(ctx, query, factory.String()).Scan(&implementation, &cfg.Initialized)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.FactoryConfig{}, ErrNotFound
	}
	if err != nil {
		return models.FactoryConfig{}, fmt.Errorf("failed to get factory: %w", err)
	}

	if implementation != "" {
		if cfg.Implementation, err = models.ParseAddress(implementation); err != nil {
			return models.FactoryConfig{}, fmt.Errorf("failed to parse factory implementation: %w", err)
		}
	}
	return cfg, nil
}

func (t *pgTx) PutFactory(ctx context.Context, cfg models.FactoryConfig) error {
	if err := t.write(); err != nil {
		return err
	}

	implementation := ""
	if !cfg.Implementation.IsZero() {
		implementation = cfg.Implementation.String()
	}

	query := `
		INSERT INTO factories (factory, implementation, initialized)
		VALUES ($1, $2, $3)
		ON CONFLICT (factory) DO UPDATE
		SET implementation = EXCLUDED.implementation, initialized = EXCLUDED.initialized
	`

	if _, err := t.tx.Exec(ctx, query, cfg.Factory.String(), implementation, cfg.Initialized); err != nil {
		return fmt.Errorf("failed to save factory: %w", err)
	}
	return nil
}

func (t *pgTx) Clone(ctx context.Context, address models.Address) (models.CloneRecord, error) {
	query := `SELECT factory, template, salt, created_at FROM clones WHERE address = $1`

	var factory, template string
	var salt []byte
	rec := models.CloneRecord{Address: address}
	err := t.tx.QueryRow(ctx, query, address.String()).Scan(&factory, &template, &salt, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.CloneRecord{}, ErrNotFound
	}
	if err != nil {
		return models.CloneRecord{}, fmt.Errorf("failed to get clone: %w", err)
	}

	if rec.Factory, err = models.ParseAddress(factory); err != nil {
		return models.CloneRecord{}, fmt.Errorf("failed to parse clone factory: %w", err)
	}
	if rec.Template, err = models.ParseAddress(template); err != nil {
		return models.CloneRecord{}, fmt.Errorf("failed to parse clone template: %w", err)
	}
	copy(rec.Salt[:], salt)
	return rec, nil
}

func (t *pgTx) InsertClone(ctx context.Context, rec models.CloneRecord) error {
	if err := t.write(); err != nil {
		return err
	}

	query := `
		INSERT INTO clones (address, factory, template, salt, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := t.tx.Exec(ctx, query,
		rec.Address.String(),
		rec.Factory.String(),
		rec.Template.String(),
		rec.Salt[:],
		rec.CreatedAt,
	)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return models.ErrCloneExists
	}
	if err != nil {
		return fmt.Errorf("failed to save clone: %w", err)
	}
	return nil
}

func (t *pgTx) Slot(ctx context.Context, object models.Address, key string) ([]byte, error) {
	query := `SELECT value FROM object_slots WHERE object = $1 AND key = $2`

	var value []byte
	err := t.tx.QueryRow(ctx, query, object.String(), key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	return value, nil
}

func (t *pgTx) PutSlot(ctx context.Context, object models.Address, key string, value []byte) error {
	if err := t.write(); err != nil {
		return err
	}

	query := `
		INSERT INTO object_slots (object, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (object, key) DO UPDATE SET value = EXCLUDED.value
	`

	if _, err := t.tx.Exec(ctx, query, object.String(), key, value); err != nil {
		return fmt.Errorf("failed to save slot: %w", err)
	}
	return nil
}

func (t *pgTx) AppendEvent(ctx context.Context, event *models.Event) error {
	if err := t.write(); err != nil {
		return err
	}

	attrsJSON, err := json.Marshal(event.Attrs)
	if err != nil {
		return fmt.Errorf("failed to marshal attrs: %w", err)
	}

	query := `
		INSERT INTO events (tx_id, kind, emitter, attrs, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING seq
	`

	var seq int64
	err = t.tx.QueryRow(ctx, query,
		event.TxID,
		string(event.Kind),
		event.Emitter.String(),
		attrsJSON,
		event.Time,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}

	event.Seq = uint64(seq)
	return nil
}

func (t *pgTx) Events(ctx context.Context, filter models.EventFilter) ([]models.Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT seq, tx_id, kind, emitter, attrs, created_at
		FROM events
		WHERE seq > $1 AND ($2 = '' OR kind = $2)
		ORDER BY seq ASC
		LIMIT $3
	`

	rows, err := t.tx.Query(ctx, query, int64(filter.AfterSeq), string(filter.Kind), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var ev models.Event
		var seq int64
		var kind, emitter string
		var attrsJSON []byte

		if err := rows.Scan(&seq, &ev.TxID, &kind, &emitter, &attrsJSON, &ev.Time); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		ev.Seq = uint64(seq)
		ev.Kind = models.EventKind(kind)
		if ev.Emitter, err = models.ParseAddress(emitter); err != nil {
			return nil, fmt.Errorf("failed to parse event emitter: %w", err)
		}
		if err := json.Unmarshal(attrsJSON, &ev.Attrs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attrs: %w", err)
		}

		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

func scanContractType(row pgx.Row) (models.ContractType, error) {
	var ct models.ContractType
	var key []byte
	var latest int64

	if err := row.Scan(&key, &ct.Name, &latest); err != nil {
		return models.ContractType{}, err
	}

	copy(ct.Key[:], key)
	ct.LatestVersion = uint32(latest)
	return ct, nil
}

func scanImplementation(row pgx.Row) (models.ImplementationRecord, error) {
	var rec models.ImplementationRecord
	var key, commit []byte
	var version int64
	var address string

	if err := row.Scan(&key, &version, &address, &commit, &rec.CreatedAt); err != nil {
		return models.ImplementationRecord{}, err
	}

	parsed, err := models.ParseAddress(address)
	if err != nil {
		return models.ImplementationRecord{}, err
	}

	copy(rec.TypeKey[:], key)
	copy(rec.CommitHash[:], commit)
	rec.Version = uint32(version)
	rec.Address = parsed
	return rec, nil
}
