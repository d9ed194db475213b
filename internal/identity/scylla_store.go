package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"stepup-auth/internal/bucketing"
	"stepup-auth/internal/config"
	"stepup-auth/internal/encryption"
	"stepup-auth/internal/hashing"
	"stepup-auth/internal/util"
)

type preparedStatements struct {
	createIdentity *gocql.Query
	createLookup   *gocql.Query
	getByID        *gocql.Query
	getLookup      *gocql.Query
	updateStatus   *gocql.Query
	updateLogin    *gocql.Query
}

// ScyllaStore persists identities across two tables: identities partitioned
// by bucket+id, and identity_lookup keyed by the destination lookup hash.
type ScyllaStore struct {
	session  *gocql.Session
	buckets  *bucketing.Manager
	prepared *preparedStatements
}

func NewScyllaStore(cfg *config.Config, buckets *bucketing.Manager) (*ScyllaStore, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Hosts...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = parseConsistency(scyllaConfig.Consistency)
	cluster.Timeout = scyllaConfig.Timeout
	cluster.ConnectTimeout = scyllaConfig.Timeout
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	store := &ScyllaStore{
		session: session,
		buckets: buckets,
	}
	store.prepareStatements()

	util.Info("Scylla identity store initialized",
		zap.Strings("hosts", scyllaConfig.Hosts),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return store, nil
}

func parseConsistency(name string) gocql.Consistency {
	switch name {
	case "one":
		return gocql.One
	case "quorum":
		return gocql.Quorum
	case "local_quorum", "":
		return gocql.LocalQuorum
	default:
		return gocql.LocalQuorum
	}
}

func (s *ScyllaStore) prepareStatements() {
	s.prepared = &preparedStatements{
		createIdentity: s.session.Query(`
            INSERT INTO identities (
                bucket, id, email_hash, email_encrypted, phone_hash,
                phone_encrypted, password_hash, status, federated,
                created_at, updated_at, last_login_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		createLookup: s.session.Query(`
            INSERT INTO identity_lookup (lookup_hash, bucket, id, created_at)
            VALUES (?, ?, ?, ?)`),
		getByID: s.session.Query(`
            SELECT id, email_hash, email_encrypted, phone_hash, phone_encrypted,
                password_hash, status, federated, created_at, updated_at, last_login_at
            FROM identities WHERE bucket = ? AND id = ?`),
		getLookup: s.session.Query(`
            SELECT bucket, id FROM identity_lookup WHERE lookup_hash = ?`),
		updateStatus: s.session.Query(`
            UPDATE identities SET status = ?, updated_at = ?
            WHERE bucket = ? AND id = ?`),
		updateLogin: s.session.Query(`
            UPDATE identities SET last_login_at = ?, updated_at = ?
            WHERE bucket = ? AND id = ?`),
	}
}

func (s *ScyllaStore) Create(ctx context.Context, ident *Identity) error {
	if existing, err := s.lookup(ctx, ident.EmailHash); err == nil && existing != uuid.Nil {
		return ErrIdentityExists
	}

	emailBlob, err := marshalColumn(ident.EmailEncrypted)
	if err != nil {
		return err
	}
	phoneBlob, err := marshalColumn(ident.PhoneEncrypted)
	if err != nil {
		return err
	}
	passwordBlob, err := marshalColumn(ident.PasswordHash)
	if err != nil {
		return err
	}

	bucket := s.buckets.IdentityBucket(ident.ID)
	id := ident.ID.String()

	batch := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(s.prepared.createIdentity.Statement(),
		bucket, id, ident.EmailHash, emailBlob, ident.PhoneHash,
		phoneBlob, passwordBlob, string(ident.Status), ident.Federated,
		ident.CreatedAt, ident.UpdatedAt, ident.LastLoginAt)
	if ident.EmailHash != "" {
		batch.Query(s.prepared.createLookup.Statement(),
			ident.EmailHash, bucket, id, ident.CreatedAt)
	}
	if ident.PhoneHash != "" {
		batch.Query(s.prepared.createLookup.Statement(),
			ident.PhoneHash, bucket, id, ident.CreatedAt)
	}

	if err := s.session.ExecuteBatch(batch); err != nil {
		util.Error("Failed to create identity",
			zap.String("identity_id", ident.ID.String()),
			zap.Error(err))
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return nil
}

func (s *ScyllaStore) GetByID(ctx context.Context, id uuid.UUID) (*Identity, error) {
	return s.getByBucket(ctx, s.buckets.IdentityBucket(id), id)
}

func (s *ScyllaStore) getByBucket(ctx context.Context, bucket int, id uuid.UUID) (*Identity, error) {
	var ident Identity
	var idStr, status string
	var emailBlob, phoneBlob, passBlob []byte
	var lastLogin *time.Time

	err := s.prepared.getByID.WithContext(ctx).Bind(bucket, id.String()).Scan(
		&idStr, &ident.EmailHash, &emailBlob, &ident.PhoneHash, &phoneBlob,
		&passBlob, &status, &ident.Federated, &ident.CreatedAt,
		&ident.UpdatedAt, &lastLogin)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrIdentityNotFound
		}
		util.Error("Failed to get identity",
			zap.String("identity_id", id.String()),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ident.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt identity id %q: %w", idStr, err)
	}
	ident.Status = Status(status)
	ident.LastLoginAt = lastLogin
	if err := unmarshalColumn(emailBlob, &ident.EmailEncrypted); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(phoneBlob, &ident.PhoneEncrypted); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(passBlob, &ident.PasswordHash); err != nil {
		return nil, err
	}

	return &ident, nil
}

func (s *ScyllaStore) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	return s.findByLookup(ctx, LookupHash(email))
}

func (s *ScyllaStore) FindByPhone(ctx context.Context, phone string) (*Identity, error) {
	return s.findByLookup(ctx, LookupHash(phone))
}

func (s *ScyllaStore) findByLookup(ctx context.Context, hash string) (*Identity, error) {
	var bucket int
	var idStr string
	err := s.prepared.getLookup.WithContext(ctx).Bind(hash).Scan(&bucket, &idStr)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrIdentityNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt identity id %q: %w", idStr, err)
	}
	return s.getByBucket(ctx, bucket, id)
}

func (s *ScyllaStore) lookup(ctx context.Context, hash string) (uuid.UUID, error) {
	if hash == "" {
		return uuid.Nil, ErrIdentityNotFound
	}
	var bucket int
	var idStr string
	if err := s.prepared.getLookup.WithContext(ctx).Bind(hash).Scan(&bucket, &idStr); err != nil {
		return uuid.Nil, ErrIdentityNotFound
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, ErrIdentityNotFound
	}
	return id, nil
}

func (s *ScyllaStore) Activate(ctx context.Context, id uuid.UUID) error {
	bucket := s.buckets.IdentityBucket(id)
	now := time.Now().UTC()

	if err := s.prepared.updateStatus.WithContext(ctx).Bind(string(StatusActive), now, bucket, id).Exec(); err != nil {
		util.Error("Failed to activate identity",
			zap.String("identity_id", id.String()),
			zap.Error(err))
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *ScyllaStore) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	bucket := s.buckets.IdentityBucket(id)

	if err := s.prepared.updateLogin.WithContext(ctx).Bind(at.UTC(), at.UTC(), bucket, id).Exec(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *ScyllaStore) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	if err := s.session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName); err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}
	return nil
}

func (s *ScyllaStore) Close() {
	if s.session != nil {
		s.session.Close()
		util.Info("Scylla identity store closed")
	}
}

func marshalColumn(v interface{}) ([]byte, error) {
	switch typed := v.(type) {
	case *encryption.EncryptedData:
		if typed == nil {
			return nil, nil
		}
	case *hashing.Result:
		if typed == nil {
			return nil, nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode identity column: %w", err)
	}
	return raw, nil
}

func unmarshalColumn(raw []byte, dest interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("failed to decode identity column: %w", err)
	}
	return nil
}
