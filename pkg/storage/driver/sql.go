/*
Copyright The Helm Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package driver // import "helm.sh/release-store/pkg/storage/driver"

import (
	"database/sql"
	"log/slog"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	migrate "github.com/rubenv/sql-migrate"

	"helm.sh/release-store/internal/logging"
	rspb "helm.sh/release-store/pkg/release"
)

var _ Driver = (*SQL)(nil)

const postgreSQLDialect = "postgres"

// SQLDriverName is the string name of this driver.
const SQLDriverName = "SQL"

const sqlReleaseTableName = "releases_v1"

const (
	sqlReleaseTableKeyColumn        = "key"
	sqlReleaseTableTypeColumn       = "type"
	sqlReleaseTableBodyColumn       = "body"
	sqlReleaseTableNameColumn       = "name"
	sqlReleaseTableNamespaceColumn  = "namespace"
	sqlReleaseTableVersionColumn    = "version"
	sqlReleaseTableStatusColumn     = "status"
	sqlReleaseTableOwnerColumn      = "owner"
	sqlReleaseTableCreatedAtColumn  = "createdAt"
	sqlReleaseTableModifiedAtColumn = "modifiedAt"
)

const (
	sqlReleaseDefaultOwner = owner
	sqlReleaseDefaultType  = releaseObjectType
)

// pqUniqueViolation is the postgres error code for a duplicate key.
const pqUniqueViolation = "23505"

// SQL is the sql storage driver implementation.
type SQL struct {
	db               *sqlx.DB
	namespace        string
	statementBuilder sq.StatementBuilderType
	logging.LogHolder
}

// Name returns the name of the driver.
func (s *SQL) Name() string {
	return SQLDriverName
}

func releaseMigrations() []*migrate.Migration {
	return []*migrate.Migration{
		{
			Id: "init",
			Up: []string{
				`
					CREATE TABLE ` + sqlReleaseTableName + ` (
						` + sqlReleaseTableKeyColumn + ` VARCHAR(90),
						` + sqlReleaseTableTypeColumn + ` VARCHAR(64) NOT NULL,
						` + sqlReleaseTableBodyColumn + ` TEXT NOT NULL,
						` + sqlReleaseTableNameColumn + ` VARCHAR(64) NOT NULL,
						` + sqlReleaseTableNamespaceColumn + ` VARCHAR(64) NOT NULL,
						` + sqlReleaseTableVersionColumn + ` INTEGER NOT NULL,
						` + sqlReleaseTableStatusColumn + ` TEXT NOT NULL,
						` + sqlReleaseTableOwnerColumn + ` TEXT NOT NULL,
						` + sqlReleaseTableCreatedAtColumn + ` INTEGER NOT NULL,
						` + sqlReleaseTableModifiedAtColumn + ` INTEGER NOT NULL DEFAULT 0,
						PRIMARY KEY(` + sqlReleaseTableKeyColumn + `, ` + sqlReleaseTableNamespaceColumn + `)
					);
					CREATE INDEX ON ` + sqlReleaseTableName + ` (` + sqlReleaseTableKeyColumn + `, ` + sqlReleaseTableNamespaceColumn + `);
					CREATE INDEX ON ` + sqlReleaseTableName + ` (` + sqlReleaseTableVersionColumn + `);
					CREATE INDEX ON ` + sqlReleaseTableName + ` (` + sqlReleaseTableStatusColumn + `);
					CREATE INDEX ON ` + sqlReleaseTableName + ` (` + sqlReleaseTableOwnerColumn + `);
					CREATE INDEX ON ` + sqlReleaseTableName + ` (` + sqlReleaseTableCreatedAtColumn + `);
					CREATE INDEX ON ` + sqlReleaseTableName + ` (` + sqlReleaseTableModifiedAtColumn + `);
				`,
			},
			Down: []string{
				`
					DROP TABLE ` + sqlReleaseTableName + `;
				`,
			},
		},
	}
}

// migrationsApplied reports whether every migration id appears among the
// applied records.
func migrationsApplied(migrations []*migrate.Migration, records []*migrate.MigrationRecord) bool {
	applied := make(map[string]struct{}, len(records))
	for _, r := range records {
		applied[r.Id] = struct{}{}
	}
	for _, m := range migrations {
		if _, ok := applied[m.Id]; !ok {
			return false
		}
	}
	return true
}

func (s *SQL) ensureDBSetup() error {
	migrations := releaseMigrations()

	records, err := migrate.GetMigrationRecords(s.db.DB, postgreSQLDialect)
	if err == nil && migrationsApplied(migrations, records) {
		s.Logger().Debug("all migrations applied")
		return nil
	}

	_, err = migrate.Exec(s.db.DB, postgreSQLDialect, &migrate.MemoryMigrationSource{Migrations: migrations}, migrate.Up)
	return errors.Wrap(err, "failed to apply release table migrations")
}

// SQLReleaseWrapper describes how releases are stored in an SQL database
type SQLReleaseWrapper struct {
	// The primary key, made of {release-name}.{release-version}
	Key string `db:"key"`

	// See the Type of the Secrets driver objects
	Type string `db:"type"`

	// The rspb.Release body, as a base64-encoded string
	Body string `db:"body"`

	// Release "labels" that can be used as filters in Query
	Name       string `db:"name"`
	Namespace  string `db:"namespace"`
	Version    int    `db:"version"`
	Status     string `db:"status"`
	Owner      string `db:"owner"`
	CreatedAt  int    `db:"createdAt"`
	ModifiedAt int    `db:"modifiedAt"`
}

// NewSQL initializes a new sql driver backed by postgres. An empty
// namespace lists and queries across all namespaces.
func NewSQL(connectionString, namespace string) (*SQL, error) {
	db, err := sqlx.Connect(postgreSQLDialect, connectionString)
	if err != nil {
		return nil, &BackendError{Op: "connect", Err: err}
	}

	driver := newSQLWithDB(db, namespace)
	if err := driver.ensureDBSetup(); err != nil {
		return nil, err
	}
	return driver, nil
}

func newSQLWithDB(db *sqlx.DB, namespace string) *SQL {
	s := &SQL{
		db:               db,
		namespace:        namespace,
		statementBuilder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
	s.SetLogger(slog.Default().Handler())
	return s
}

// writeNamespace is the namespace single-key operations act on.
func (s *SQL) writeNamespace() string {
	if s.namespace == "" {
		return defaultNamespace
	}
	return s.namespace
}

// Close releases the database handle.
func (s *SQL) Close() error {
	return s.db.Close()
}

// Get returns the release named by key.
func (s *SQL) Get(key string) (*rspb.Release, error) {
	var record SQLReleaseWrapper

	qb := s.statementBuilder.
		Select(sqlReleaseTableBodyColumn).
		From(sqlReleaseTableName).
		Where(sq.Eq{sqlReleaseTableKeyColumn: key}).
		Where(sq.Eq{sqlReleaseTableNamespaceColumn: s.writeNamespace()})

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, &BackendError{Op: "get", Err: err}
	}

	// Get will return an error if the result is empty
	if err := s.db.Get(&record, query, args...); err != nil {
		return nil, fromSQLError("get", err)
	}

	return decodeRelease([]byte(record.Body), decodeBase64)
}

// List returns the list of all releases such that filter(release) == true
func (s *SQL) List(filter func(*rspb.Release) bool) ([]*rspb.Release, error) {
	sb := s.statementBuilder.
		Select(sqlReleaseTableKeyColumn, sqlReleaseTableNamespaceColumn, sqlReleaseTableBodyColumn).
		From(sqlReleaseTableName).
		Where(sq.Eq{sqlReleaseTableOwnerColumn: sqlReleaseDefaultOwner})

	// If a namespace was specified, we only list releases from that namespace
	if s.namespace != "" {
		sb = sb.Where(sq.Eq{sqlReleaseTableNamespaceColumn: s.namespace})
	}

	return s.selectReleases("list", sb, filter)
}

// Query returns the set of releases that match the provided set of labels.
// Only the system labels have columns in the release table, so other
// labels are rejected.
func (s *SQL) Query(labels map[string]string) ([]*rspb.Release, error) {
	sb := s.statementBuilder.
		Select(sqlReleaseTableKeyColumn, sqlReleaseTableNamespaceColumn, sqlReleaseTableBodyColumn).
		From(sqlReleaseTableName)

	keys := make([]string, 0, len(labels))
	for key := range labels {
		if !isSystemLabel(key) {
			return nil, errors.WithMessagef(ErrMalformedData, "unknown label %q", key)
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		sb = sb.Where(sq.Eq{key: labels[key]})
	}

	// If a namespace was specified, we only query releases from that namespace
	if s.namespace != "" {
		sb = sb.Where(sq.Eq{sqlReleaseTableNamespaceColumn: s.namespace})
	}

	return s.selectReleases("query", sb, func(*rspb.Release) bool { return true })
}

func (s *SQL) selectReleases(op string, sb sq.SelectBuilder, filter func(*rspb.Release) bool) ([]*rspb.Release, error) {
	query, args, err := sb.ToSql()
	if err != nil {
		return nil, &BackendError{Op: op, Err: err}
	}

	var records []SQLReleaseWrapper
	if err := s.db.Select(&records, query, args...); err != nil {
		return nil, &BackendError{Op: op, Err: err}
	}

	var releases []*rspb.Release
	for _, record := range records {
		release, err := decodeRelease([]byte(record.Body), decodeBase64)
		if err != nil {
			s.Logger().Warn("skipping release that failed to decode",
				slog.String("op", op),
				slog.String("key", record.Key),
				slog.Any("error", err),
			)
			continue
		}
		if filter(release) {
			releases = append(releases, release)
		}
	}
	return releases, nil
}

// Create creates a new release.
func (s *SQL) Create(key string, rls *rspb.Release) error {
	body, err := encodeRelease(rls)
	if err != nil {
		return errors.WithMessagef(err, "create: failed to encode release %q", rls.Name)
	}

	query, args, err := s.statementBuilder.
		Insert(sqlReleaseTableName).
		Columns(
			sqlReleaseTableKeyColumn,
			sqlReleaseTableTypeColumn,
			sqlReleaseTableBodyColumn,
			sqlReleaseTableNameColumn,
			sqlReleaseTableNamespaceColumn,
			sqlReleaseTableVersionColumn,
			sqlReleaseTableStatusColumn,
			sqlReleaseTableOwnerColumn,
			sqlReleaseTableCreatedAtColumn,
		).
		Values(
			key,
			sqlReleaseDefaultType,
			body,
			rls.Name,
			s.writeNamespace(),
			rls.Version,
			rls.CurrentStatus().String(),
			sqlReleaseDefaultOwner,
			int(time.Now().Unix()),
		).ToSql()
	if err != nil {
		return &BackendError{Op: "create", Err: err}
	}

	if _, err := s.db.Exec(query, args...); err != nil {
		return fromSQLError("create", err)
	}
	s.Logger().Debug("created release row", slog.String("key", key))
	return nil
}

// Update updates a release.
func (s *SQL) Update(key string, rls *rspb.Release) error {
	body, err := encodeRelease(rls)
	if err != nil {
		return errors.WithMessagef(err, "update: failed to encode release %q", rls.Name)
	}

	query, args, err := s.statementBuilder.
		Update(sqlReleaseTableName).
		Set(sqlReleaseTableBodyColumn, body).
		Set(sqlReleaseTableNameColumn, rls.Name).
		Set(sqlReleaseTableVersionColumn, rls.Version).
		Set(sqlReleaseTableStatusColumn, rls.CurrentStatus().String()).
		Set(sqlReleaseTableOwnerColumn, sqlReleaseDefaultOwner).
		Set(sqlReleaseTableModifiedAtColumn, int(time.Now().Unix())).
		Where(sq.Eq{sqlReleaseTableKeyColumn: key}).
		Where(sq.Eq{sqlReleaseTableNamespaceColumn: s.writeNamespace()}).
		ToSql()
	if err != nil {
		return &BackendError{Op: "update", Err: err}
	}

	res, err := s.db.Exec(query, args...)
	if err != nil {
		return fromSQLError("update", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrReleaseNotFound
	}
	return nil
}

// Delete deletes a release or returns ErrReleaseNotFound.
func (s *SQL) Delete(key string) (*rspb.Release, error) {
	transaction, err := s.db.Beginx()
	if err != nil {
		return nil, &BackendError{Op: "delete", Err: errors.Wrap(err, "error beginning transaction")}
	}
	defer func() {
		// Rollback after a commit is a no-op.
		_ = transaction.Rollback()
	}()

	selectQuery, args, err := s.statementBuilder.
		Select(sqlReleaseTableBodyColumn).
		From(sqlReleaseTableName).
		Where(sq.Eq{sqlReleaseTableKeyColumn: key}).
		Where(sq.Eq{sqlReleaseTableNamespaceColumn: s.writeNamespace()}).
		ToSql()
	if err != nil {
		return nil, &BackendError{Op: "delete", Err: err}
	}

	var record SQLReleaseWrapper
	if err := transaction.Get(&record, selectQuery, args...); err != nil {
		return nil, fromSQLError("delete", err)
	}

	release, err := decodeRelease([]byte(record.Body), decodeBase64)
	if err != nil {
		return nil, err
	}

	deleteQuery, args, err := s.statementBuilder.
		Delete(sqlReleaseTableName).
		Where(sq.Eq{sqlReleaseTableKeyColumn: key}).
		Where(sq.Eq{sqlReleaseTableNamespaceColumn: s.writeNamespace()}).
		ToSql()
	if err != nil {
		return nil, &BackendError{Op: "delete", Err: err}
	}

	if _, err := transaction.Exec(deleteQuery, args...); err != nil {
		return nil, fromSQLError("delete", err)
	}
	if err := transaction.Commit(); err != nil {
		return nil, &BackendError{Op: "delete", Err: err}
	}
	return release, nil
}

// fromSQLError maps database failures onto the driver error kinds.
func fromSQLError(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrReleaseNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
		return ErrReleaseExists
	}
	return &BackendError{Op: op, Err: err}
}
