package main

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
)

func TestParseArgs_Defaults(t *testing.T) {
	o, err := parseArgs(nil)
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if o.direction != "up" {
		t.Fatalf("expected direction up, got %q", o.direction)
	}
	if o.steps != 0 {
		t.Fatalf("expected steps 0, got %d", o.steps)
	}
	if o.force != -1 {
		t.Fatalf("expected force -1, got %d", o.force)
	}
	if o.forceDirty || o.showVersion {
		t.Fatalf("expected forceDirty and showVersion false")
	}
}

func TestParseArgs_InvalidDirection(t *testing.T) {
	_, err := parseArgs([]string{"-direction", "sideways"})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseArgs_Force(t *testing.T) {
	o, err := parseArgs([]string{"-force", "12"})
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if o.force != 12 {
		t.Fatalf("expected force 12, got %d", o.force)
	}
}

func TestResolveSourceURL(t *testing.T) {
	if got := resolveSourceURL(nil); got != defaultSourceURL {
		t.Fatalf("expected default source, got %q", got)
	}
	if got := resolveSourceURL(func(string) string { return "" }); got != defaultSourceURL {
		t.Fatalf("expected default source, got %q", got)
	}
	getenv := func(k string) string {
		if k == "MIGRATIONS_PATH" {
			return "file:///opt/solostudio/migrations"
		}
		return ""
	}
	if got := resolveSourceURL(getenv); got != "file:///opt/solostudio/migrations" {
		t.Fatalf("expected override, got %q", got)
	}
}

func TestRun_MissingDatabaseURL(t *testing.T) {
	_, err := run(nil, deps{
		loadEnv: func(...string) error { return nil },
		getenv:  func(string) string { return "" },
		openDB: func(string, string) (*sql.DB, error) {
			t.Fatalf("openDB should not be called")
			return nil, nil
		},
		migrateF: func(*sql.DB, string, string, int) error {
			t.Fatalf("migrateF should not be called")
			return nil
		},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestRun_NoChange(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	var gotSource, gotDir string
	var gotSteps int

	msg, err := run([]string{"-direction", "up"}, deps{
		loadEnv: func(...string) error { return nil },
		getenv: func(k string) string {
			if k == "DATABASE_URL" {
				return "postgres://example"
			}
			return ""
		},
		openDB: func(string, string) (*sql.DB, error) { return db, nil },
		migrateF: func(_ *sql.DB, sourceURL, direction string, steps int) error {
			gotSource = sourceURL
			gotDir = direction
			gotSteps = steps
			return migrate.ErrNoChange
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if gotSource != defaultSourceURL {
		t.Fatalf("expected default source, got %q", gotSource)
	}
	if gotDir != "up" || gotSteps != 0 {
		t.Fatalf("expected migrateF called with up/0, got %q/%d", gotDir, gotSteps)
	}
	if msg != "No migrations to apply" {
		t.Fatalf("expected no-change msg, got %q", msg)
	}
}

func TestRun_StepsDown(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	var gotDir string
	var gotSteps int

	msg, err := run([]string{"-direction", "down", "-steps", "2"}, deps{
		loadEnv: func(...string) error { return nil },
		getenv: func(k string) string {
			if k == "DATABASE_URL" {
				return "postgres://example"
			}
			return ""
		},
		openDB: func(string, string) (*sql.DB, error) { return db, nil },
		migrateF: func(_ *sql.DB, _, direction string, steps int) error {
			gotDir = direction
			gotSteps = steps
			return nil
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if gotDir != "down" || gotSteps != 2 {
		t.Fatalf("expected migrateF called with down/2, got %q/%d", gotDir, gotSteps)
	}
	if msg != "Migration down completed successfully" {
		t.Fatalf("unexpected msg: %q", msg)
	}
}

func TestRun_OpenDBError(t *testing.T) {
	_, err := run([]string{"-direction", "up"}, deps{
		loadEnv: func(...string) error { return nil },
		getenv: func(k string) string {
			if k == "DATABASE_URL" {
				return "postgres://example"
			}
			return ""
		},
		openDB: func(string, string) (*sql.DB, error) { return nil, sql.ErrConnDone },
		migrateF: func(*sql.DB, string, string, int) error {
			t.Fatalf("migrateF should not be called")
			return nil
		},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestRun_MigrateFnMissing(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	_, err = run([]string{"-direction", "up"}, deps{
		loadEnv: func(...string) error { return nil },
		getenv: func(k string) string {
			if k == "DATABASE_URL" {
				return "postgres://example"
			}
			return ""
		},
		openDB:   func(string, string) (*sql.DB, error) { return db, nil },
		migrateF: nil,
	})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestRun_MigrateError(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	_, err = run([]string{"-direction", "up"}, deps{
		loadEnv: func(...string) error { return nil },
		getenv: func(k string) string {
			if k == "DATABASE_URL" {
				return "postgres://example"
			}
			return ""
		},
		openDB: func(string, string) (*sql.DB, error) { return db, nil },
		migrateF: func(*sql.DB, string, string, int) error {
			return sql.ErrTxDone
		},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
}

type fakeMigrator struct {
	upCalls    int
	downCalls  int
	stepsCalls []int
	forceCalls []int
	version    uint
	dirty      bool
	versionErr error
}

func (f *fakeMigrator) Up() error                    { f.upCalls++; return nil }
func (f *fakeMigrator) Down() error                  { f.downCalls++; return nil }
func (f *fakeMigrator) Steps(n int) error            { f.stepsCalls = append(f.stepsCalls, n); return nil }
func (f *fakeMigrator) Force(v int) error            { f.forceCalls = append(f.forceCalls, v); return nil }
func (f *fakeMigrator) Version() (uint, bool, error) { return f.version, f.dirty, f.versionErr }

func stubMigrator(t *testing.T, fm *fakeMigrator) {
	t.Helper()
	prevWith := withPostgresInstance
	prevNewMigrate := newMigrateWithDB
	t.Cleanup(func() {
		withPostgresInstance = prevWith
		newMigrateWithDB = prevNewMigrate
	})
	withPostgresInstance = func(_ *sql.DB) (migratedb.Driver, error) { return nil, nil }
	newMigrateWithDB = func(string, string, migratedb.Driver) (migrator, error) { return fm, nil }
}

func envDeps(db *sql.DB) deps {
	return deps{
		loadEnv: func(...string) error { return nil },
		getenv: func(k string) string {
			if k == "DATABASE_URL" {
				return "postgres://example"
			}
			return ""
		},
		openDB: func(string, string) (*sql.DB, error) { return db, nil },
	}
}

func TestPerformMigrations_AppliesDirection(t *testing.T) {
	fm := &fakeMigrator{}
	stubMigrator(t, fm)

	if err := performMigrations(nil, defaultSourceURL, "up", 0); err != nil {
		t.Fatalf("performMigrations: %v", err)
	}
	if fm.upCalls != 1 {
		t.Fatalf("expected Up called once, got %d", fm.upCalls)
	}
}

func TestRun_ForceVersion_UsesMigratorForceAndExits(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	fm := &fakeMigrator{}
	stubMigrator(t, fm)

	d := envDeps(db)
	d.migrateF = func(*sql.DB, string, string, int) error {
		t.Fatalf("migrateF should not be called when forcing")
		return nil
	}

	msg, err := run([]string{"-force", "12"}, d)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if msg != "Forced database to version 12" {
		t.Fatalf("unexpected msg: %q", msg)
	}
	if len(fm.forceCalls) != 1 || fm.forceCalls[0] != 12 {
		t.Fatalf("expected Force(12) called, got %#v", fm.forceCalls)
	}
}

func TestRun_ForceDirty(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	fm := &fakeMigrator{version: 7, dirty: true}
	stubMigrator(t, fm)

	msg, err := run([]string{"-force-dirty"}, envDeps(db))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if msg != "Forced dirty database to version 7" {
		t.Fatalf("unexpected msg: %q", msg)
	}
	if len(fm.forceCalls) != 1 || fm.forceCalls[0] != 7 {
		t.Fatalf("expected Force(7) called, got %#v", fm.forceCalls)
	}
}

func TestRun_ForceDirty_CleanDatabase(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	fm := &fakeMigrator{version: 7, dirty: false}
	stubMigrator(t, fm)

	msg, err := run([]string{"-force-dirty"}, envDeps(db))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if msg != "Database is not dirty (no force needed)" {
		t.Fatalf("unexpected msg: %q", msg)
	}
	if len(fm.forceCalls) != 0 {
		t.Fatalf("expected no Force calls, got %#v", fm.forceCalls)
	}
}

func TestRun_VersionFlag(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	fm := &fakeMigrator{version: 9}
	stubMigrator(t, fm)

	msg, err := run([]string{"-version"}, envDeps(db))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if msg != "Database at version 9" {
		t.Fatalf("unexpected msg: %q", msg)
	}
}

func TestRun_VersionFlag_Dirty(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	fm := &fakeMigrator{version: 9, dirty: true}
	stubMigrator(t, fm)

	msg, err := run([]string{"-version"}, envDeps(db))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if msg != "Database at version 9 (dirty)" {
		t.Fatalf("unexpected msg: %q", msg)
	}
}

func TestRun_VersionFlag_NoMigrations(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	fm := &fakeMigrator{versionErr: migrate.ErrNilVersion}
	stubMigrator(t, fm)

	msg, err := run([]string{"-version"}, envDeps(db))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if msg != "Database has no applied migrations" {
		t.Fatalf("unexpected msg: %q", msg)
	}
}

func TestApplyDirection_InvalidDirection(t *testing.T) {
	fm := &fakeMigrator{}
	if err := applyDirection(fm, "sideways", 0); err == nil {
		t.Fatalf("expected error")
	}
}

func TestApplyDirection_DownAndSteps(t *testing.T) {
	fm := &fakeMigrator{}
	if err := applyDirection(fm, "down", 0); err != nil {
		t.Fatalf("down: %v", err)
	}
	if fm.downCalls != 1 {
		t.Fatalf("expected Down called, got %d", fm.downCalls)
	}

	fm2 := &fakeMigrator{}
	if err := applyDirection(fm2, "up", 2); err != nil {
		t.Fatalf("up steps: %v", err)
	}
	if len(fm2.stepsCalls) != 1 || fm2.stepsCalls[0] != 2 {
		t.Fatalf("expected Steps(2), got %#v", fm2.stepsCalls)
	}

	fm3 := &fakeMigrator{}
	if err := applyDirection(fm3, "down", 3); err != nil {
		t.Fatalf("down steps: %v", err)
	}
	if len(fm3.stepsCalls) != 1 || fm3.stepsCalls[0] != -3 {
		t.Fatalf("expected Steps(-3), got %#v", fm3.stepsCalls)
	}
}

func TestPerformMigrations_NewMigratorError(t *testing.T) {
	prevWith := withPostgresInstance
	defer func() { withPostgresInstance = prevWith }()

	withPostgresInstance = func(_ *sql.DB) (migratedb.Driver, error) { return nil, sql.ErrConnDone }
	if err := performMigrations(nil, defaultSourceURL, "up", 0); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNewMigrator_FactoryErrorPaths(t *testing.T) {
	prevWith := withPostgresInstance
	prevNewMigrate := newMigrateWithDB
	defer func() {
		withPostgresInstance = prevWith
		newMigrateWithDB = prevNewMigrate
	}()

	withPostgresInstance = func(_ *sql.DB) (migratedb.Driver, error) { return nil, sql.ErrConnDone }
	if _, err := newMigrator(nil, defaultSourceURL); err == nil {
		t.Fatalf("expected error")
	}

	withPostgresInstance = func(_ *sql.DB) (migratedb.Driver, error) { return nil, nil }
	newMigrateWithDB = func(string, string, migratedb.Driver) (migrator, error) { return nil, sql.ErrConnDone }
	if _, err := newMigrator(nil, defaultSourceURL); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDefaultDeps_NonNil(t *testing.T) {
	d := defaultDeps()
	if d.getenv == nil || d.openDB == nil || d.migrateF == nil {
		t.Fatalf("expected default deps to be populated: %#v", d)
	}
}
