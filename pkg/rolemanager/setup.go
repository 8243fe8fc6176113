package rolemanager

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"github.com/nsrbac/rolemanager/pkg/password"
)

var defaultSeedVerifier = password.NewArgon2Verifier()

func decimalFromInt(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// SetupOptions controls QuickSetup/Setup's migration and cache wiring:
// which migrations to run and how to log them, which L2Cache backend to
// use, and whether to load the seed scenario.
type SetupOptions struct {
	MigrationOptions *MigrationOptions
	MigrationLogger  *log.Logger
	L2               L2Cache
	Logger           *Logger
	// SeedDemoData loads a literal end-to-end scenario (alice, bob,
	// Staff/Editors/Proofreaders, ...) into an empty database. Intended for
	// local development and the cmd/rolemanagerctl demo subcommand, never
	// for production setup.
	SeedDemoData bool
}

// QuickSetup runs migrations to the latest version and returns a ready
// Facade over db with default options (no L2 cache, default logger).
func QuickSetup(db *sql.DB) (*Facade, error) {
	return Setup(db, nil)
}

// Setup brings db's schema up to date and returns a Facade configured per
// opts. A nil opts behaves like QuickSetup.
func Setup(db *sql.DB, opts *SetupOptions) (*Facade, error) {
	if opts == nil {
		opts = &SetupOptions{}
	}

	ctx := context.Background()
	migrator := NewMigrator(db, opts.MigrationLogger)
	migOpts := opts.MigrationOptions
	if migOpts == nil {
		migOpts = DefaultMigrationOptions()
	}
	if err := migrator.Init(ctx, migOpts); err != nil {
		return nil, fmt.Errorf("initialize role manager schema: %w", err)
	}

	store := NewSQLStore(db)
	facade := New(store, Options{L2: opts.L2, Logger: opts.Logger})

	if opts.SeedDemoData {
		if err := seedDemoData(ctx, facade); err != nil {
			return nil, fmt.Errorf("seed demo data: %w", err)
		}
	}

	return facade, nil
}

// HealthReport is CheckHealth's result: whether the schema is present and
// usable, plus operational detail worth surfacing on a /healthz endpoint.
type HealthReport struct {
	Healthy            bool
	PermissionsVersion int64
	Detail             string
}

// CheckHealth verifies the schema migrations have run and reports the
// current permissions_version, so a caller's health endpoint can alert on
// both "not installed" and "installed but the version counter looks wrong"
// (e.g. 0, which the schema's seed row never produces).
func CheckHealth(ctx context.Context, db *sql.DB) (*HealthReport, error) {
	var exists bool
	const q = `SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = 'schema_migrations')`
	if err := db.QueryRowContext(ctx, q).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check migrations table: %w", err)
	}
	if !exists {
		return &HealthReport{Healthy: false, Detail: "role manager not initialized: run migrations first"}, nil
	}

	requiredTables := []string{
		"role_manager_users", "role_manager_groups", "role_manager_rights",
		"role_manager_roles", "role_manager_contexts", "role_manager_config",
	}
	for _, table := range requiredTables {
		const existsQ = `SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)`
		if err := db.QueryRowContext(ctx, existsQ, table).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check table %s: %w", table, err)
		}
		if !exists {
			return &HealthReport{Healthy: false, Detail: fmt.Sprintf("required table %s is missing", table)}, nil
		}
	}

	store := NewSQLStore(db)
	version, err := store.PermissionsVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("read permissions_version: %w", err)
	}

	return &HealthReport{Healthy: true, PermissionsVersion: version, Detail: "ok"}, nil
}

// seedDemoData loads the literal scenario from the testable-properties
// section: users alice/bob, the Staff > Editors > Proofreaders chain plus
// Marketing, rights view_article/publish_article/edit_article/
// approve_budget, and the role/context assignments the worked examples
// exercise. It is idempotent-ish only in the sense that re-running it
// against a populated database will surface conflict errors from the
// underlying facade calls, which is intentional: it is a seed, not an
// upsert.
func seedDemoData(ctx context.Context, f *Facade) error {
	rightGroupID, err := f.RightGroups().Create(ctx, "content")
	if err != nil {
		return err
	}
	budgetGroupID, err := f.RightGroups().Create(ctx, "finance")
	if err != nil {
		return err
	}

	budgetRangeID, err := f.RightTypes().Create(ctx, "budget_approval", decimalFromInt(0), decimalFromInt(10000))
	if err != nil {
		return err
	}

	viewID, err := f.Rights().Create(ctx, "view_article", rightGroupID, RightTypeBoolean, nil)
	if err != nil {
		return err
	}
	publishID, err := f.Rights().Create(ctx, "publish_article", rightGroupID, RightTypeBoolean, nil)
	if err != nil {
		return err
	}
	editID, err := f.Rights().Create(ctx, "edit_article", rightGroupID, RightTypeBoolean, nil)
	if err != nil {
		return err
	}
	approveID, err := f.Rights().Create(ctx, "approve_budget", budgetGroupID, RightTypeRange, &budgetRangeID)
	if err != nil {
		return err
	}

	readerRoleID, err := f.Roles().Create(ctx, "Reader")
	if err != nil {
		return err
	}
	if err := f.Roles().AttachRight(ctx, readerRoleID, viewID, nil); err != nil {
		return err
	}

	proofreaderRoleID, err := f.Roles().Create(ctx, "Proofreader")
	if err != nil {
		return err
	}
	if err := f.Roles().AttachRight(ctx, proofreaderRoleID, editID, nil); err != nil {
		return err
	}

	editorRoleID, err := f.Roles().Create(ctx, "Editor")
	if err != nil {
		return err
	}
	if err := f.Roles().AttachRight(ctx, editorRoleID, publishID, nil); err != nil {
		return err
	}
	editorBudget := decimalFromInt(2000)
	if err := f.Roles().AttachRight(ctx, editorRoleID, approveID, &editorBudget); err != nil {
		return err
	}

	marketingRoleID, err := f.Roles().Create(ctx, "Marketing")
	if err != nil {
		return err
	}
	marketingBudget := decimalFromInt(2500)
	if err := f.Roles().AttachRight(ctx, marketingRoleID, approveID, &marketingBudget); err != nil {
		return err
	}

	juniorManagerRoleID, err := f.Roles().Create(ctx, "JuniorManager")
	if err != nil {
		return err
	}
	juniorBudget := decimalFromInt(1000)
	if err := f.Roles().AttachRight(ctx, juniorManagerRoleID, approveID, &juniorBudget); err != nil {
		return err
	}

	internRoleID, err := f.Roles().Create(ctx, "Intern")
	if err != nil {
		return err
	}
	if err := f.Roles().AttachRight(ctx, internRoleID, viewID, nil); err != nil {
		return err
	}

	alphaID, err := f.Contexts().Create(ctx, "Alpha")
	if err != nil {
		return err
	}
	betaID, err := f.Contexts().Create(ctx, "Beta")
	if err != nil {
		return err
	}
	omegaID, err := f.Contexts().Create(ctx, "Omega")
	if err != nil {
		return err
	}

	staffID, err := f.Groups().Create(ctx, "Staff", "")
	if err != nil {
		return err
	}
	editorsID, err := f.Groups().Create(ctx, "Editors", "")
	if err != nil {
		return err
	}
	proofreadersID, err := f.Groups().Create(ctx, "Proofreaders", "")
	if err != nil {
		return err
	}
	marketingGroupID, err := f.Groups().Create(ctx, "Marketing", "")
	if err != nil {
		return err
	}

	if err := f.Groups().AddSubgroup(ctx, staffID, editorsID); err != nil {
		return err
	}
	if err := f.Groups().AddSubgroup(ctx, editorsID, proofreadersID); err != nil {
		return err
	}

	alice, err := f.Users().Create(ctx, "alice", "alice@example.com", seedPasswordHash(), "Alice", "")
	if err != nil {
		return err
	}
	bob, err := f.Users().Create(ctx, "bob", "bob@example.com", seedPasswordHash(), "Bob", "")
	if err != nil {
		return err
	}

	if err := f.Users().AddToGroup(ctx, alice, editorsID); err != nil {
		return err
	}
	if err := f.Users().AddToGroup(ctx, alice, marketingGroupID); err != nil {
		return err
	}
	if err := f.Users().AddToGroup(ctx, bob, proofreadersID); err != nil {
		return err
	}

	if err := f.Groups().AssignRole(ctx, staffID, nil, readerRoleID); err != nil {
		return err
	}
	if err := f.Groups().AssignRole(ctx, proofreadersID, nil, proofreaderRoleID); err != nil {
		return err
	}
	if err := f.Groups().AssignRole(ctx, proofreadersID, &alphaID, proofreaderRoleID); err != nil {
		return err
	}
	if err := f.Groups().AssignRole(ctx, editorsID, &alphaID, editorRoleID); err != nil {
		return err
	}
	if err := f.Groups().AssignRole(ctx, marketingGroupID, &alphaID, marketingRoleID); err != nil {
		return err
	}
	if err := f.Users().AssignRole(ctx, alice, &betaID, juniorManagerRoleID); err != nil {
		return err
	}
	if err := f.Users().AssignRole(ctx, bob, &omegaID, internRoleID); err != nil {
		return err
	}

	return nil
}

func seedPasswordHash() string {
	hash, err := defaultSeedVerifier.Hash("change-me")
	if err != nil {
		panic(fmt.Sprintf("hash seed password: %v", err))
	}
	return hash
}
