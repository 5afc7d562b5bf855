package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/cadencrm/cadence/internal/adapter/postgres"
	"github.com/cadencrm/cadence/internal/config"
	"github.com/cadencrm/cadence/internal/domain/principal"
)

// runAdmin dispatches operator subcommands that run against the database
// directly, outside the API's authorization path.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "create-master":
		return runAdminCreateMaster(args[1:])
	case "list-principals":
		return runAdminListPrincipals(args[1:])
	case "recount-users":
		return runAdminRecountUsers(args[1:])
	case "prune-audit":
		return runAdminPruneAudit(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: cadence admin <command> [options]

Commands:
  create-master     Provision a master (platform operator) account
  list-principals   List principals, optionally for one tenant
  recount-users     Recompute current_users for a tenant from its principals
  prune-audit       Delete audit events older than the retention window
  help              Show this help message

Examples:
  cadence admin create-master --email ops@platform.test --name "Platform Ops"
  cadence admin list-principals --tenant 7f2c...
  cadence admin recount-users --tenant 7f2c...
  cadence admin prune-audit --days 365
`)
}

func loadAdminDeps() (*config.Config, *postgres.Store, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	return cfg, postgres.NewStore(pool), pool.Close, nil
}

// runAdminCreateMaster is the only way a master account comes into existence;
// the API rejects master creation outright.
func runAdminCreateMaster(args []string) error {
	fs := flag.NewFlagSet("create-master", flag.ContinueOnError)
	email := fs.String("email", "", "account email address (required)")
	name := fs.String("name", "", "display name (required)")
	password := fs.String("password", "", "password (prompted if not provided)") //nolint:gosec // CLI flag
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" {
		return fmt.Errorf("--email is required")
	}
	if *name == "" {
		return fmt.Errorf("--name is required")
	}

	pass := *password
	if pass == "" {
		var err error
		pass, err = promptPassword("Password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		confirm, err := promptPassword("Confirm password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		if pass != confirm {
			return fmt.Errorf("passwords do not match")
		}
	}
	if len(pass) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	cfg, store, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	hash, err := bcrypt.GenerateFromPassword([]byte(pass), cfg.Auth.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	p := &principal.Principal{
		Email:  *email,
		Name:   *name,
		Role:   principal.RoleMaster,
		Active: true,
	}
	if err := store.CreatePrincipal(context.Background(), p, string(hash)); err != nil {
		return fmt.Errorf("create master: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Master account created: %s (id=%s)\n", p.Email, p.ID)
	return nil
}

func runAdminListPrincipals(args []string) error {
	fs := flag.NewFlagSet("list-principals", flag.ContinueOnError)
	tenantID := fs.String("tenant", "", "restrict to one tenant (empty lists all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, store, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	ps, err := store.ListPrincipals(context.Background(), *tenantID)
	if err != nil {
		return fmt.Errorf("list principals: %w", err)
	}

	if len(ps) == 0 {
		fmt.Println("No principals found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tEMAIL\tNAME\tROLE\tTENANT\tACTIVE")
	for i := range ps {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\n",
			ps[i].ID, ps[i].Email, ps[i].Name, ps[i].Role, ps[i].TenantID, ps[i].Active)
	}
	return w.Flush()
}

func runAdminRecountUsers(args []string) error {
	fs := flag.NewFlagSet("recount-users", flag.ContinueOnError)
	tenantID := fs.String("tenant", "", "tenant id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tenantID == "" {
		return fmt.Errorf("--tenant is required")
	}

	_, store, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	n, err := store.CountActivePrincipals(ctx, *tenantID)
	if err != nil {
		return fmt.Errorf("count principals: %w", err)
	}
	if err := store.SetUserCount(ctx, *tenantID, n); err != nil {
		return fmt.Errorf("set user count: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Tenant %s current_users set to %d\n", *tenantID, n)
	return nil
}

func runAdminPruneAudit(args []string) error {
	fs := flag.NewFlagSet("prune-audit", flag.ContinueOnError)
	days := fs.Int("days", 0, "retention window in days (defaults to configured value)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, store, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	retention := *days
	if retention <= 0 {
		retention = cfg.Audit.RetentionDays
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retention)
	n, err := store.Prune(context.Background(), cutoff)
	if err != nil {
		return fmt.Errorf("prune audit events: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Pruned %d audit events older than %s\n", n, cutoff.Format("2006-01-02"))
	return nil
}

// promptPassword reads a password from the terminal without echoing.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
