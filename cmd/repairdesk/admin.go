package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	cfnats "github.com/Strob0t/RepairDesk/internal/adapter/nats"
	"github.com/Strob0t/RepairDesk/internal/adapter/natskv"
	"github.com/Strob0t/RepairDesk/internal/adapter/postgres"
	"github.com/Strob0t/RepairDesk/internal/config"
)

// runAdmin dispatches admin subcommands (migrate, rollback, version, list-agents).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "migrate":
		return runAdminMigrate(args[1:])
	case "rollback":
		return runAdminRollback(args[1:])
	case "version":
		return runAdminVersion(args[1:])
	case "list-agents":
		return runAdminListAgents(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: repairdesk admin <command> [options]

Commands:
  migrate       Apply all pending database migrations
  rollback      Roll back the most recent migrations
  version       Print the current migration version
  list-agents   List agents in the shared registry
  help          Show this help message

Examples:
  repairdesk admin migrate
  repairdesk admin rollback --steps 2
  repairdesk admin version
  repairdesk admin list-agents
`)
}

func loadAdminConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func runAdminMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadAdminConfig()
	if err != nil {
		return err
	}
	if err := postgres.RunMigrations(context.Background(), cfg.Postgres.DSN); err != nil {
		return err
	}
	fmt.Println("Migrations applied.")
	return nil
}

func runAdminRollback(args []string) error {
	fs := flag.NewFlagSet("rollback", flag.ContinueOnError)
	steps := fs.Int("steps", 1, "number of migrations to roll back")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *steps < 1 {
		return fmt.Errorf("--steps must be >= 1")
	}

	cfg, err := loadAdminConfig()
	if err != nil {
		return err
	}
	if err := postgres.RollbackMigrations(context.Background(), cfg.Postgres.DSN, *steps); err != nil {
		return err
	}
	fmt.Printf("Rolled back %d migration(s).\n", *steps)
	return nil
}

func runAdminVersion(args []string) error {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadAdminConfig()
	if err != nil {
		return err
	}
	v, err := postgres.MigrationVersion(context.Background(), cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	fmt.Printf("Migration version: %d\n", v)
	return nil
}

func runAdminListAgents(args []string) error {
	fs := flag.NewFlagSet("list-agents", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadAdminConfig()
	if err != nil {
		return err
	}
	if cfg.NATS.URL == "" || cfg.Registry.Backend != config.BackendNATSKV {
		return fmt.Errorf("list-agents requires registry.backend %q and nats.url", config.BackendNATSKV)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	queue, err := cfnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	kv, err := queue.KeyValue(ctx, cfg.Registry.AgentBucket, 0)
	if err != nil {
		return err
	}
	agents, err := natskv.NewAgentStore(kv, cfg.Registry.DefaultMaxChats).List(ctx)
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}
	if len(agents) == 0 {
		fmt.Println("No agents registered.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tCHATS\tEXPERTISE\tLAST SEEN")
	for i := range agents {
		a := &agents[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			a.ID, a.Name, a.Status, a.ActiveChats, a.MaxChats,
			strings.Join(a.ExpertiseTags, ","), a.LastSeen.Format(time.RFC3339))
	}
	return w.Flush()
}
