package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/BaSui01/crowdflow/config"
	"github.com/BaSui01/crowdflow/internal/migration"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

// runMigrate 解析 migrate 子命令并交给 migration.CLI 执行
func runMigrate(args []string) {
	if len(args) < 1 {
		printMigrateUsage()
		os.Exit(1)
	}

	command := args[0]
	if command == "help" || command == "-h" || command == "--help" {
		printMigrateUsage()
		return
	}

	fs := flag.NewFlagSet("migrate "+command, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fs.String("db-url", "", "Database connection URL")
	flagArgs, positional := splitMigrateArgs(args[1:])
	_ = fs.Parse(flagArgs)
	positional = append(positional, fs.Args()...)

	migrator, err := createMigrator(*configPath, *dbType, *dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = migrator.Close() }()

	if err := migration.NewCLI(migrator).Run(context.Background(), command, positional); err != nil {
		fmt.Fprintf(os.Stderr, "Migration %s failed: %v\n", command, err)
		_ = migrator.Close()
		os.Exit(1)
	}
}

// splitMigrateArgs 取出整数参数，使 "steps -1" 不被当作 flag
func splitMigrateArgs(args []string) (flagArgs, positional []string) {
	for _, arg := range args {
		if _, err := strconv.Atoi(arg); err == nil {
			positional = append(positional, arg)
			continue
		}
		flagArgs = append(flagArgs, arg)
	}
	return flagArgs, positional
}

// createMigrator db-type 与 db-url 同时给出时直接使用，否则读取配置
func createMigrator(configPath, dbType, dbURL string) (*migration.DefaultMigrator, error) {
	if dbType != "" && dbURL != "" {
		return migration.NewMigratorFromURL(dbType, dbURL)
	}

	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dbType != "" {
		cfg.Database.Driver = dbType
	}
	return migration.NewMigratorFromDatabaseConfig(cfg.Database)
}

func printMigrateUsage() {
	fmt.Println(`Database Migration Commands

Usage:
  crowdflow migrate <subcommand> [options] [args]

Subcommands:
  up          Apply all pending migrations
  down        Rollback the last migration
  reset       Rollback all migrations
  steps <n>   Apply (n > 0) or rollback (n < 0) n migrations
  goto <v>    Migrate to a specific version
  force <v>   Force set migration version (use with caution)
  version     Show current migration version
  status      Show migration status
  info        Show detailed migration information

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  crowdflow migrate up
  crowdflow migrate status --config /etc/crowdflow/config.yaml
  crowdflow migrate goto 1
  crowdflow migrate steps -1
  crowdflow migrate up --db-type sqlite --db-url "file:crowdflow.db?mode=rwc"`)
}
