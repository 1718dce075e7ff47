package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/zulandar/rollcall/internal/config"
	"github.com/zulandar/rollcall/internal/db"
	"gorm.io/gorm"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBMigrateCmd())
	cmd.AddCommand(newDBSeedCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the Rollcall tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Rollcall config file")
	return cmd
}

func runDBMigrate(cmd *cobra.Command, configPath string) error {
	_, gormDB, err := openDatabase(cmd, configPath)
	if err != nil {
		return err
	}
	defer closeDatabase(gormDB)
	return migrate(cmd.OutOrStdout(), gormDB)
}

// openDatabase loads the config and connects to its database.
func openDatabase(cmd *cobra.Command, configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Connected to %s database\n", cfg.Database.Driver)
	return cfg, gormDB, nil
}

func closeDatabase(gormDB *gorm.DB) {
	if sqlDB, err := gormDB.DB(); err == nil {
		sqlDB.Close()
	}
}

func migrate(out io.Writer, gormDB *gorm.DB) error {
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))
	return nil
}

func newDBSeedCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Migrate and write the configured classes and courses",
		Long: `Migrates the schema, then upserts every class and course listed in the
config file. Running it again updates existing rows in place.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBSeed(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Rollcall config file")
	return cmd
}

func runDBSeed(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := openDatabase(cmd, configPath)
	if err != nil {
		return err
	}
	defer closeDatabase(gormDB)

	if err := migrate(out, gormDB); err != nil {
		return err
	}
	if err := db.Seed(gormDB, cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "Seeded %d classes:", len(cfg.Classes))
	for _, c := range cfg.Classes {
		fmt.Fprintf(out, " %s", c.Code)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Seeded %d courses:", len(cfg.Courses))
	for _, c := range cfg.Courses {
		fmt.Fprintf(out, " %s", c.ID)
	}
	fmt.Fprintln(out)
	return nil
}
