package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"peoplecounter/internal/app"
	"peoplecounter/internal/config"
	"peoplecounter/internal/model"
	"peoplecounter/internal/repository"
	"peoplecounter/internal/repository/sqlstore"
)

// locationFile is the YAML layout accepted by the locations command.
type locationFile struct {
	Locations []struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
		MaxCapacity int    `yaml:"max_capacity"`
		Code        string `yaml:"code"`
	} `yaml:"locations"`
}

func main() {
	if err := rootCommand().Execute(); err != nil {
		log.Fatal(err)
	}
}

func rootCommand() *cobra.Command {
	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Database maintenance for the people counter",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfg.DBDriver, "driver", cfg.DBDriver, "database driver (sqlite|mysql)")
	rootCmd.PersistentFlags().StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")

	rootCmd.AddCommand(schemaCommand(cfg), locationsCommand(cfg))
	return rootCmd
}

func schemaCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create missing tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := app.OpenStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Schema is up to date (%s)\n", db.Driver())
			return nil
		},
	}
}

func locationsCommand(cfg *config.Config) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "locations",
		Short: "Import locations from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", file, err)
			}
			defer f.Close()

			db, err := app.OpenStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			created, skipped, err := importLocations(cmd.Context(), sqlstore.NewLocationRepository(db), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d location(s), %d already present\n", created, skipped)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "locations.yaml", "YAML file with a locations list")
	return cmd
}

// importLocations creates every location of the YAML document whose code is not
// registered yet.
func importLocations(ctx context.Context, repo repository.LocationRepository, r io.Reader) (int, int, error) {
	var doc locationFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return 0, 0, fmt.Errorf("failed to parse locations: %w", err)
	}

	created, skipped := 0, 0
	for i, entry := range doc.Locations {
		code := strings.TrimSpace(entry.Code)
		if code == "" || strings.TrimSpace(entry.Name) == "" {
			return created, skipped, fmt.Errorf("location #%d: name and code are required", i+1)
		}

		_, err := repo.GetByCode(ctx, code)
		if err == nil {
			skipped++
			continue
		}
		if !errors.Is(err, model.ErrNotFound) {
			return created, skipped, err
		}

		if _, err := repo.Create(ctx, &model.Location{
			Name:        strings.TrimSpace(entry.Name),
			Description: entry.Description,
			MaxCapacity: entry.MaxCapacity,
			Code:        code,
		}); err != nil {
			return created, skipped, fmt.Errorf("location %q: %w", code, err)
		}
		created++
	}
	return created, skipped, nil
}
