package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/iqrahapp/iqrah-core/internal/bandit"
	"github.com/iqrahapp/iqrah-core/internal/candidates"
	"github.com/iqrahapp/iqrah-core/internal/config"
	"github.com/iqrahapp/iqrah-core/internal/domain"
	"github.com/iqrahapp/iqrah-core/internal/fsrs"
	"github.com/iqrahapp/iqrah-core/internal/memory"
	"github.com/iqrahapp/iqrah-core/internal/placement"
	"github.com/iqrahapp/iqrah-core/internal/propagation"
	"github.com/iqrahapp/iqrah-core/internal/review"
	"github.com/iqrahapp/iqrah-core/internal/scheduler"
	"github.com/iqrahapp/iqrah-core/internal/store/sqlite"
)

var (
	dbPath     string
	configPath string
)

// rootCmd is the base command. Grounded on the teacher's rootCmd shape
// (internal/cli/agent.go registers its subcommands the same way: package
// level var + init()).
var rootCmd = &cobra.Command{
	Use:   "iqrah",
	Short: "iqrah-core CLI: review, session, placement and snapshot tooling",
	Long: `iqrah is a thin driver over the iqrah-core adaptive learning engine.

It opens a local SQLite snapshot (content + per-user state) and exposes the
core's operations — grading a review, generating a session, running initial
placement, and verifying a content-snapshot update — from the command line.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "iqrah.db", "path to the SQLite snapshot (content + user state)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file (defaults used if omitted)")

	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(placementCmd)
	rootCmd.AddCommand(verifyUpdateCmd)
	rootCmd.AddCommand(serveCmd)
}

// openDB opens the SQLite snapshot named by --db, applying migrations.
func openDB() (*sqlite.DB, error) {
	db, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbPath, err)
	}
	return db, nil
}

func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}

// components bundles the composed core, the way a real deployment's
// composition root would: one struct, built once per command invocation.
type components struct {
	DB         *sqlite.DB
	Review     *review.Orchestrator
	Candidates *candidates.Builder
	Scheduler  *scheduler.Scheduler
	Placement  *placement.Service
	Bandit     *bandit.Selector
}

func wireComponents(db *sqlite.DB, cfg config.Config) *components {
	logger := log.New(os.Stderr, "iqrah: ", log.LstdFlags)
	fsrsPrimitive := fsrs.New()
	mem := memory.New(fsrsPrimitive, nil, logger)
	prop := propagation.New(db, db)

	placementCfg := placement.Config{
		PartialThreshold:           cfg.Placement.PartialThreshold,
		VerseKnownEnergy:           cfg.Placement.VerseKnownEnergy,
		VersePartialEnergy:         cfg.Placement.VersePartialEnergy,
		VocabKnownEnergy:           cfg.Placement.VocabKnownEnergy,
		VocabBaseDifficulty:        cfg.Placement.VocabBaseDifficulty,
		FluencyDifficultyReduction: cfg.Placement.FluencyDifficultyReduction,
		MaxVerseStabilityDays:      cfg.Placement.MaxVerseStabilityDays,
		MaxVocabStabilityDays:      cfg.Placement.MaxVocabStabilityDays,
	}

	return &components{
		DB:         db,
		Review:     review.New(mem, prop, db, db, nil),
		Candidates: candidates.New(db),
		Scheduler:  scheduler.New(db, db),
		Placement:  placement.New(db, db, placementCfg, nil),
		Bandit:     bandit.New(db),
	}
}

// profileByName resolves --profile against the named-profile table,
// falling back to cfg's configured default, then to Balanced.
func profileByName(name string, cfg config.Config) domain.UserProfile {
	named := domain.NamedProfiles()
	if name == "" {
		name = cfg.Profiles.Default
	}
	if p, ok := named[name]; ok {
		return p
	}
	return domain.DefaultUserProfile()
}
