package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iqrahapp/iqrah-core/internal/introduction"
	"github.com/iqrahapp/iqrah-core/internal/scheduler"
)

var (
	simulateUserID  string
	simulateGoalID  string
	simulateDays    int
	simulateProfile string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Generate sessions across several simulated days, for profile tuning",
	Long: `simulate runs C6 (candidate building), C8 (introduction policy) and
C7 (session generation) once per simulated day, without persisting any
review outcomes. It is a read-only tuning tool: point it at a snapshot
that already has some user history and compare session composition
across profiles.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&simulateUserID, "user", "", "user id (required)")
	simulateCmd.Flags().StringVar(&simulateGoalID, "goal", "", "goal id (required)")
	simulateCmd.Flags().IntVar(&simulateDays, "days", 7, "number of simulated days")
	simulateCmd.Flags().StringVar(&simulateProfile, "profile", "", "named profile (default: config's profiles.default)")
	simulateCmd.MarkFlagRequired("user")
	simulateCmd.MarkFlagRequired("goal")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c := wireComponents(db, cfg)
	profile := profileByName(simulateProfile, cfg)
	if err := profile.Validate(); err != nil {
		return err
	}

	expandMode := false
	for day := 0; day < simulateDays; day++ {
		nowTS := int64(day) * 86400

		cands, err := c.Candidates.Build(cmd.Context(), simulateUserID, simulateGoalID, nowTS, cfg.Session.AlmostDueWindowDays)
		if err != nil {
			return fmt.Errorf("day %d: build candidates: %w", day, err)
		}

		diag := scheduler.ComputeDiagnostics(cands, nowTS, profile.Introduction.MaxWorkingSet)
		clusterEnergy := introduction.ClusterEnergy(cands)
		decision := introduction.Decide(profile.Introduction, diag, clusterEnergy, expandMode)
		expandMode = decision.ExpandMode

		result, err := c.Scheduler.Generate(cmd.Context(), simulateUserID, cands, profile, time.Unix(nowTS, 0).UTC(), cfg.Session.Size, decision.FinalAllowance, diag)
		if err != nil {
			return fmt.Errorf("day %d: generate session: %w", day, err)
		}

		fmt.Printf("day %2d: session_size=%d new_allowance=%d active=%d capacity_used=%.2f expand_mode=%v\n",
			day, len(result.Items), decision.FinalAllowance, diag.ActiveCount, diag.CapacityUsed, decision.ExpandMode)
	}
	return nil
}
