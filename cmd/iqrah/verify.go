package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iqrahapp/iqrah-core/internal/store/sqlite"
	"github.com/iqrahapp/iqrah-core/internal/verifyupdate"
)

var (
	verifyOldSnapshot string
	verifyNewSnapshot string
)

var verifyUpdateCmd = &cobra.Command{
	Use:   "verify-update USER_ID",
	Short: "Check whether a new content snapshot would orphan a user's memory state",
	Long: `verify-update is the §6.5 pre-flight check a deployment runs before
swapping a user onto a newly built content snapshot: it classifies every
node the user has memory state for as safe (present in both snapshots),
orphaned (absent from both), or breaking (removed in the new snapshot).
A non-empty breaking set means the update is not safe for this user.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerifyUpdate,
}

func init() {
	verifyUpdateCmd.Flags().StringVar(&verifyOldSnapshot, "old", "", "path to the currently deployed content snapshot (required)")
	verifyUpdateCmd.Flags().StringVar(&verifyNewSnapshot, "new", "", "path to the candidate content snapshot (required)")
	verifyUpdateCmd.MarkFlagRequired("old")
	verifyUpdateCmd.MarkFlagRequired("new")
}

func runVerifyUpdate(cmd *cobra.Command, args []string) error {
	userID := args[0]

	oldDB, err := sqlite.Open(verifyOldSnapshot)
	if err != nil {
		return fmt.Errorf("open old snapshot %s: %w", verifyOldSnapshot, err)
	}
	defer oldDB.Close()

	newDB, err := sqlite.Open(verifyNewSnapshot)
	if err != nil {
		return fmt.Errorf("open new snapshot %s: %w", verifyNewSnapshot, err)
	}
	defer newDB.Close()

	userDB, err := openDB()
	if err != nil {
		return err
	}
	defer userDB.Close()

	report, err := verifyupdate.Verify(cmd.Context(), oldDB, newDB, userDB, userID)
	if err != nil {
		return fmt.Errorf("verify update: %w", err)
	}

	fmt.Printf("user %s: %d node(s) with memory state, %d present in new snapshot\n", userID, report.TotalUserNodes, report.NodesInNew)
	fmt.Printf("  safe:     %d\n", len(report.Safe))
	fmt.Printf("  orphaned: %d\n", len(report.Orphaned))
	fmt.Printf("  breaking: %d\n", len(report.Breaking))
	if !report.IsSafe() {
		fmt.Println("UPDATE NOT SAFE: breaking node ids:")
		for _, id := range report.Breaking {
			fmt.Printf("  - %d\n", id)
		}
		return fmt.Errorf("update would break %d node(s) of memory state", len(report.Breaking))
	}
	fmt.Println("update is safe")
	return nil
}
