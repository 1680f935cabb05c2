package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/iqrahapp/iqrah-core/internal/domain"
)

var reviewCmd = &cobra.Command{
	Use:   "review USER_ID NODE_ID GRADE",
	Short: "Apply one graded review against the local snapshot",
	Long: `review grades a single node for a user and persists the resulting
FSRS-plus-energy state, propagating the review's effect to knowledge
neighbors. GRADE is one of: again, hard, good, easy.`,
	Args: cobra.ExactArgs(3),
	RunE: runReview,
}

func runReview(cmd *cobra.Command, args []string) error {
	userID, rawNodeID, rawGrade := args[0], args[1], args[2]

	nodeID, err := strconv.ParseInt(rawNodeID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid node id %q: %w", rawNodeID, err)
	}
	grade, err := domain.ParseGrade(rawGrade)
	if err != nil {
		return err
	}

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

	outcome, err := c.Review.ProcessReview(cmd.Context(), userID, domain.NodeID(nodeID), grade, domain.DefaultWeights())
	if err != nil {
		return fmt.Errorf("process review: %w", err)
	}

	fmt.Printf("node %d graded %s\n", nodeID, grade)
	fmt.Printf("  stability=%.3f difficulty=%.3f energy=%.3f due_at=%s\n",
		outcome.NewState.Stability, outcome.NewState.Difficulty, outcome.NewState.Energy, outcome.NewState.DueAt.Format("2006-01-02"))
	fmt.Printf("  propagated to %d neighbor(s)\n", outcome.PropagationCount)
	fmt.Printf("  reviews today: %d, streak: %d\n", outcome.DailyStats.ReviewsToday, outcome.DailyStats.Streak)
	return nil
}
