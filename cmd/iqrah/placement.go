package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/spf13/cobra"

	"github.com/iqrahapp/iqrah-core/internal/placement"
)

var placementFile string

var placementCmd = &cobra.Command{
	Use:   "placement USER_ID",
	Short: "Run initial knowledge placement from an intake JSON file",
	Long: `placement reads an intake questionnaire from --file, applies it
through the placement service, and writes the resulting per-verse
and per-word memory states to the snapshot (§4.6).`,
	Args: cobra.ExactArgs(1),
	RunE: runPlacement,
}

func init() {
	placementCmd.Flags().StringVarP(&placementFile, "file", "f", "", "path to intake JSON (required)")
	placementCmd.MarkFlagRequired("file")
}

// intakeFile is the on-disk JSON shape for --file, independent of the HTTP
// API's request body so the CLI can evolve its own ergonomics (e.g. reading
// from a file redirected from another tool) without touching internal/api.
type intakeFile struct {
	ReadingFluency float64 `json:"reading_fluency"`
	SurahReports   []struct {
		ChapterID        int64   `json:"chapter_id"`
		MemorizationPct  float64 `json:"memorization_pct"`
		UnderstandingPct float64 `json:"understanding_pct"`
	} `json:"surah_reports"`
}

func runPlacement(cmd *cobra.Command, args []string) error {
	userID := args[0]

	raw, err := os.ReadFile(placementFile)
	if err != nil {
		return fmt.Errorf("read %s: %w", placementFile, err)
	}
	var in intakeFile
	if err := json.Unmarshal(raw, &in); err != nil {
		return fmt.Errorf("parse %s: %w", placementFile, err)
	}

	answers := placement.IntakeAnswers{ReadingFluency: in.ReadingFluency}
	for _, sr := range in.SurahReports {
		answers.SurahReports = append(answers.SurahReports, placement.SurahReport{
			ChapterID:        sr.ChapterID,
			MemorizationPct:  sr.MemorizationPct,
			UnderstandingPct: sr.UnderstandingPct,
		})
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

	summary, err := c.Placement.ApplyIntake(cmd.Context(), userID, answers, rand.Uint64())
	if err != nil {
		return fmt.Errorf("apply intake: %w", err)
	}

	fmt.Printf("placement complete for %s\n", userID)
	fmt.Printf("  reading fluency used: %.2f\n", summary.ReadingFluencyUsed)
	fmt.Printf("  verses initialized:   %d\n", summary.VersesInitialized)
	fmt.Printf("  vocab nodes initialized: %d\n", summary.VocabNodesInitialized)
	for _, sr := range summary.PerSurah {
		fmt.Printf("  surah %d: known=%d partial=%d total=%d vocab=%d\n",
			sr.ChapterID, sr.VersesKnown, sr.VersesPartial, sr.VersesTotal, sr.VocabInitialized)
	}
	return nil
}
