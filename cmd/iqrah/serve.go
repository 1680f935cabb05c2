package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/iqrahapp/iqrah-core/internal/api"
	"github.com/iqrahapp/iqrah-core/internal/domain"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API over the local snapshot (§6.7's optional server surface)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
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

	named := domain.NamedProfiles()
	profiles := make([]domain.UserProfile, 0, len(named))
	for _, p := range named {
		profiles = append(profiles, p)
	}

	srv := &api.Server{
		Candidates: c.Candidates,
		Scheduler:  c.Scheduler,
		Review:     c.Review,
		Placement:  c.Placement,
		Bandit:     c.Bandit,
		Content:    db,
		UserState:  db,
		Profiles:   profiles,
	}
	srv.EnableMetrics()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("iqrah-core listening on %s\n", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
