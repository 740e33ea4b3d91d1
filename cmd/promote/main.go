package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/xowhq/boothcore/internal/cloud"
	"github.com/xowhq/boothcore/internal/config"
	"github.com/xowhq/boothcore/internal/models"
	"github.com/xowhq/boothcore/internal/storage"
	"github.com/xowhq/boothcore/internal/store"
	boothsync "github.com/xowhq/boothcore/internal/sync"
)

// promote uploads pending local sessions from the command line, for booths
// that stayed offline through an event and sync back at the office.
func main() {
	var (
		localID = flag.String("id", "", "Promote a single session by local id (default: all pending)")
		dryRun  = flag.Bool("dry-run", false, "List pending sessions without uploading")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	if cfg.CloudBaseURL == "" {
		log.Fatal("CLOUD_API_URL is required")
	}

	db, err := store.NewDB(store.Config{
		Type:       cfg.DB.Type,
		Host:       cfg.DB.Host,
		Port:       cfg.DB.Port,
		User:       cfg.DB.User,
		Password:   cfg.DB.Password,
		Name:       cfg.DB.Name,
		SQLitePath: cfg.DB.SQLitePath,
	})
	if err != nil {
		log.Fatal("Failed to open session store:", err)
	}
	defer db.Close()
	repo := store.NewSessionRepository(db, nil)

	media, err := storage.NewLocalStorage(cfg.MediaDir)
	if err != nil {
		log.Fatal("Failed to open media directory:", err)
	}

	pending := repo.Pending()
	if *localID != "" {
		sess, err := repo.Get(*localID)
		if err != nil {
			log.Fatal("Session not found:", *localID)
		}
		if sess.Uploaded {
			log.Fatal("Session already uploaded:", *localID)
		}
		pending = []models.LocalSession{*sess}
	}

	if len(pending) == 0 {
		fmt.Println("No pending sessions.")
		return
	}

	if *dryRun {
		fmt.Printf("%d pending session(s):\n", len(pending))
		for _, sess := range pending {
			fmt.Printf("  %s  %s / %s  %.1fs  %d scan(s)\n",
				sess.LocalID, sess.ExpoName, sess.BoothName, sess.Duration, len(sess.Scans))
		}
		return
	}

	remote := cloud.NewClient(cfg.CloudBaseURL, cfg.UploadTimeout)
	engine := boothsync.NewEngine(remote, repo, media, nil, nil)

	ctx := context.Background()
	failed := 0
	for i := range pending {
		sess := pending[i]
		fmt.Printf("Promoting %s...\n", sess.LocalID)
		if err := engine.Promote(ctx, &sess); err != nil {
			fmt.Printf("  failed: %v\n", err)
			failed++
			continue
		}
		fmt.Printf("  done (remote id %s)\n", sess.RemoteID)
	}

	fmt.Printf("Promoted %d/%d session(s).\n", len(pending)-failed, len(pending))
	if failed > 0 {
		os.Exit(1)
	}
}
