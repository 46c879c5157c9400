package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/sentry/internal/db"
)

func main() {
	dbPath := flag.String("db", "sentry.db", "path to the sentry detection log")
	session := flag.String("session", "latest", "session ID to plot, or \"latest\"")
	out := flag.String("out", "profile.png", "output PNG path")
	flag.Parse()

	summary, err := run(*dbPath, *session, *out)
	if err != nil {
		log.Fatalf("plot failed: %v", err)
	}
	log.Printf("wrote %s: %s", *out, summary)
}

// run opens the log at dbPath and renders session into out. The database is
// closed before run returns.
func run(dbPath, session, out string) (Summary, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return Summary{}, fmt.Errorf("DB path %s not accessible: %w", dbPath, err)
	}

	database, err := db.OpenDB(dbPath)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	return RenderSession(database, session, out)
}
