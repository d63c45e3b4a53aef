package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
)

// Removes datasets stuck in the error state together with their records and
// stored upload files. Intended for periodic cleanup on long-running installs.
func main() {
	days := flag.Int("older-than", 7, "only purge error datasets uploaded more than N days ago")
	dryRun := flag.Bool("dry-run", true, "show what would be purged without deleting")
	flag.Parse()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN not set")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT dataset_id, store_ref FROM datasets WHERE status='error' AND uploaded_at < now() - make_interval(days => $1)`, *days)
	if err != nil {
		log.Fatalf("query error datasets: %v", err)
	}
	type target struct{ id, ref string }
	var targets []target
	for rows.Next() {
		var t target
		if err := rows.Scan(&t.id, &t.ref); err != nil {
			log.Fatalf("scan: %v", err)
		}
		targets = append(targets, t)
	}
	rows.Close()

	if len(targets) == 0 {
		fmt.Println("no error datasets to purge")
		return
	}
	if *dryRun {
		for _, t := range targets {
			fmt.Printf("would purge %s (%s)\n", t.id, t.ref)
		}
		fmt.Println("dry-run enabled; pass --dry-run=false to execute")
		return
	}

	base := os.Getenv("UPLOAD_BASE")
	if base == "" {
		base = "uploads"
	}
	for _, t := range targets {
		res1, err := db.Exec(`DELETE FROM records WHERE dataset_id=$1`, t.id)
		if err != nil {
			log.Fatalf("delete records for %s: %v", t.id, err)
		}
		n1, _ := res1.RowsAffected()
		if _, err := db.Exec(`DELETE FROM datasets WHERE dataset_id=$1`, t.id); err != nil {
			log.Fatalf("delete dataset %s: %v", t.id, err)
		}
		if t.ref != "" {
			if err := os.Remove(filepath.Join(base, filepath.Base(t.ref))); err != nil && !os.IsNotExist(err) {
				log.Printf("WARN: remove stored file for %s: %v", t.id, err)
			}
		}
		fmt.Printf("purged %s: records deleted=%d\n", t.id, n1)
	}
}
