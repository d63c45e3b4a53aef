package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"datacleanse/models"
	"datacleanse/pkg/lifecycle"
	"datacleanse/pkg/objstore"
	"datacleanse/pkg/queue"
	"datacleanse/pkg/review"

	"github.com/fsnotify/fsnotify"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Bulk ingest: scans a directory for CSV files, stores each one and creates
// a dataset for it, optionally requesting processing straight away. With
// -watch it keeps running and picks up files as they are dropped in.

var verbose bool

func mustDBFromEnv() *gorm.DB {
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatalf("DB_DSN must be set in environment to run this tool")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	return gdb
}

func main() {
	dirFlag := flag.String("dir", "incoming", "directory to scan for CSV files")
	userID := flag.Uint("user-id", 0, "user to own the datasets (if omitted uses admin)")
	dryRun := flag.Bool("dry-run", false, "list candidate files without storing or DB writes")
	watch := flag.Bool("watch", false, "watch directory for new files")
	process := flag.Bool("process", false, "request processing immediately after ingest")
	flag.BoolVar(&verbose, "verbose", false, "verbose per-file logging")
	flag.Parse()

	if *dryRun {
		files := listCSVFiles(*dirFlag)
		log.Printf("Dry-run: found %d candidate files in %s", len(files), *dirFlag)
		for _, f := range files {
			log.Printf("  %s", f)
		}
		return
	}

	gdb := mustDBFromEnv()
	owner := resolveOwner(gdb, *userID)

	store, err := objstore.NewDisk(os.Getenv("UPLOAD_BASE"))
	if err != nil {
		log.Fatalf("object store init: %v", err)
	}

	amqpURL := os.Getenv("AMQP_URL")
	if amqpURL == "" {
		amqpURL = "amqp://localhost"
	}
	jobs, err := queue.DialAMQP(amqpURL, 5*time.Second)
	if err != nil {
		log.Fatalf("connect broker %s: %v", amqpURL, err)
	}
	defer jobs.Close()

	ctl := lifecycle.NewController(gdb, jobs, review.NewCoordinator(gdb))

	files := listCSVFiles(*dirFlag)
	log.Printf("Ingesting %d files from %s", len(files), *dirFlag)
	for _, name := range files {
		ingestFile(ctl, store, *dirFlag, name, owner, *process)
	}

	if *watch {
		if err := watchDirectory(*dirFlag, func(name string) {
			ingestFile(ctl, store, *dirFlag, name, owner, *process)
		}); err != nil {
			log.Fatalf("watch failed: %v", err)
		}
	}
}

func logV(format string, args ...any) {
	if verbose {
		log.Printf(format, args...)
	}
}

// resolveOwner finds the owning user either by explicit id or the admin user.
func resolveOwner(gdb *gorm.DB, id uint) *models.User {
	var u models.User
	if id != 0 {
		if err := gdb.First(&u, id).Error; err != nil {
			log.Fatalf("failed to find user id %d: %v", id, err)
		}
		return &u
	}
	if err := gdb.Where("username = ?", "admin").First(&u).Error; err != nil {
		log.Fatalf("no -user-id provided and admin user not found: %v", err)
	}
	return &u
}

func listCSVFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !isCSV(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}

func isCSV(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".csv")
}

// ingestFile stores one file and creates its dataset. Errors are logged and
// the scan continues; the file is left in place on failure.
func ingestFile(ctl *lifecycle.Controller, store objstore.Store, dir, name string, owner *models.User, process bool) {
	full := filepath.Join(dir, name)
	fi, err := os.Stat(full)
	if err != nil {
		log.Printf("ERROR stat %s: %v", name, err)
		return
	}
	f, err := os.Open(full)
	if err != nil {
		log.Printf("ERROR open %s: %v", name, err)
		return
	}
	ref, err := store.Put(name, f)
	f.Close()
	if err != nil {
		log.Printf("ERROR store %s: %v", name, err)
		return
	}
	var orgID uint
	if owner.OrganizationID != nil {
		orgID = *owner.OrganizationID
	}
	ds, err := ctl.Create(owner.ID, orgID, name, fi.Size(), ref)
	if err != nil {
		log.Printf("ERROR create dataset for %s: %v", name, err)
		return
	}
	log.Printf("NEW dataset %s file=%s size=%d", ds.DatasetID, name, fi.Size())
	if process {
		if _, err := ctl.RequestProcessing(context.Background(), ds.DatasetID, owner); err != nil {
			log.Printf("WARN processing request for %s failed: %v", ds.DatasetID, err)
		} else {
			logV("dispatched %s", ds.DatasetID)
		}
	}
	// remove the source so a rescan does not ingest it twice
	if err := os.Remove(full); err != nil {
		log.Printf("WARN failed to remove ingested file %s: %v", name, err)
	}
}

func watchDirectory(dir string, handle func(name string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	log.Printf("Watching %s (debounced) ...", dir)

	fileCh := make(chan string, 256)
	go func() {
		// simple debounce map of pending files
		pending := map[string]time.Time{}
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					close(fileCh)
					return
				}
				if ev.Op&fsnotify.Create == fsnotify.Create {
					name := filepath.Base(ev.Name)
					if !isCSV(name) {
						continue
					}
					pending[name] = time.Now()
				}
			case <-ticker.C:
				now := time.Now()
				for name, t := range pending {
					if now.Sub(t) > 300*time.Millisecond { // stable
						fileCh <- name
						delete(pending, name)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					close(fileCh)
					return
				}
				log.Printf("watch error: %v", err)
			}
		}
	}()

	for name := range fileCh {
		handle(name)
	}
	return nil
}
