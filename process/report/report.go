package report

import (
	"fmt"
	"log"
	"os"
	"time"

	"datacleanse/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func mustDBFromEnv() *gorm.DB {
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN not set in env")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	return gdb
}

type datasetRow struct {
	DatasetID string
	Filename  string
	Status    string
	Total     int64
	Reviewed  int64
	Approved  int64
}

// RunReport prints a month-bounded review report for username (month in
// YYYY-MM) and optionally lists every dataset with its record counts.
func RunReport(username, month string, list bool) {
	gdb := mustDBFromEnv()

	var user models.User
	if err := gdb.Where("username = ?", username).First(&user).Error; err != nil {
		log.Fatalf("user not found: %v", err)
	}

	t, err := time.Parse("2006-01", month)
	if err != nil {
		log.Fatalf("invalid month format, expected YYYY-MM: %v", err)
	}
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	var rows []datasetRow
	if err := gdb.Raw(`SELECT d.dataset_id, d.filename, d.status,
			COUNT(r.id) AS total,
			COUNT(r.id) FILTER (WHERE r.reviewed) AS reviewed,
			COUNT(r.id) FILTER (WHERE r.approved) AS approved
		FROM datasets d
		LEFT JOIN records r ON r.dataset_id = d.dataset_id
		WHERE d.user_id = ? AND d.uploaded_at >= ? AND d.uploaded_at < ?
		GROUP BY d.dataset_id, d.filename, d.status
		ORDER BY d.dataset_id`, user.ID, start, end).Scan(&rows).Error; err != nil {
		log.Fatalf("query failed: %v", err)
	}

	var datasets, completed, records, reviewed int64
	for _, r := range rows {
		datasets++
		if r.Status == models.StatusCompleted {
			completed++
		}
		records += r.Total
		reviewed += r.Reviewed
	}

	fmt.Printf("Report for user=%s month=%s (UTC):\n", user.Username, month)
	fmt.Printf("  datasets=%d completed=%d records=%d reviewed=%d\n", datasets, completed, records, reviewed)

	if list {
		for _, r := range rows {
			pct := 0
			if r.Total > 0 {
				pct = int(r.Reviewed * 100 / r.Total)
			}
			fmt.Printf("%s|%s|%s|%d/%d reviewed (%d%%)|%d approved\n", r.DatasetID, r.Filename, r.Status, r.Reviewed, r.Total, pct, r.Approved)
		}
	}
}
