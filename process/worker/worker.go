package worker

import (
	"context"
	"errors"
	"fmt"
	"log"

	"datacleanse/models"
	"datacleanse/pkg/cleaning"
	"datacleanse/pkg/objstore"
	"datacleanse/pkg/queue"
	"datacleanse/pkg/tabular"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Worker turns a queued processing job into records and a terminal
// pre-review status. It is safe to run the same job more than once: record
// insertion is keyed on the (dataset_id, row_index) unique index.
type Worker struct {
	db     *gorm.DB
	store  objstore.Store
	engine cleaning.Engine
}

func New(db *gorm.DB, store objstore.Store, engine cleaning.Engine) *Worker {
	return &Worker{db: db, store: store, engine: engine}
}

// Handle processes one job. A nil return acknowledges the delivery.
//
// Failure policy: decode/fetch/empty-file failures are terminal for the
// dataset; the status is set to error and the job is acked. Infrastructure
// failures are returned so the broker redelivers, except on an already
// redelivered job, where the dataset is marked error instead of looping
// forever on a poison message.
func (w *Worker) Handle(ctx context.Context, job queue.Job, redelivered bool) error {
	log.Printf("processing dataset %s", job.DatasetID)

	var ds models.Dataset
	if err := w.db.Where("dataset_id = ?", job.DatasetID).First(&ds).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// the dataset is gone; the job cannot be recovered
			log.Printf("WARN dataset %s not found, dropping job", job.DatasetID)
			return nil
		}
		// lookup failed for infrastructure reasons: the delivery must not
		// be acked, or the job is lost and the dataset stuck in processing
		return fmt.Errorf("load dataset %s: %w", job.DatasetID, err)
	}

	if err := w.process(ctx, &ds); err != nil {
		if terminal(err) || redelivered {
			log.Printf("ERROR dataset %s failed: %v", ds.DatasetID, err)
			return w.markError(ds.DatasetID)
		}
		return err
	}

	// only a dataset still in processing advances; a concurrent rerun that
	// already finished leaves the status alone
	err := w.db.Model(&models.Dataset{}).
		Where("dataset_id = ? AND status = ?", ds.DatasetID, models.StatusProcessing).
		Update("status", models.StatusProcessed).Error
	if err != nil {
		if redelivered {
			return w.markError(ds.DatasetID)
		}
		return fmt.Errorf("update status: %w", err)
	}
	log.Printf("dataset %s processed", ds.DatasetID)
	return nil
}

// process runs fetch -> decode -> clean -> persist.
func (w *Worker) process(ctx context.Context, ds *models.Dataset) error {
	body, err := w.store.Get(ds.StoreRef)
	if err != nil {
		return &processingError{fmt.Errorf("fetch %s: %w", ds.StoreRef, err)}
	}
	defer body.Close()

	rows, err := tabular.Decode(body)
	if err != nil {
		return &processingError{fmt.Errorf("decode: %w", err)}
	}
	if len(rows) == 0 {
		// an empty dataset can never pass the review coverage gate
		return &processingError{fmt.Errorf("dataset has no data rows")}
	}

	records := make([]models.Record, 0, len(rows))
	for i, row := range rows {
		changes := w.engine.Suggest(row)
		records = append(records, models.Record{
			DatasetID: ds.DatasetID,
			RowIndex:  i,
			Data:      toJSONMap(row),
			Changes:   changesMap(changes),
		})
	}

	// insert-if-absent keyed on the unique index makes redelivery safe:
	// rows persisted by an earlier partial run are skipped, not duplicated
	return w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			CreateInBatches(records, 500).Error
	})
}

func (w *Worker) markError(datasetID string) error {
	err := w.db.Model(&models.Dataset{}).
		Where("dataset_id = ? AND status = ?", datasetID, models.StatusProcessing).
		Update("status", models.StatusError).Error
	if err != nil {
		// error state not durable yet, so the delivery must not be acked
		return fmt.Errorf("mark error: %w", err)
	}
	return nil
}

// processingError marks failures that are terminal for the dataset, as
// opposed to transient infrastructure faults worth redelivering.
type processingError struct{ err error }

func (e *processingError) Error() string { return e.err.Error() }
func (e *processingError) Unwrap() error { return e.err }

func terminal(err error) bool {
	var pe *processingError
	return errors.As(err, &pe)
}

func toJSONMap(row tabular.Row) datatypes.JSONMap {
	m := make(datatypes.JSONMap, len(row))
	for k, v := range row {
		m[k] = v
	}
	return m
}

func changesMap(changes map[string]string) datatypes.JSONMap {
	m := make(datatypes.JSONMap, len(changes))
	for k, v := range changes {
		m[k] = v
	}
	return m
}
