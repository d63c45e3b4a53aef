package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"datacleanse/models"
	"datacleanse/pkg/queue"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CoverageChecker is the slice of the review coordinator the controller
// needs for the completion gate.
type CoverageChecker interface {
	AllReviewed(datasetID string) (bool, error)
}

// Controller owns the dataset state machine. All status changes go through
// conditional updates keyed on the expected prior status, so concurrent
// duplicate requests cannot double-advance a dataset.
type Controller struct {
	db      *gorm.DB
	jobs    queue.Publisher
	reviews CoverageChecker
}

func NewController(db *gorm.DB, jobs queue.Publisher, reviews CoverageChecker) *Controller {
	return &Controller{db: db, jobs: jobs, reviews: reviews}
}

// Create inserts a new dataset with status uploaded. No side effects beyond
// the store write.
func (c *Controller) Create(userID, orgID uint, filename string, size int64, storeRef string) (*models.Dataset, error) {
	filename = strings.TrimSpace(filename)
	storeRef = strings.TrimSpace(storeRef)
	if filename == "" || storeRef == "" || size <= 0 {
		return nil, fmt.Errorf("%w: filename, size and storage reference are required", ErrValidation)
	}
	ds := models.Dataset{
		DatasetID:      uuid.NewString(),
		UserID:         userID,
		OrganizationID: orgID,
		Filename:       filename,
		Size:           size,
		StoreRef:       storeRef,
		Status:         models.StatusUploaded,
		UploadedAt:     time.Now(),
	}
	if err := c.db.Create(&ds).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &ds, nil
}

// Get returns the dataset when the requester may access it. Unknown ids and
// inaccessible datasets are indistinguishable.
func (c *Controller) Get(datasetID string, user *models.User) (*models.Dataset, error) {
	return c.accessible(datasetID, user)
}

// List returns the requester's visible datasets, newest first.
func (c *Controller) List(user *models.User, limit, offset int) ([]models.Dataset, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}
	var out []models.Dataset
	q := c.db.Model(&models.Dataset{})
	if user.OrganizationID != nil {
		q = q.Where("user_id = ? OR organization_id = ?", user.ID, *user.OrganizationID)
	} else {
		q = q.Where("user_id = ?", user.ID)
	}
	if err := q.Order("uploaded_at desc").Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}

// ListRecords returns the dataset's records ordered by row index.
func (c *Controller) ListRecords(datasetID string, user *models.User, limit, offset int) ([]models.Record, error) {
	if _, err := c.accessible(datasetID, user); err != nil {
		return nil, err
	}
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}
	var recs []models.Record
	err := c.db.Where("dataset_id = ?", datasetID).
		Order("row_index asc").Limit(limit).Offset(offset).Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return recs, nil
}

// Delete removes the dataset, permitted only while still uploaded. Once
// processing starts the dataset and its records are the durable record of
// work done and must not disappear under a worker or reviewer.
func (c *Controller) Delete(datasetID string, user *models.User) error {
	if _, err := c.accessible(datasetID, user); err != nil {
		return err
	}
	res := c.db.Where("dataset_id = ? AND status = ?", datasetID, models.StatusUploaded).
		Delete(&models.Dataset{})
	if res.Error != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		// either the status advanced past uploaded, or a concurrent delete
		// won between the access check and the conditional delete
		var cnt int64
		if err := c.db.Model(&models.Dataset{}).Where("dataset_id = ?", datasetID).Count(&cnt).Error; err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if cnt == 0 {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

// RequestProcessing transitions uploaded -> processing and enqueues the
// processing job. The transition is rolled back if the job cannot be queued:
// a dataset is never left in processing without an in-flight job.
func (c *Controller) RequestProcessing(ctx context.Context, datasetID string, user *models.User) (*models.Dataset, error) {
	ds, err := c.accessible(datasetID, user)
	if err != nil {
		return nil, err
	}
	ok, err := c.transition(datasetID, models.StatusUploaded, models.StatusProcessing)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	job := queue.Job{DatasetID: ds.DatasetID, UserID: ds.UserID, StoreRef: ds.StoreRef}
	if err := c.jobs.Publish(ctx, job); err != nil {
		log.Printf("WARN dispatch failed for dataset %s, reverting status: %v", datasetID, err)
		if _, rbErr := c.transition(datasetID, models.StatusProcessing, models.StatusUploaded); rbErr != nil {
			log.Printf("ERROR rollback of dataset %s failed: %v", datasetID, rbErr)
		}
		return nil, fmt.Errorf("%w: job dispatch: %v", ErrUnavailable, err)
	}
	ds.Status = models.StatusProcessing
	return ds, nil
}

// RequestCompletion transitions reviewing -> completed once every record has
// a review decision.
func (c *Controller) RequestCompletion(datasetID string, user *models.User) error {
	if _, err := c.accessible(datasetID, user); err != nil {
		return err
	}
	done, err := c.reviews.AllReviewed(datasetID)
	if err != nil {
		return err
	}
	if !done {
		return ErrConflict
	}
	ok, err := c.transition(datasetID, models.StatusReviewing, models.StatusCompleted)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

// transition performs the compare-and-swap status update. It reports whether
// the row actually moved.
func (c *Controller) transition(datasetID, from, to string) (bool, error) {
	res := c.db.Model(&models.Dataset{}).
		Where("dataset_id = ? AND status = ?", datasetID, from).
		Update("status", to)
	if res.Error != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// accessible loads the dataset and applies the access rule: requester is the
// owner or a member of the owning organization.
func (c *Controller) accessible(datasetID string, user *models.User) (*models.Dataset, error) {
	var ds models.Dataset
	if err := c.db.Where("dataset_id = ?", datasetID).First(&ds).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		// transient DB failure must stay retryable, not masquerade as a 404
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if ds.UserID == user.ID {
		return &ds, nil
	}
	if user.OrganizationID != nil && *user.OrganizationID == ds.OrganizationID {
		return &ds, nil
	}
	return nil, ErrNotFound
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 10
	}
	if limit > 200 {
		return 200
	}
	return limit
}
