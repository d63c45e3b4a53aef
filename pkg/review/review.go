package review

import (
	"errors"
	"fmt"
	"time"

	"datacleanse/models"
	"datacleanse/pkg/lifecycle"

	"gorm.io/gorm"
)

// Progress is the review coverage of one dataset.
type Progress struct {
	Total    int64 `json:"totalRecords"`
	Reviewed int64 `json:"reviewedRecords"`
	Percent  int   `json:"progress"`
}

// Coordinator records per-row review decisions and computes coverage. Once
// every record of a dataset carries a decision it advances the dataset to
// reviewing, which gates the completion request.
type Coordinator struct {
	db *gorm.DB
}

func NewCoordinator(db *gorm.DB) *Coordinator {
	return &Coordinator{db: db}
}

// SubmitDecision stores the approve/reject decision for one record.
// Resubmitting overwrites the previous decision rather than erroring.
func (c *Coordinator) SubmitDecision(datasetID string, user *models.User, index int, approved bool, comments string) error {
	ds, err := c.accessible(datasetID, user)
	if err != nil {
		return err
	}
	var rec models.Record
	if err := c.db.Where("dataset_id = ? AND row_index = ?", datasetID, index).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return lifecycle.ErrNotFound
		}
		return fmt.Errorf("%w: %v", lifecycle.ErrUnavailable, err)
	}
	now := time.Now()
	rec.Reviewed = true
	rec.Approved = &approved
	rec.Comments = comments
	rec.ReviewedAt = &now
	if err := c.db.Save(&rec).Error; err != nil {
		return fmt.Errorf("%w: %v", lifecycle.ErrUnavailable, err)
	}

	total, reviewed, err := c.counts(datasetID)
	if err != nil {
		return err
	}
	if total > 0 && reviewed == total {
		// advance to reviewing unless the dataset already moved past it
		err := c.db.Model(&models.Dataset{}).
			Where("dataset_id = ? AND status IN ?", ds.DatasetID,
				[]string{models.StatusProcessing, models.StatusProcessed}).
			Update("status", models.StatusReviewing).Error
		if err != nil {
			return fmt.Errorf("%w: %v", lifecycle.ErrUnavailable, err)
		}
	}
	return nil
}

// Progress reports review coverage; an empty dataset reports 0% rather than
// dividing by zero.
func (c *Coordinator) Progress(datasetID string, user *models.User) (*Progress, error) {
	if _, err := c.accessible(datasetID, user); err != nil {
		return nil, err
	}
	total, reviewed, err := c.counts(datasetID)
	if err != nil {
		return nil, err
	}
	p := &Progress{Total: total, Reviewed: reviewed}
	if total > 0 {
		p.Percent = int(reviewed * 100 / total)
	}
	return p, nil
}

// AllReviewed reports whether every record has a decision. Empty datasets
// never satisfy the gate.
func (c *Coordinator) AllReviewed(datasetID string) (bool, error) {
	total, reviewed, err := c.counts(datasetID)
	if err != nil {
		return false, err
	}
	return total > 0 && reviewed == total, nil
}

func (c *Coordinator) counts(datasetID string) (total, reviewed int64, err error) {
	if err = c.db.Model(&models.Record{}).Where("dataset_id = ?", datasetID).Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("%w: %v", lifecycle.ErrUnavailable, err)
	}
	if err = c.db.Model(&models.Record{}).Where("dataset_id = ? AND reviewed = ?", datasetID, true).Count(&reviewed).Error; err != nil {
		return 0, 0, fmt.Errorf("%w: %v", lifecycle.ErrUnavailable, err)
	}
	return total, reviewed, nil
}

func (c *Coordinator) accessible(datasetID string, user *models.User) (*models.Dataset, error) {
	var ds models.Dataset
	if err := c.db.Where("dataset_id = ?", datasetID).First(&ds).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, lifecycle.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", lifecycle.ErrUnavailable, err)
	}
	if ds.UserID != user.ID && (user.OrganizationID == nil || *user.OrganizationID != ds.OrganizationID) {
		return nil, lifecycle.ErrNotFound
	}
	return &ds, nil
}
