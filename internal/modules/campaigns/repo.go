package campaigns

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Get(ctx context.Context, id string) (Campaign, error) {
	var c Campaign
	if err := r.db.WithContext(ctx).Take(&c, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Campaign{}, ErrNotFound
		}
		return Campaign{}, err
	}
	return c, nil
}

type CreateInput struct {
	ID          string // optional, generated when empty
	OwnerID     string
	Title       string
	Description string
	GoalAmount  int64
	Currency    string
}

func (r *Repo) Create(ctx context.Context, in CreateInput) (Campaign, error) {
	if strings.TrimSpace(in.Title) == "" {
		return Campaign{}, ErrMissingTitle
	}
	if in.GoalAmount <= 0 {
		return Campaign{}, ErrInvalidGoal
	}
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()
	c := Campaign{
		ID:          id,
		OwnerID:     in.OwnerID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		GoalAmount:  in.GoalAmount,
		Currency:    strings.ToUpper(in.Currency),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.db.WithContext(ctx).Create(&c).Error; err != nil {
		return Campaign{}, err
	}
	return c, nil
}

// Deactivate soft-closes the campaign; new payment orders against it are
// rejected while in-flight payments still settle.
func (r *Repo) Deactivate(ctx context.Context, id, ownerID string) error {
	c, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.OwnerID != ownerID {
		return ErrNotOwner
	}
	return r.db.WithContext(ctx).Model(&Campaign{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_active": false, "updated_at": time.Now()}).Error
}
