package campaigns

import "time"

// Campaign amounts are in minor currency units. RaisedAmount is written only
// by the payments settlement/refund paths through atomic SQL expressions.
type Campaign struct {
	ID           string    `gorm:"type:varchar(64);primaryKey"`
	OwnerID      string    `gorm:"type:varchar(64);not null;index:ix_campaigns_owner_id"`
	Title        string    `gorm:"type:varchar(255);not null"`
	Description  string    `gorm:"type:text"`
	GoalAmount   int64     `gorm:"not null"`
	RaisedAmount int64     `gorm:"not null"`
	Currency     string    `gorm:"type:char(3);not null"`
	IsActive     bool      `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (Campaign) TableName() string { return "campaigns" }
