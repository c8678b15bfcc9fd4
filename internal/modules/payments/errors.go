package payments

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrCampaignUnavailable = errors.New("campaign unavailable")
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrCampaignNotFound    = errors.New("campaign not found at settlement")
	ErrMissingMetadata     = errors.New("payment metadata incomplete")
	ErrProcessor           = errors.New("payment processor error")
	ErrStorageConflict     = errors.New("ledger storage failure")
	ErrMalformedEvent      = errors.New("malformed webhook event")
	ErrAnomalyNotFound     = errors.New("anomaly not found")
	ErrAnomalyResolved     = errors.New("anomaly already resolved")
	ErrNotReattributable   = errors.New("anomaly cannot be reattributed")
)

// isDup reports a unique-constraint violation. MySQL reports 1062; dialectors
// with error translation enabled report gorm.ErrDuplicatedKey.
func isDup(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}

func ptr[T any](v T) *T { return &v }
