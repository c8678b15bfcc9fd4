package middleware

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ctxKeyUserID   = "user_id"
	ctxKeyUserRole = "user_role"
)

type SessionCfg struct {
	DB         *gorm.DB
	CookieName string
}

// Session rows are issued by the account service; this service only reads
// them. The raw token never touches the database, only its SHA-256.
type Session struct {
	ID         string    `gorm:"primaryKey;type:char(36)"`
	UserID     string    `gorm:"type:varchar(64);not null;index:ix_sessions_user_id"`
	TokenHash  []byte    `gorm:"type:binary(32);not null;uniqueIndex:ux_sessions_token_hash"`
	ExpiresAt  time.Time `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
	LastSeenAt time.Time `gorm:"not null"`
}

func (Session) TableName() string { return "sessions" }

// Sessions resolves the caller from an "Authorization: Bearer" token or the
// session cookie and stores the user in the context. Requests without a
// valid session pass through anonymous.
func Sessions(cfg SessionCfg) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token, _ = c.Cookie(cfg.CookieName)
		}
		if token == "" {
			c.Next()
			return
		}

		var sess Session
		err := cfg.DB.WithContext(c.Request.Context()).
			Where("token_hash = ? AND expires_at > ?", HashToken(token), time.Now()).
			Take(&sess).Error
		if err != nil {
			c.Next()
			return
		}

		c.Set(ctxKeyUserID, sess.UserID)

		// role lives with the account service; absent means a plain user
		var role string
		row := cfg.DB.WithContext(c.Request.Context()).Table("users").Select("role").Where("id = ?", sess.UserID).Row()
		if row.Scan(&role) == nil {
			c.Set(ctxKeyUserRole, role)
		}

		c.Next()
	}
}

func bearerToken(h string) string {
	const prefix = "bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

func HashToken(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}

// CreateSession issues a session for userID and returns the raw token.
func CreateSession(db *gorm.DB, userID string, ttl time.Duration) (string, *Session, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", nil, err
	}
	token := hex.EncodeToString(b)

	now := time.Now()
	sess := &Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		TokenHash:  HashToken(token),
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
		UpdatedAt:  now,
		LastSeenAt: now,
	}
	if err := db.Create(sess).Error; err != nil {
		return "", nil, err
	}
	return token, sess, nil
}

type ContextUser struct {
	ID   string
	Role string
}

func CurrentUser(c *gin.Context) (ContextUser, bool) {
	id := c.GetString(ctxKeyUserID)
	if id == "" {
		return ContextUser{}, false
	}
	return ContextUser{ID: id, Role: c.GetString(ctxKeyUserRole)}, true
}
