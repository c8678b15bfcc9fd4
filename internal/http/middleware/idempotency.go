package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arsenic-art/DreamFundr/internal/idempotency"
	"github.com/arsenic-art/DreamFundr/internal/shared/apperr"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"
)

// captureWriter tees the response body so it can be stored for replay.
type captureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// Keys are scoped per user and route. Requests without the header, or with
// a nil store, run normally. 5xx outcomes are not stored.
func Idempotency(store *idempotency.Store, l *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if store == nil || raw == "" {
			c.Next()
			return
		}
		if len(raw) > 255 {
			Fail(c, apperr.InvalidErr("Idempotency-Key is too long", nil))
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			Fail(c, apperr.InvalidErr("invalid body", nil))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		u, _ := CurrentUser(c)
		key := u.ID + ":" + c.FullPath() + ":" + raw
		sum := sha256.Sum256(body)
		fingerprint := hex.EncodeToString(sum[:])

		rec, started, err := store.Begin(key, fingerprint)
		switch {
		case errors.Is(err, idempotency.ErrInProgress):
			Fail(c, apperr.ConflictErr("a request with this Idempotency-Key is still in progress"))
			return
		case errors.Is(err, idempotency.ErrFingerprintMismatch):
			Fail(c, apperr.InvalidErr("Idempotency-Key was already used with a different request", nil))
			return
		case err != nil:
			// the store is an optimisation; run the request without it
			l.WarnContext(c.Request.Context(), "idempotency store unavailable", "err", err)
			c.Next()
			return
		}

		if !started {
			ct := rec.ContentType
			if ct == "" {
				ct = "application/json; charset=utf-8"
			}
			c.Header(HeaderReplayed, "true")
			c.Data(rec.Status, ct, rec.Body)
			c.Abort()
			return
		}

		cw := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = cw
		c.Next()

		status := cw.Status()
		if status >= http.StatusInternalServerError || !cw.Written() {
			if err := store.Release(key); err != nil {
				l.WarnContext(c.Request.Context(), "idempotency release failed", "err", err)
			}
			return
		}
		if err := store.Complete(key, status, cw.Header().Get("Content-Type"), cw.buf.Bytes()); err != nil {
			l.WarnContext(c.Request.Context(), "idempotency save failed", "err", err)
		}
	}
}
