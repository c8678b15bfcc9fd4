package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/arsenic-art/DreamFundr/internal/config"
)

func TestLocalPutAndDelete(t *testing.T) {
	base := t.TempDir()
	l := NewLocal(base)
	ctx := context.Background()

	res, err := l.Put(ctx, strings.NewReader(`{"id":"pay_1"}`), PutInput{Key: "anomalies/pay_1.json", ContentType: "application/json"})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if res.Key != "anomalies/pay_1.json" {
		t.Errorf("unexpected key %q", res.Key)
	}

	b, err := os.ReadFile(filepath.Join(base, "anomalies", "pay_1.json"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(b) != `{"id":"pay_1"}` {
		t.Errorf("unexpected content %q", b)
	}

	if err := l.Delete(ctx, res.Key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	// deleting twice is fine
	if err := l.Delete(ctx, res.Key); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
}

func TestLocalKeysStayInsideBaseDir(t *testing.T) {
	base := t.TempDir()
	l := NewLocal(base)

	res, err := l.Put(context.Background(), strings.NewReader("x"), PutInput{Key: "../../escape.json"})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if res.Key != "escape.json" {
		t.Errorf("expected key to be confined, got %q", res.Key)
	}
	if _, err := os.Stat(filepath.Join(base, "escape.json")); err != nil {
		t.Errorf("expected file inside base dir: %v", err)
	}

	if _, err := l.Put(context.Background(), strings.NewReader("x"), PutInput{Key: " "}); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
}

func TestFromConfigNone(t *testing.T) {
	res, err := FromConfig(context.Background(), config.ArchiveConfig{Driver: "none"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Storage != nil || res.Driver != "none" {
		t.Errorf("expected disabled archive, got %+v", res)
	}
}
