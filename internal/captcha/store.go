package captcha

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/itp-watch/itp-monitor-v2/internal/s3"
)

var unsafeVinRe = regexp.MustCompile(`[^A-Za-z0-9]`)

// Store keeps a copy of every captcha image we feed to the OCR API so
// misreads can be debugged. Both sinks are optional and best-effort: a
// snapshot that fails to save never fails the lookup.
type Store struct {
	dir    string
	s3Repo *s3.S3Repository
}

func NewStore(dir string, s3Repo *s3.S3Repository) *Store {
	return &Store{
		dir:    dir,
		s3Repo: s3Repo,
	}
}

// Enabled reports whether any sink is configured
func (s *Store) Enabled() bool {
	return s != nil && (s.dir != "" || s.s3Repo != nil)
}

func (s *Store) SaveCaptcha(ctx context.Context, vin string, attempt int, image []byte) {
	if !s.Enabled() {
		return
	}

	safeVin := unsafeVinRe.ReplaceAllString(vin, "_")
	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("captcha_%s_attempt%d_%s.png", safeVin, attempt, timestamp)

	if s.dir != "" {
		if err := s.saveLocal(filename, image); err != nil {
			log.Printf("failed to save captcha image: %v", err)
		}
	}

	if s.s3Repo != nil {
		objectName := fmt.Sprintf("captchas/%s/%s", safeVin, filename)
		if err := s.s3Repo.WriteObjectReader(ctx, bytes.NewReader(image), objectName); err != nil {
			log.Printf("failed to archive captcha image to S3: %v", err)
		}
	}
}

func (s *Store) saveLocal(filename string, image []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, filename), image, 0o644)
}
