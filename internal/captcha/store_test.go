package captcha

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoreDisabled(t *testing.T) {
	store := NewStore("", nil)
	assert.False(t, store.Enabled())

	// must be a no-op, not a crash
	store.SaveCaptcha(context.Background(), "VIN1234567", 1, []byte("img"))
}

func TestStoreSavesLocalCopy(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, nil)
	assert.True(t, store.Enabled())

	store.SaveCaptcha(context.Background(), "WVW-ZZZ 001", 2, []byte("png-bytes"))

	entries, err := os.ReadDir(dir)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)

	name := entries[0].Name()
	assert.True(t, strings.HasPrefix(name, "captcha_WVW_ZZZ_001_attempt2_"), name)
	assert.True(t, strings.HasSuffix(name, ".png"), name)

	content, err := os.ReadFile(filepath.Join(dir, name))
	assert.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), content)
}
