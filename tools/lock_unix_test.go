//go:build unix

package tools

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveFileTruncatesUnderLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.exec")
	if err := sampleLoader(t, "s1", true, false).SaveFile(path, false); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	holder, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer holder.Close()
	if err := lockFile(holder); err != nil {
		t.Fatal(err)
	}

	next := sampleLoader(t, "other-session", false, true)
	done := make(chan error, 1)
	go func() {
		done <- next.SaveFile(path, false)
	}()

	time.Sleep(50 * time.Millisecond)
	during, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(during) != string(before) {
		t.Errorf("file changed while another writer held the lock: %d bytes, want %d", len(during), len(before))
	}

	unlockFile(holder)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	var want bytes.Buffer
	if err := next.Save(&want); err != nil {
		t.Fatal(err)
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(after, want.Bytes()) {
		t.Errorf("file holds %d bytes, want only the second stream (%d bytes)", len(after), want.Len())
	}
}
