package cryptfile

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/hatn-go/hatn/pkg/crypt"
)

func testSuite(t *testing.T) *crypt.CipherSuite {
	t.Helper()
	crypt.CipherSuites.Reset()
	key := bytes.Repeat([]byte{0x24}, 32)
	suite, err := crypt.RegisterStdlibDefaults("engine1", "suite1", key)
	if err != nil {
		t.Fatalf("RegisterStdlibDefaults: %v", err)
	}
	return suite
}

func TestWriteReadRoundTrip(t *testing.T) {
	suite := testSuite(t)
	path := filepath.Join(t.TempDir(), "data.cf")

	f, err := Open(path, suite, 16)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	payload := []byte("the quick brown fox jumps over the lazy dog")
	if _, err := f.WriteAt(payload, 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if err := f.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got := make([]byte, len(payload))
	if _, err := f.ReadAt(got, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch: got %q want %q", got, payload)
	}
	if f.Size() != int64(len(payload)) {
		t.Fatalf("Size() = %d, want %d", f.Size(), len(payload))
	}
}

func TestReopenPersistsContent(t *testing.T) {
	suite := testSuite(t)
	path := filepath.Join(t.TempDir(), "data.cf")

	f, err := Open(path, suite, 16)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	payload := []byte("persisted across chunk boundaries exactly")
	if _, err := f.WriteAt(payload, 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f2, err := Open(path, suite, 16)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f2.Close()
	got := make([]byte, len(payload))
	if _, err := f2.ReadAt(got, 0); err != nil {
		t.Fatalf("ReadAt after reopen: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("reopen mismatch: got %q want %q", got, payload)
	}
}

func TestPartialOverwriteAtBoundary(t *testing.T) {
	suite := testSuite(t)
	path := filepath.Join(t.TempDir(), "data.cf")

	f, err := Open(path, suite, 8)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	if _, err := f.WriteAt([]byte("0123456789abcdef"), 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	// Overwrite bytes 6..10, straddling the chunk-0/chunk-1 boundary.
	if _, err := f.WriteAt([]byte("XXXX"), 6); err != nil {
		t.Fatalf("WriteAt overlap: %v", err)
	}

	got := make([]byte, 16)
	if _, err := f.ReadAt(got, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	want := []byte("012345XXXXabcdef")
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestInvalidateCacheForcesReread(t *testing.T) {
	suite := testSuite(t)
	path := filepath.Join(t.TempDir(), "data.cf")

	f, err := Open(path, suite, 8)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	if _, err := f.WriteAt([]byte("hello world"), 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if err := f.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	f.InvalidateCache(0, 11)

	got := make([]byte, 11)
	if _, err := f.ReadAt(got, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q", got)
	}
}

func TestTruncateShrinks(t *testing.T) {
	suite := testSuite(t)
	path := filepath.Join(t.TempDir(), "data.cf")

	f, err := Open(path, suite, 8)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	if _, err := f.WriteAt([]byte("0123456789abcdef"), 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if err := f.Truncate(5); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	if f.Size() != 5 {
		t.Fatalf("Size() = %d, want 5", f.Size())
	}
	got := make([]byte, 5)
	if _, err := f.ReadAt(got, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(got) != "01234" {
		t.Fatalf("got %q", got)
	}
}
