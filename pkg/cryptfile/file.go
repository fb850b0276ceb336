package cryptfile

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/hatn-go/hatn/pkg/crypt"
	"github.com/hatn-go/hatn/pkg/herr"
	"github.com/hatn-go/hatn/pkg/metrics"
)

const defaultChunkSize = 64 * 1024

// cachedChunk holds one chunk's plaintext bytes plus whether it has been
// written since the last flush (spec.md §4.5 "mark dirty, flush on
// flush/sync/close").
type cachedChunk struct {
	data  []byte
	dirty bool
}

// File is one encrypted file: a header, an open os.File handle, a chunk
// cache, and the AEAD primitives resolved from suite (spec.md §4.5). All
// methods are guarded by mu, matching the spec's "per-file mutex".
type File struct {
	mu sync.Mutex

	path string
	f    *os.File
	hdr  *header
	suite *crypt.CipherSuite
	enc   crypt.AEADEncryptor
	dec   crypt.AEADDecryptor

	chunks map[int64]*cachedChunk
}

// Open opens path, creating a new encrypted file with chunkSize-byte
// chunks if it does not exist, or validating and loading the header of an
// existing one. suite must already have its AEAD slot configured.
func Open(path string, suite *crypt.CipherSuite, chunkSize int) (*File, error) {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	enc, err := suite.CreateAEADEncryptor("")
	if err != nil {
		return nil, err
	}
	dec, err := suite.CreateAEADDecryptor("")
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, herr.Wrap(herr.Utility, herr.ErrIOFailed, "opening encrypted file", err)
	}

	ef := &File{path: path, f: f, suite: suite, enc: enc, dec: dec, chunks: map[int64]*cachedChunk{}}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, herr.Wrap(herr.Utility, herr.ErrIOFailed, "stat encrypted file", err)
	}
	if fi.Size() == 0 {
		var iv [16]byte
		if _, err := io.ReadFull(rand.Reader, iv[:]); err != nil {
			f.Close()
			return nil, herr.Wrap(herr.Utility, herr.ErrIOFailed, "generating master IV", err)
		}
		ef.hdr = &header{ChunkSize: uint32(chunkSize), SuiteID: suite.ID, MasterIV: iv}
		if _, err := f.WriteAt(ef.hdr.encode(), 0); err != nil {
			f.Close()
			return nil, herr.Wrap(herr.Utility, herr.ErrIOFailed, "writing encrypted file header", err)
		}
	} else {
		buf := make([]byte, headerSize)
		if _, err := io.ReadFull(io.NewSectionReader(f, 0, headerSize), buf); err != nil {
			f.Close()
			return nil, herr.Wrap(herr.Utility, herr.ErrIOFailed, "reading encrypted file header", err)
		}
		hdr, err := decodeHeader(buf)
		if err != nil {
			f.Close()
			return nil, err
		}
		ef.hdr = hdr
	}

	return ef, nil
}

// Size returns the file's logical (plaintext) length.
func (ef *File) Size() int64 {
	ef.mu.Lock()
	defer ef.mu.Unlock()
	return int64(ef.hdr.PlaintextLen)
}

func (ef *File) chunkSize() int64 { return int64(ef.hdr.ChunkSize) }

// chunkAAD binds a chunk's index into its authenticated data, so a
// ciphertext chunk moved to a different index fails to open. Only the index
// is bound: a chunk taken from another file, or from an earlier write at the
// same index, under the same key is not detected.
func chunkAAD(index int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(index))
	return b[:]
}

// loadChunk returns chunkIndex's plaintext, decrypting from disk and
// populating the cache on a miss. Caller must hold ef.mu.
func (ef *File) loadChunk(index int64) (*cachedChunk, error) {
	if c, ok := ef.chunks[index]; ok {
		return c, nil
	}

	slot := chunkSlotSize(ef.hdr.ChunkSize)
	off := headerSize + index*slot
	sealed := make([]byte, slot)
	n, err := ef.f.ReadAt(sealed, off)
	if err != nil && err != io.EOF {
		return nil, herr.Wrap(herr.Utility, herr.ErrIOFailed, "reading cipher chunk", err)
	}
	var plain []byte
	if n < int(slot) {
		// chunk never written: treat as all-zero plaintext.
		plain = make([]byte, ef.hdr.ChunkSize)
	} else {
		timer := metrics.NewTimer()
		plain, err = ef.dec.Open(sealed, chunkAAD(index))
		timer.ObserveDurationVec(metrics.CryptOperationDuration, ef.suite.AEAD, "decrypt")
		if err != nil {
			metrics.CryptOperationsFailed.WithLabelValues(ef.suite.AEAD, "decrypt").Inc()
			return nil, herr.Wrap(herr.Utility, herr.ErrIOFailed, "decrypting cipher chunk", err)
		}
	}

	c := &cachedChunk{data: plain}
	ef.chunks[index] = c
	return c, nil
}

// ReadAt copies min(len(p), Size()-off) decrypted bytes starting at
// plaintext offset off into p (spec.md §4.5 read path).
func (ef *File) ReadAt(p []byte, off int64) (int, error) {
	ef.mu.Lock()
	defer ef.mu.Unlock()

	size := int64(ef.hdr.PlaintextLen)
	if off >= size {
		return 0, io.EOF
	}
	n := int64(len(p))
	if off+n > size {
		n = size - off
	}

	chunkSize := ef.chunkSize()
	firstChunk := off / chunkSize
	lastChunk := (off + n - 1) / chunkSize

	var read int64
	for idx := firstChunk; idx <= lastChunk; idx++ {
		c, err := ef.loadChunk(idx)
		if err != nil {
			return int(read), err
		}
		chunkStart := idx * chunkSize
		srcFrom := int64(0)
		if idx == firstChunk {
			srcFrom = off - chunkStart
		}
		srcTo := chunkSize
		if idx == lastChunk {
			srcTo = (off + n) - chunkStart
		}
		copy(p[read:], c.data[srcFrom:srcTo])
		read += srcTo - srcFrom
	}

	var err error
	if read < int64(len(p)) {
		err = io.EOF
	}
	return int(read), err
}

// WriteAt writes p at plaintext offset off, read-modify-writing any
// partially-overlapped boundary chunks and marking every touched chunk
// dirty (spec.md §4.5 write path).
func (ef *File) WriteAt(p []byte, off int64) (int, error) {
	ef.mu.Lock()
	defer ef.mu.Unlock()

	chunkSize := ef.chunkSize()
	n := int64(len(p))
	firstChunk := off / chunkSize
	lastChunk := (off + n - 1) / chunkSize

	var written int64
	for idx := firstChunk; idx <= lastChunk; idx++ {
		c, err := ef.loadChunk(idx)
		if err != nil {
			return int(written), err
		}
		chunkStart := idx * chunkSize
		dstFrom := int64(0)
		if idx == firstChunk {
			dstFrom = off - chunkStart
		}
		dstTo := chunkSize
		if idx == lastChunk {
			dstTo = (off + n) - chunkStart
		}
		copy(c.data[dstFrom:dstTo], p[written:written+(dstTo-dstFrom)])
		c.dirty = true
		written += dstTo - dstFrom
	}

	if newLen := uint64(off + n); newLen > ef.hdr.PlaintextLen {
		ef.hdr.PlaintextLen = newLen
	}
	return int(written), nil
}

// Flush encrypts and writes every dirty chunk plus the header back to
// disk, clearing dirty flags (spec.md §4.5 "flush on flush/sync/close").
func (ef *File) Flush() error {
	ef.mu.Lock()
	defer ef.mu.Unlock()
	return ef.flushLocked()
}

func (ef *File) flushLocked() error {
	slot := chunkSlotSize(ef.hdr.ChunkSize)
	for idx, c := range ef.chunks {
		if !c.dirty {
			continue
		}
		timer := metrics.NewTimer()
		sealed, err := ef.enc.Seal(c.data, chunkAAD(idx))
		timer.ObserveDurationVec(metrics.CryptOperationDuration, ef.suite.AEAD, "encrypt")
		if err != nil {
			metrics.CryptOperationsFailed.WithLabelValues(ef.suite.AEAD, "encrypt").Inc()
			return herr.Wrap(herr.Utility, herr.ErrIOFailed, "encrypting cipher chunk", err)
		}
		off := headerSize + idx*slot
		if _, err := ef.f.WriteAt(sealed, off); err != nil {
			return herr.Wrap(herr.Utility, herr.ErrIOFailed, "writing cipher chunk", err)
		}
		c.dirty = false
	}
	if _, err := ef.f.WriteAt(ef.hdr.encode(), 0); err != nil {
		return herr.Wrap(herr.Utility, herr.ErrIOFailed, "writing encrypted file header", err)
	}
	return nil
}

// Sync flushes then fsyncs the underlying file.
func (ef *File) Sync() error {
	if err := ef.Flush(); err != nil {
		return err
	}
	ef.mu.Lock()
	defer ef.mu.Unlock()
	if err := ef.f.Sync(); err != nil {
		return herr.Wrap(herr.Utility, herr.ErrIOFailed, "fsync encrypted file", err)
	}
	return nil
}

// Close flushes pending chunks and closes the underlying file.
func (ef *File) Close() error {
	ef.mu.Lock()
	if err := ef.flushLocked(); err != nil {
		ef.mu.Unlock()
		return err
	}
	f := ef.f
	ef.mu.Unlock()
	if err := f.Close(); err != nil {
		return herr.Wrap(herr.Utility, herr.ErrIOFailed, "closing encrypted file", err)
	}
	return nil
}

// Truncate sets the file's logical length, dropping cached chunks beyond
// the new boundary and truncating the underlying ciphertext file.
func (ef *File) Truncate(size int64) error {
	ef.mu.Lock()
	defer ef.mu.Unlock()

	if err := ef.flushLocked(); err != nil {
		return err
	}

	chunkSize := ef.chunkSize()
	lastChunk := int64(0)
	if size > 0 {
		lastChunk = (size - 1) / chunkSize
	}
	for idx := range ef.chunks {
		if idx > lastChunk {
			delete(ef.chunks, idx)
		}
	}

	slot := chunkSlotSize(ef.hdr.ChunkSize)
	newFileSize := headerSize + (lastChunk+1)*slot
	if size == 0 {
		newFileSize = headerSize
	}
	if err := ef.f.Truncate(newFileSize); err != nil {
		return herr.Wrap(herr.Utility, herr.ErrIOFailed, "truncating encrypted file", err)
	}
	ef.hdr.PlaintextLen = uint64(size)
	return ef.flushLocked()
}

// InvalidateCache drops cached chunks whose byte range [off, off+length)
// overlaps the given plaintext range, forcing the next read to re-decrypt
// from disk (spec.md §4.5 invalidateCache).
func (ef *File) InvalidateCache(off, length int64) {
	ef.mu.Lock()
	defer ef.mu.Unlock()

	chunkSize := ef.chunkSize()
	first := off / chunkSize
	last := (off + length - 1) / chunkSize
	for idx := range ef.chunks {
		if idx >= first && idx <= last {
			delete(ef.chunks, idx)
		}
	}
}
