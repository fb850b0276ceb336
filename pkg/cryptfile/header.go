// Package cryptfile implements the store's encrypted file layer (spec.md
// §4.5): fixed-size cipher chunks under a small header, read-modify-write
// at chunk boundaries, an in-memory chunk cache, and OS-delegated
// file-system operations. Grounded on pkg/security/secrets.go's
// EncryptSecret/DecryptSecret AES-256-GCM nonce-prepend pattern, promoted
// from whole-blob encryption to per-chunk encryption addressed by chunk
// index.
package cryptfile

import (
	"encoding/binary"

	"github.com/hatn-go/hatn/pkg/herr"
)

var magic = [4]byte{'H', 'C', 'F', '1'}

const suiteIDField = 64

// headerSize is magic(4) + version(1) + chunkSize(4) + suiteID(64) +
// masterIV(16) + plaintextLen(8).
const headerSize = 4 + 1 + 4 + suiteIDField + 16 + 8

const fileVersion = 1

// header is the fixed-size record at offset 0 of an encrypted file
// (spec.md §4.5: "magic, cipher suite id, master IV, chunk size,
// plaintext-length indicator").
type header struct {
	ChunkSize    uint32
	SuiteID      string
	MasterIV     [16]byte
	PlaintextLen uint64
}

func (h *header) encode() []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:4], magic[:])
	buf[4] = fileVersion
	binary.BigEndian.PutUint32(buf[5:9], h.ChunkSize)
	copy(buf[9:9+suiteIDField], h.SuiteID)
	copy(buf[9+suiteIDField:9+suiteIDField+16], h.MasterIV[:])
	binary.BigEndian.PutUint64(buf[9+suiteIDField+16:headerSize], h.PlaintextLen)
	return buf
}

func decodeHeader(buf []byte) (*header, error) {
	if len(buf) != headerSize {
		return nil, herr.New(herr.Utility, herr.ErrIOFailed, "encrypted file header truncated")
	}
	if string(buf[0:4]) != string(magic[:]) {
		return nil, herr.New(herr.Utility, herr.ErrIOFailed, "encrypted file magic mismatch")
	}
	if buf[4] != fileVersion {
		return nil, herr.New(herr.Utility, herr.ErrIOFailed, "unsupported encrypted file version")
	}
	h := &header{}
	h.ChunkSize = binary.BigEndian.Uint32(buf[5:9])
	end := 9 + suiteIDField
	for end > 9 && buf[end-1] == 0 {
		end--
	}
	h.SuiteID = string(buf[9:end])
	copy(h.MasterIV[:], buf[9+suiteIDField:9+suiteIDField+16])
	h.PlaintextLen = binary.BigEndian.Uint64(buf[9+suiteIDField+16 : headerSize])
	return h, nil
}

// chunkSlotSize is the on-disk size of one encrypted chunk: a 12-byte GCM
// nonce followed by chunkSize plaintext bytes and a 16-byte auth tag
// (pkg/crypt's gcmAEAD.Seal layout).
func chunkSlotSize(chunkSize uint32) int64 {
	return int64(chunkSize) + 12 + 16
}
