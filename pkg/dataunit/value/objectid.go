package value

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ObjectID is the spec's 12-byte time-ordered identifier (spec.md §3):
// 4-byte unix seconds, 3-byte random host marker, 2-byte process marker,
// 3-byte monotonic counter within the second.
type ObjectID [12]byte

var (
	hostMarker    [3]byte
	processMarker [2]byte
	counter       uint32 // low 24 bits used
	lastSecond    int64
)

func init() {
	id := uuid.New()
	copy(hostMarker[:], id[:3])
	copy(processMarker[:], id[3:5])
}

// NewObjectID allocates a fresh, time-ordered ObjectID.
func NewObjectID() ObjectID {
	now := time.Now().Unix()

	var c uint32
	for {
		prevSecond := atomic.LoadInt64(&lastSecond)
		if prevSecond != now {
			if atomic.CompareAndSwapInt64(&lastSecond, prevSecond, now) {
				atomic.StoreUint32(&counter, 0)
			}
		}
		c = atomic.AddUint32(&counter, 1) & 0x00FFFFFF
		break
	}

	var id ObjectID
	binary.BigEndian.PutUint32(id[0:4], uint32(now))
	copy(id[4:7], hostMarker[:])
	copy(id[7:9], processMarker[:])
	id[9] = byte(c >> 16)
	id[10] = byte(c >> 8)
	id[11] = byte(c)
	return id
}

// ParseObjectID decodes a 24-char lowercase hex string into an ObjectID.
func ParseObjectID(s string) (ObjectID, error) {
	var id ObjectID
	if len(s) != 24 {
		return id, fmt.Errorf("objectid: expected 24 hex chars, got %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("objectid: %w", err)
	}
	copy(id[:], b)
	return id, nil
}

// ObjectIDFromBytes wraps 12 raw bytes as an ObjectID.
func ObjectIDFromBytes(b []byte) (ObjectID, error) {
	var id ObjectID
	if len(b) != 12 {
		return id, fmt.Errorf("objectid: expected 12 bytes, got %d", len(b))
	}
	copy(id[:], b)
	return id, nil
}

func (id ObjectID) String() string { return hex.EncodeToString(id[:]) }

func (id ObjectID) IsZero() bool { return id == ObjectID{} }

// Time returns the embedded unix-second timestamp.
func (id ObjectID) Time() time.Time {
	return time.Unix(int64(binary.BigEndian.Uint32(id[0:4])), 0)
}

// Less implements the lexicographic ordering on the 12 raw bytes, which
// coincides with time ordering for same-host IDs within a second (spec.md §8).
func (id ObjectID) Less(other ObjectID) bool {
	for i := range id {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}

// Bytes returns the raw 12-byte representation.
func (id ObjectID) Bytes() []byte { return id[:] }

// RandomHex generates n random bytes, used by callers that need an opaque
// correlation token distinct from ObjectID (e.g. join tokens).
func RandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
