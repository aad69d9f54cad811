// Package idgen generates short, sortable-by-time session identifiers for
// log correlation.
package idgen

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/binary"
	"hash/fnv"
	"os"
	"sync/atomic"
	"time"
)

var (
	nodeID   [3]byte
	sequence atomic.Uint32
	encoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)
)

func init() {
	if _, err := rand.Read(nodeID[:]); err == nil {
		return
	}
	h := fnv.New32a()
	host, _ := os.Hostname()
	h.Write([]byte(host))
	sum := h.Sum(nil)
	copy(nodeID[:], sum[1:])
}

// New returns a 20 character lowercase base32 ID made of a 4 byte unix
// timestamp, a 3 byte node ID, a 2 byte sequence and 3 random bytes.
func New() string {
	var id [12]byte
	binary.BigEndian.PutUint32(id[0:4], uint32(time.Now().Unix()))
	copy(id[4:7], nodeID[:])
	binary.BigEndian.PutUint16(id[7:9], uint16(sequence.Add(1)))
	if _, err := rand.Read(id[9:12]); err != nil {
		n := time.Now().UnixNano()
		id[9], id[10], id[11] = byte(n>>16), byte(n>>8), byte(n)
	}
	return encoding.EncodeToString(id[:])
}
