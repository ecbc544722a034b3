package wal_manager

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

func (r *WALRecord) Encode() []byte {
	totalSize := RecordHeaderSize + len(r.Data)
	buf := make([]byte, totalSize)

	binary.BigEndian.PutUint64(buf[0:8], r.LSN)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(r.Data)))
	binary.BigEndian.PutUint32(buf[12:16], r.Checksum)
	copy(buf[16:], r.Data)

	return buf
}

func (r *WALRecord) Validate() bool {
	return recordChecksum(r.LSN, r.Data) == r.Checksum
}

// recordChecksum folds an xxhash of LSN and data into 32 bits
func recordChecksum(lsn uint64, data []byte) uint32 {
	d := xxhash.New()

	var lsnBytes [8]byte
	binary.BigEndian.PutUint64(lsnBytes[:], lsn)
	_, _ = d.Write(lsnBytes[:])
	_, _ = d.Write(data)

	sum := d.Sum64()
	return uint32(sum) ^ uint32(sum>>32)
}
