package fifoq

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
)

var (
	// ErrEmpty is returned by Peek and Dequeue on an empty queue.
	ErrEmpty = errors.New("fifoq: queue is empty")

	// ErrClosed is returned by operations on a closed queue.
	ErrClosed = errors.New("fifoq: queue is closed")
)

// entryHeaderLen frames every entry: [payloadLen:4][xxhash of payload:8].
const entryHeaderLen = 12

// Queue is a durable on-disk FIFO queue.
//
// Entries are appended to a single data file; the dequeue position lives in a
// sidecar head file. Consumed entries remain in the file until Compact.
type Queue struct {
	mu sync.Mutex

	id       string
	dataPath string
	headPath string
	file     *os.File

	headOffset int64 // byte offset of the current head entry
	tailOffset int64 // append position (end of last valid entry)
	size       int64 // live entries between head and tail

	compressed bool
	level      int
	syncWrites bool
	encoder    *zstd.Encoder
	decoder    *zstd.Decoder
	closed     bool
}

// Open opens (or creates) the queue with the given id under dir, restoring
// any persisted entries and dequeue position.
func Open(dir, id string, optFns ...func(o *Options)) (*Queue, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create queue directory: %w", err)
	}

	q := &Queue{
		id:         id,
		dataPath:   filepath.Join(dir, id+".q"),
		headPath:   filepath.Join(dir, id+".head"),
		syncWrites: opts.SyncWrites,
	}

	file, err := os.OpenFile(q.dataPath, os.O_CREATE|os.O_RDWR, 0600) //nolint:gosec // G304: path is configurable
	if err != nil {
		return nil, fmt.Errorf("failed to open queue file: %w", err)
	}
	q.file = file

	st, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat queue file: %w", err)
	}

	if st.Size() == 0 {
		if err := writeFileHeader(file, headerInfo{
			Compressed:       opts.Compress,
			CompressionLevel: opts.CompressionLevel,
		}); err != nil {
			_ = file.Close()
			return nil, err
		}
		q.compressed = opts.Compress
		q.level = opts.CompressionLevel
		q.headOffset = fileHeaderLen
		q.tailOffset = fileHeaderLen
	} else {
		// The file is self-describing; its header wins over the options.
		hdr, err := readFileHeader(file)
		if err != nil {
			_ = file.Close()
			return nil, err
		}
		q.compressed = hdr.Compressed
		q.level = hdr.CompressionLevel
		if err := q.recover(st.Size()); err != nil {
			_ = file.Close()
			return nil, err
		}
	}

	if q.compressed {
		level := zstd.EncoderLevelFromZstd(q.level)
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("failed to create compressor: %w", err)
		}
		q.encoder = encoder
		decoder, err := zstd.NewReader(nil)
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("failed to create decompressor: %w", err)
		}
		q.decoder = decoder
	}

	return q, nil
}

// recover restores the head position and counts the live entries by walking
// the frame stream. A torn final frame from an interrupted append is
// truncated away.
func (q *Queue) recover(fileSize int64) error {
	head, ok, err := readHeadFile(q.headPath)
	if err != nil {
		return err
	}
	if !ok || head < fileHeaderLen || head > fileSize {
		// No trustworthy head position; replay from the start of the entry
		// stream. Redelivery of consumed entries is the safe direction.
		head = fileHeaderLen
	}
	q.headOffset = head

	var hdr [entryHeaderLen]byte
	offset := head
	for {
		if offset+entryHeaderLen > fileSize {
			break
		}
		if _, err := q.file.ReadAt(hdr[:], offset); err != nil {
			return fmt.Errorf("failed to scan queue file: %w", err)
		}
		payloadLen := int64(binary.LittleEndian.Uint32(hdr[0:4]))
		if offset+entryHeaderLen+payloadLen > fileSize {
			break
		}
		offset += entryHeaderLen + payloadLen
		q.size++
	}
	q.tailOffset = offset

	if offset < fileSize {
		if err := q.file.Truncate(offset); err != nil {
			return fmt.Errorf("failed to truncate torn queue entry: %w", err)
		}
	}
	return nil
}

// Enqueue appends an entry to the tail of the queue.
func (q *Queue) Enqueue(data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	payload := data
	if q.compressed {
		payload = q.encoder.EncodeAll(data, nil)
	}

	buf := make([]byte, entryHeaderLen+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint64(buf[4:12], xxhash.Sum64(payload))
	copy(buf[entryHeaderLen:], payload)

	if _, err := q.file.WriteAt(buf, q.tailOffset); err != nil {
		return fmt.Errorf("failed to append queue entry: %w", err)
	}
	if q.syncWrites {
		if err := q.file.Sync(); err != nil {
			return fmt.Errorf("failed to sync queue file: %w", err)
		}
	}
	q.tailOffset += int64(len(buf))
	q.size++
	return nil
}

// Peek returns the head entry without removing it.
func (q *Queue) Peek() ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.peekLocked()
}

func (q *Queue) peekLocked() ([]byte, error) {
	if q.closed {
		return nil, ErrClosed
	}
	if q.size == 0 {
		return nil, ErrEmpty
	}

	var hdr [entryHeaderLen]byte
	if _, err := q.file.ReadAt(hdr[:], q.headOffset); err != nil {
		return nil, fmt.Errorf("failed to read queue entry header: %w", err)
	}
	payloadLen := int64(binary.LittleEndian.Uint32(hdr[0:4]))
	payload := make([]byte, payloadLen)
	if _, err := q.file.ReadAt(payload, q.headOffset+entryHeaderLen); err != nil {
		return nil, fmt.Errorf("failed to read queue entry: %w", err)
	}
	if xxhash.Sum64(payload) != binary.LittleEndian.Uint64(hdr[4:12]) {
		return nil, fmt.Errorf("queue entry at offset %d failed checksum", q.headOffset)
	}

	if q.compressed {
		data, err := q.decoder.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress queue entry: %w", err)
		}
		return data, nil
	}
	return payload, nil
}

// Dequeue removes and returns the head entry. The new head position is
// persisted before Dequeue returns, so a restart does not resurrect the
// entry.
func (q *Queue) Dequeue() ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	data, err := q.peekLocked()
	if err != nil {
		return nil, err
	}

	var hdr [entryHeaderLen]byte
	if _, err := q.file.ReadAt(hdr[:], q.headOffset); err != nil {
		return nil, fmt.Errorf("failed to read queue entry header: %w", err)
	}
	newHead := q.headOffset + entryHeaderLen + int64(binary.LittleEndian.Uint32(hdr[0:4]))

	if err := writeHeadFile(q.headPath, newHead, q.syncWrites); err != nil {
		return nil, err
	}
	q.headOffset = newHead
	q.size--
	return data, nil
}

// Size returns the number of entries currently in the queue.
func (q *Queue) Size() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// IsEmpty reports whether the queue holds no entries.
func (q *Queue) IsEmpty() bool {
	return q.Size() == 0
}

// RemoveAll discards every entry and reclaims the file space immediately.
func (q *Queue) RemoveAll() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	// Reset the head first: if the truncate is lost to a crash, a stale head
	// position would only replay entries, never skip live ones.
	if err := writeHeadFile(q.headPath, fileHeaderLen, q.syncWrites); err != nil {
		return err
	}
	if err := q.file.Truncate(fileHeaderLen); err != nil {
		return fmt.Errorf("failed to truncate queue file: %w", err)
	}
	if q.syncWrites {
		if err := q.file.Sync(); err != nil {
			return fmt.Errorf("failed to sync queue file: %w", err)
		}
	}
	q.headOffset = fileHeaderLen
	q.tailOffset = fileHeaderLen
	q.size = 0
	return nil
}

// Compact rewrites the data file without the consumed prefix. Entry contents
// and order are unchanged; only space held by already-dequeued entries is
// reclaimed.
func (q *Queue) Compact() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if q.headOffset == fileHeaderLen {
		return nil
	}

	tmpPath := q.dataPath + ".compact"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // G304: path is configurable
	if err != nil {
		return fmt.Errorf("failed to create compaction file: %w", err)
	}

	if err := writeFileHeader(tmp, headerInfo{
		Compressed:       q.compressed,
		CompressionLevel: q.level,
	}); err != nil {
		_ = tmp.Close()
		return err
	}

	// Raw copy of the live region; frames are self-contained so no re-coding
	// is needed.
	live := io.NewSectionReader(q.file, q.headOffset, q.tailOffset-q.headOffset)
	if _, err := io.Copy(tmp, live); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to copy live queue entries: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync compaction file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close compaction file: %w", err)
	}

	// Head reset goes first. If the rename below is lost to a crash, the old
	// file with head at the stream start merely replays consumed entries.
	if err := writeHeadFile(q.headPath, fileHeaderLen, q.syncWrites); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, q.dataPath); err != nil {
		return fmt.Errorf("failed to replace queue file: %w", err)
	}

	file, err := os.OpenFile(q.dataPath, os.O_RDWR, 0600) //nolint:gosec // G304: path is configurable
	if err != nil {
		return fmt.Errorf("failed to reopen queue file: %w", err)
	}
	_ = q.file.Close()
	q.file = file
	q.tailOffset = fileHeaderLen + (q.tailOffset - q.headOffset)
	q.headOffset = fileHeaderLen
	return nil
}

// Sync flushes the data file to stable storage.
func (q *Queue) Sync() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if err := q.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync queue file: %w", err)
	}
	return nil
}

// Close flushes and closes the queue. The persisted state remains for the
// next Open with the same dir and id.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true

	if q.encoder != nil {
		_ = q.encoder.Close()
	}
	if q.decoder != nil {
		q.decoder.Close()
	}

	if err := q.file.Sync(); err != nil {
		_ = q.file.Close()
		return fmt.Errorf("failed to sync queue file: %w", err)
	}
	return q.file.Close()
}
