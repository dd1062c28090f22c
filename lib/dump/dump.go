package dump

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/fKV/lib/engine"
	"github.com/ValentinKolb/fKV/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("dump")

// ErrCorrupt is returned (wrapped) for malformed or truncated dump data.
var ErrCorrupt = errors.New("corrupt dump")

const (
	fileVersion  byte = 1
	maxFrameSize      = engine.MaxValueSize + 64*1024 // value plus record overhead
)

var magic = [4]byte{'F', 'K', 'V', 'D'}

// --------------------------------------------------------------------------
// Framing
// --------------------------------------------------------------------------

// frameWriter writes length prefixed serialized records
type frameWriter struct {
	w   *bufio.Writer
	ser ISerializer
	len [4]byte
}

func (fw *frameWriter) write(rec Record) error {
	b, err := fw.ser.Serialize(rec)
	if err != nil {
		return fmt.Errorf("serialize %s record: %w", rec.Type, err)
	}
	binary.BigEndian.PutUint32(fw.len[:], uint32(len(b)))
	if _, err := fw.w.Write(fw.len[:]); err != nil {
		return err
	}
	_, err = fw.w.Write(b)
	return err
}

// frameReader reads length prefixed serialized records
type frameReader struct {
	r   *bufio.Reader
	ser ISerializer
	buf []byte
}

// read returns io.EOF only if the stream ends exactly at a frame boundary
func (fr *frameReader) read(rec *Record) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(fr.r, lenBuf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: truncated frame header", ErrCorrupt)
		}
		return err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return fmt.Errorf("%w: frame of %d bytes exceeds %d", ErrCorrupt, n, maxFrameSize)
	}
	if cap(fr.buf) < int(n) {
		fr.buf = make([]byte, n)
	}
	fr.buf = fr.buf[:n]
	if _, err := io.ReadFull(fr.r, fr.buf); err != nil {
		return fmt.Errorf("%w: truncated frame: %v", ErrCorrupt, err)
	}
	if err := fr.ser.Deserialize(fr.buf, rec); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Dump
// --------------------------------------------------------------------------

// Dump writes all entries of pool to w, serialized with the given format, and
// returns the number of entries written.
//
// On ARBITRARY_EXPIRY stores the remaining ttl of every entry is recorded,
// entries that expire while the dump runs are skipped.
func Dump(pool *store.Pool, w io.Writer, f Format) (n uint64, err error) {
	ser, err := NewSerializer(f)
	if err != nil {
		return 0, err
	}
	s := pool.Store()
	arbitrary := s.Expiry().Mode() == engine.ArbitraryExpiry

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(append(magic[:], fileVersion, byte(f))); err != nil {
		return 0, err
	}
	fw := &frameWriter{w: bw, ser: ser}

	err = fw.write(Record{
		Type:       RecTHeader,
		Tag:        pool.Tag(),
		Version:    s.Version(),
		ExpiryMode: uint8(s.Expiry().Mode()),
	})
	if err != nil {
		return 0, err
	}

	var writeErr error
	rangeErr := pool.Range(func(pair store.KeyValuePair) bool {
		rec := Record{Type: RecTEntry, Key: pair.Key.Bytes()}
		if rec.Value, writeErr = pair.Value.Bytes(); writeErr != nil {
			return false
		}

		if arbitrary {
			info, err := pool.KeyInfo(pair.Key)
			if errors.Is(err, store.ErrNotFound) {
				return true // expired or removed meanwhile
			}
			if err != nil {
				writeErr = err
				return false
			}
			if info.Expires() {
				remaining := time.Until(info.Expiry)
				if remaining <= 0 {
					return true
				}
				rec.ExpireIn = uint32((remaining + time.Second - 1) / time.Second)
			}
		}

		if writeErr = fw.write(rec); writeErr != nil {
			return false
		}
		n++
		return true
	})
	if rangeErr != nil {
		return n, rangeErr
	}
	if writeErr != nil {
		return n, writeErr
	}

	if err := fw.write(Record{Type: RecTTrailer, Count: n}); err != nil {
		return n, err
	}
	if err := bw.Flush(); err != nil {
		return n, err
	}
	log.Debugf("dumped %d entries of pool %s (%s)", n, pool.Tag(), f)
	return n, nil
}

// --------------------------------------------------------------------------
// Restore
// --------------------------------------------------------------------------

// RestoreOptions configures Restore.
type RestoreOptions struct {
	// Number of entries written per BatchPut (default 64)
	BatchSize int
}

// Header describes a dump, as read from its first record.
type Header struct {
	Format     Format
	Tag        string
	Version    uint32
	ExpiryMode engine.ExpiryMode
}

// Restore replays a dump created by Dump into pool and returns the header of
// the dump and the number of entries written. The pool does not need to have
// the tag of the dumped pool.
//
// Entries are written with BatchPut in chunks, so on error an arbitrary
// prefix of the dump may have been restored.
func Restore(pool *store.Pool, r io.Reader, opts *RestoreOptions) (hdr Header, n uint64, err error) {
	batchSize := 64
	if opts != nil && opts.BatchSize > 0 {
		batchSize = opts.BatchSize
	}

	br := bufio.NewReader(r)
	var preamble [6]byte
	if _, err := io.ReadFull(br, preamble[:]); err != nil {
		return hdr, 0, fmt.Errorf("%w: missing preamble: %v", ErrCorrupt, err)
	}
	if !bytes.Equal(preamble[:4], magic[:]) {
		return hdr, 0, fmt.Errorf("%w: bad magic %q", ErrCorrupt, preamble[:4])
	}
	if preamble[4] != fileVersion {
		return hdr, 0, fmt.Errorf("%w: unsupported file version %d", ErrCorrupt, preamble[4])
	}
	hdr.Format = Format(preamble[5])
	ser, err := NewSerializer(hdr.Format)
	if err != nil {
		return hdr, 0, err
	}
	fr := &frameReader{r: br, ser: ser}

	var rec Record
	if err := fr.read(&rec); err != nil {
		return hdr, 0, eofIsCorrupt(err)
	}
	if rec.Type != RecTHeader {
		return hdr, 0, fmt.Errorf("%w: expected header record, got %s", ErrCorrupt, rec.Type)
	}
	hdr.Tag = rec.Tag
	hdr.Version = rec.Version
	hdr.ExpiryMode = engine.ExpiryMode(rec.ExpiryMode)

	b := &batch{pool: pool, size: batchSize}
	defer b.release()

	for {
		if err := fr.read(&rec); err != nil {
			return hdr, b.written, eofIsCorrupt(err)
		}

		switch rec.Type {
		case RecTEntry:
			if err := b.add(rec); err != nil {
				return hdr, b.written, err
			}
		case RecTTrailer:
			if err := b.flush(); err != nil {
				return hdr, b.written, err
			}
			if rec.Count != b.written {
				return hdr, b.written, fmt.Errorf("%w: trailer announces %d entries, read %d", ErrCorrupt, rec.Count, b.written)
			}
			log.Debugf("restored %d entries of pool %s into pool %s", b.written, hdr.Tag, pool.Tag())
			return hdr, b.written, nil
		default:
			return hdr, b.written, fmt.Errorf("%w: unexpected %s record", ErrCorrupt, rec.Type)
		}
	}
}

func eofIsCorrupt(err error) error {
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: missing trailer", ErrCorrupt)
	}
	return err
}

// batch collects entries for one BatchPut call
type batch struct {
	pool    *store.Pool
	size    int
	keys    []store.Key
	values  []*store.Value
	written uint64
}

func (b *batch) add(rec Record) error {
	key, err := store.KeyFromBytes(rec.Key)
	if err != nil {
		return err
	}
	value, err := store.WrapValue(rec.Value)
	if err != nil {
		return err
	}
	b.keys = append(b.keys, key)
	b.values = append(b.values, value)
	if rec.ExpireIn != 0 {
		if err := value.SetExpiry(time.Duration(rec.ExpireIn) * time.Second); err != nil {
			return err
		}
	}
	if len(b.keys) >= b.size {
		return b.flush()
	}
	return nil
}

func (b *batch) flush() error {
	if len(b.keys) == 0 {
		return nil
	}
	if err := b.pool.BatchPut(b.keys, b.values); err != nil {
		return err
	}
	b.written += uint64(len(b.keys))
	b.release()
	return nil
}

func (b *batch) release() {
	for _, v := range b.values {
		_ = v.Free()
	}
	b.keys = b.keys[:0]
	b.values = b.values[:0]
}
