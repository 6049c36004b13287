package hot

import (
	"bufio"
	"encoding/binary"
	"io"
	"runtime"
	"strings"

	"github.com/ValentinKolb/hotkv/lib/db/engines/hot/internal"
	"github.com/ValentinKolb/hotkv/lib/db/util"
	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"golang.org/x/sync/errgroup"
)

// --------------------------------------------------------------------------
// Compression
// --------------------------------------------------------------------------

// Compression selects how the body of a snapshot is compressed
type Compression uint8

const (
	CompressionNone Compression = iota // Body is written as is
	CompressionZstd                    // Body is zstd compressed
	CompressionLZ4                     // Body is lz4 compressed
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

// ParseCompression parses the name of a compression ("none", "zstd" or "lz4")
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return CompressionNone, errors.Newf("unknown compression %q (expected none, zstd or lz4)", name)
	}
}

// nopWriteCloser adds a no-op Close to a writer
type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// compressWriter wraps w with the compressor for c. Closing it flushes the
// compressor but not w.
func compressWriter(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionZstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, errors.Newf("unsupported compression: %d", c)
	}
}

// decompressReader wraps r with the decompressor for c. The returned function
// releases the decompressor.
func decompressReader(r io.Reader, c Compression) (io.Reader, func(), error) {
	switch c {
	case CompressionNone:
		return r, func() {}, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, errors.Wrap(err, "create zstd reader")
		}
		return dec, dec.Close, nil
	case CompressionLZ4:
		return lz4.NewReader(r), func() {}, nil
	default:
		return nil, nil, errors.Newf("unsupported compression: %d", c)
	}
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

/*
Snapshot layout (all integers little endian):

	header:  magic "HOTKVDB\x00" | version u8 | seed u64 | compression u8 | write index u64
	body:    count u64 | count * entry          (compressed as announced by the header)
	entry:   key length u16 | key | expireAt u64 | deleteAt u64 | index u64 | value length u32 | value

Entries of one shard are written in key order.
*/

// savedEntry is a deep copy of one entry taken for a snapshot
type savedEntry struct {
	key   string
	entry internal.Entry
}

// Save persists the database to the writer.
// Deleted entries are skipped, expired entries are kept without their value.
//
// Thread-safety: This function allows concurrent operations with all other functions
// except Load. Each shard is copied under its read lock, so the snapshot is
// consistent per shard but not across shards.
func (hdb *DB) Save(w io.Writer) error {
	writeIndex := hdb.currIndex.Load()

	// copy all shards in parallel
	snapshots := make([][]savedEntry, len(hdb.shards))
	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, shard := range hdb.shards {
		g.Go(func() error {
			snapshots[i] = copyShard(shard, writeIndex)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var count uint64
	for _, s := range snapshots {
		count += uint64(len(s))
	}

	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	// Write header
	header := make([]byte, 0, len(magicNum)+1+8+1+8)
	header = append(header, magicNum...)
	header = append(header, hotVersion)
	header = binary.LittleEndian.AppendUint64(header, hdb.seed)
	header = append(header, byte(hdb.opts.Compression))
	header = binary.LittleEndian.AppendUint64(header, writeIndex)
	if _, err := bw.Write(header); err != nil {
		return errors.Wrap(err, "write header")
	}

	body, err := compressWriter(bw, hdb.opts.Compression)
	if err != nil {
		return err
	}

	if err := binary.Write(body, binary.LittleEndian, count); err != nil {
		return errors.Wrap(err, "write entry count")
	}

	var buf []byte
	for _, snapshot := range snapshots {
		for _, item := range snapshot {
			buf = buf[:0]
			buf = binary.LittleEndian.AppendUint16(buf, uint16(len(item.key)))
			buf = append(buf, item.key...)
			buf = binary.LittleEndian.AppendUint64(buf, item.entry.ExpireAt)
			buf = binary.LittleEndian.AppendUint64(buf, item.entry.DeleteAt)
			buf = binary.LittleEndian.AppendUint64(buf, item.entry.Index)
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(item.entry.Value)))
			if _, err := body.Write(buf); err != nil {
				return errors.Wrap(err, "write entry")
			}
			if _, err := body.Write(item.entry.Value); err != nil {
				return errors.Wrap(err, "write value")
			}
		}
	}

	if err := body.Close(); err != nil {
		return errors.Wrap(err, "close compressor")
	}
	return bw.Flush()
}

// copyShard returns deep copies of the entries of shard that are not deleted
//
// Thread-safety: takes the shard's read lock.
func copyShard(shard *internal.Shard, writeIndex uint64) []savedEntry {
	shard.Mu.RLock()
	defer shard.Mu.RUnlock()

	out := make([]savedEntry, 0, shard.Data.Len())
	for key, e := range shard.Data.All() {
		if _, isDeleted := e.TTLInfo(writeIndex); isDeleted {
			continue
		}

		entryCopy := *e
		if e.Value != nil {
			entryCopy.Value = make([]byte, len(e.Value))
			copy(entryCopy.Value, e.Value)
		}
		out = append(out, savedEntry{key: string(key), entry: entryCopy})
	}
	return out
}

// Load restores a database from the reader, replacing its contents.
//
// Thread-safety: This function is not thread-safe and should not be called concurrently
// with other operations.
func (hdb *DB) Load(r io.Reader) error {
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// Read and verify header
	header := make([]byte, len(magicNum)+1+8+1+8)
	if _, err := io.ReadFull(br, header); err != nil {
		return errors.Wrap(err, "read header")
	}
	if string(header[:len(magicNum)]) != magicNum {
		return errors.New("invalid file format: magic number mismatch")
	}
	rest := header[len(magicNum):]

	if version := rest[0]; version != hotVersion {
		return errors.Newf("unsupported version: %d (expected %d)", version, hotVersion)
	}
	seed := binary.LittleEndian.Uint64(rest[1:9])
	compression := Compression(rest[9])
	savedIndex := binary.LittleEndian.Uint64(rest[10:18])

	body, release, err := decompressReader(br, compression)
	if err != nil {
		return err
	}
	defer release()

	var count uint64
	if err := binary.Read(body, binary.LittleEndian, &count); err != nil {
		return errors.Wrap(err, "read entry count")
	}

	// Build the new shards aside, the old contents stay readable until the swap
	shards := make([]*internal.Shard, hdb.numShards)
	for i := range shards {
		shards[i] = internal.NewShard()
	}

	maxIndex := savedIndex
	var fixed [8 + 8 + 8 + 4]byte
	var lenBuf [2]byte
	for i := uint64(0); i < count; i++ {
		if _, err := io.ReadFull(body, lenBuf[:]); err != nil {
			return errors.Wrapf(err, "read key length of entry %d", i)
		}
		keyLen := int(binary.LittleEndian.Uint16(lenBuf[:]))
		if keyLen > MaxKeyLen {
			return errors.Newf("corrupt snapshot: key of entry %d is %d bytes long", i, keyLen)
		}

		keyBuf := make([]byte, keyLen)
		if _, err := io.ReadFull(body, keyBuf); err != nil {
			return errors.Wrapf(err, "read key of entry %d", i)
		}
		key := string(keyBuf)

		if _, err := io.ReadFull(body, fixed[:]); err != nil {
			return errors.Wrapf(err, "read entry %d", i)
		}
		e := internal.Entry{
			ExpireAt: binary.LittleEndian.Uint64(fixed[0:8]),
			DeleteAt: binary.LittleEndian.Uint64(fixed[8:16]),
			Index:    binary.LittleEndian.Uint64(fixed[16:24]),
		}
		valueLen := binary.LittleEndian.Uint32(fixed[24:28])

		// values of expired entries stay nil
		if isExpired, _ := e.TTLInfo(savedIndex); !isExpired || valueLen > 0 {
			e.Value = make([]byte, valueLen)
			if _, err := io.ReadFull(body, e.Value); err != nil {
				return errors.Wrapf(err, "read value of entry %d", i)
			}
		}

		if e.Index > maxIndex {
			maxIndex = e.Index
		}

		shard := internal.GetShard(util.HashKey(key, seed), shards)
		shard.Data.Insert(keyBuf, e)
		shard.ValueBytes += int64(len(e.Value))
		shard.Track(key, e)
	}

	// swap the shard contents
	for i, shard := range hdb.shards {
		shard.Mu.Lock()
		shard.Data = shards[i].Data
		shard.ExpireHeap = shards[i].ExpireHeap
		shard.DeleteHeap = shards[i].DeleteHeap
		shard.ValueBytes = shards[i].ValueBytes
		shard.Mu.Unlock()
	}
	hdb.seed = seed

	hdb.currIndex.Store(0)
	hdb.SetWriteIdx(maxIndex)

	hdb.log.Debugf("loaded %d entries (compression %s)", count, compression)
	return nil
}
