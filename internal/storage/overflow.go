package storage

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/klauspost/compress/zstd"

	"github.com/tuannm99/novaloop/internal/alias/bx"
	"github.com/tuannm99/novaloop/internal/alias/util"
)

var ErrBadOverflowRef = errors.New("overflow: malformed reference")

// OverflowRef points to a compressed chain in the overflow segment.
//   - FirstPageID: first page of the chain
//   - Length:      compressed bytes stored across the chain
//   - RawLength:   bytes after decompression
type OverflowRef struct {
	FirstPageID uint32
	Length      uint32
	RawLength   uint32
}

// OverflowRefSize is the encoded size of an OverflowRef in a slot.
const OverflowRefSize = 12

func (r OverflowRef) Encode() []byte {
	out := make([]byte, OverflowRefSize)
	bx.PutU32(out[0:4], r.FirstPageID)
	bx.PutU32(out[4:8], r.Length)
	bx.PutU32(out[8:12], r.RawLength)
	return out
}

func DecodeOverflowRef(b []byte) (OverflowRef, error) {
	if len(b) != OverflowRefSize {
		return OverflowRef{}, ErrBadOverflowRef
	}
	return OverflowRef{
		FirstPageID: bx.U32(b[0:4]),
		Length:      bx.U32(b[4:8]),
		RawLength:   bx.U32(b[8:12]),
	}, nil
}

// Overflow page layout:
//
//	[0..3]   uint32 nextPageID   // 0 => end of chain
//	[4..5]   uint16 used         // payload bytes on this page
//	[6..]    payload
const (
	overflowHeaderSize  = 6
	overflowPayloadSize = PageSize - overflowHeaderSize
)

// OverflowManager stores tuples too large for a page as zstd-compressed
// linked pages in their own FileSet (segment 0 only).
type OverflowManager struct {
	fs  FileSet
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func NewOverflowManager(fs FileSet) (*OverflowManager, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("overflow: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("overflow: zstd decoder: %w", err)
	}
	return &OverflowManager{fs: fs, enc: enc, dec: dec}, nil
}

// Write compresses data and appends it as a new chain.
func (ovf *OverflowManager) Write(data []byte) (OverflowRef, error) {
	if len(data) == 0 {
		return OverflowRef{}, fmt.Errorf("overflow: empty data")
	}
	packed := ovf.enc.EncodeAll(data, make([]byte, 0, len(data)/2))

	size, _, err := ovf.fs.StatSegment(0)
	if err != nil {
		return OverflowRef{}, err
	}
	f, err := ovf.fs.OpenSegment(0)
	if err != nil {
		return OverflowRef{}, err
	}
	defer func() { _ = f.Close() }()

	start := uint32((size + PageSize - 1) / PageSize)
	cur := start
	buf := make([]byte, PageSize)
	for off := 0; off < len(packed); {
		chunk := min(len(packed)-off, overflowPayloadSize)
		clear(buf)
		var next uint32
		if off+chunk < len(packed) {
			next = cur + 1
		}
		bx.PutU32(buf[0:4], next)
		bx.PutU16(buf[4:6], uint16(chunk))
		copy(buf[overflowHeaderSize:], packed[off:off+chunk])
		if _, err := f.WriteAt(buf, int64(cur)*PageSize); err != nil {
			return OverflowRef{}, err
		}
		off += chunk
		cur++
	}

	ref := OverflowRef{FirstPageID: start, Length: uint32(len(packed)), RawLength: uint32(len(data))}
	slog.Debug("overflow: write",
		"firstPageID", ref.FirstPageID,
		"pages", cur-start,
		"raw", ref.RawLength,
		"packed", ref.Length,
	)
	return ref, nil
}

// Read loads and decompresses the chain behind ref.
func (ovf *OverflowManager) Read(ref OverflowRef) ([]byte, error) {
	if ref.Length == 0 {
		return nil, fmt.Errorf("overflow: zero-length ref")
	}
	f, err := ovf.fs.OpenSegment(0)
	if err != nil {
		return nil, err
	}
	defer util.CloseQuietly(f, "overflow segment")

	packed := make([]byte, 0, ref.Length)
	remaining := int(ref.Length)
	pageID := ref.FirstPageID
	buf := make([]byte, PageSize)
	for remaining > 0 {
		if _, err := f.ReadAt(buf, int64(pageID)*PageSize); err != nil {
			return nil, err
		}
		next := bx.U32(buf[0:4])
		used := int(bx.U16(buf[4:6]))
		if used > overflowPayloadSize || used > remaining {
			slog.Warn("overflow: bad page header",
				"pageID", pageID,
				"used", used,
				"remaining", remaining,
			)
			return nil, fmt.Errorf("%w: overflow page %d", ErrPageCorrupted, pageID)
		}
		packed = append(packed, buf[overflowHeaderSize:overflowHeaderSize+used]...)
		remaining -= used
		if remaining > 0 {
			if next == 0 {
				return nil, fmt.Errorf("overflow: truncated chain, remaining=%d", remaining)
			}
			pageID = next
		}
	}

	out, err := ovf.dec.DecodeAll(packed, make([]byte, 0, ref.RawLength))
	if err != nil {
		return nil, fmt.Errorf("overflow: decompress: %w", err)
	}
	if len(out) != int(ref.RawLength) {
		return nil, fmt.Errorf("%w: overflow length %d, want %d", ErrPageCorrupted, len(out), ref.RawLength)
	}
	return out, nil
}

// Close releases the zstd decoder goroutines.
func (ovf *OverflowManager) Close() error {
	ovf.dec.Close()
	return ovf.enc.Close()
}
