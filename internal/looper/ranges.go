package looper

import "fmt"

// EventRange is the half-open interval [Lo, Hi) of reader positions.
type EventRange struct {
	Lo, Hi int64
}

func (r EventRange) Len() int64     { return r.Hi - r.Lo }
func (r EventRange) String() string { return fmt.Sprintf("[%d,%d)", r.Lo, r.Hi) }

// SplitOptions constrains how a reader's events are cut into chunks.
//   - MaxRows:   rows per chunk; chunks are exact, the last one shorter.
//   - MaxBytes:  approximate bytes per chunk, from the table size.
//   - MinChunks: lower bound on the number of chunks.
//
// MaxRows wins over MaxBytes when both are set.
type SplitOptions struct {
	MaxBytes  int64
	MaxRows   int64
	MinChunks int
}

// SplitEventRanges cuts [0, nEvents) into contiguous, non-overlapping
// ranges. totalBytes is only used with MaxBytes. Without any constraint the
// result is the single range [0, nEvents).
func SplitEventRanges(nEvents, totalBytes int64, opts SplitOptions) []EventRange {
	if nEvents <= 0 {
		return []EventRange{{0, max(nEvents, 0)}}
	}

	if opts.MaxRows > 0 {
		k := (nEvents + opts.MaxRows - 1) / opts.MaxRows
		if k >= int64(opts.MinChunks) {
			out := make([]EventRange, 0, k)
			for lo := int64(0); lo < nEvents; lo += opts.MaxRows {
				out = append(out, EventRange{lo, min(lo+opts.MaxRows, nEvents)})
			}
			return out
		}
	}

	var k int64
	if opts.MaxBytes > 0 && opts.MaxRows <= 0 {
		k = totalBytes / opts.MaxBytes
	}
	k = max(k, int64(opts.MinChunks))
	if k <= 1 {
		return []EventRange{{0, nEvents}}
	}
	// no empty chunks
	k = min(k, nEvents)

	out := make([]EventRange, k)
	for i := int64(0); i < k; i++ {
		out[i] = EventRange{i * nEvents / k, (i + 1) * nEvents / k}
	}
	return out
}
