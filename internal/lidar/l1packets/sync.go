package l1packets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/banshee-data/sentry/internal/monitoring"
)

// SyncMode selects how the synchronizer reacts to a header byte mismatch.
type SyncMode int

const (
	// SyncLinear discards every byte consumed by a failed partial match and
	// resumes the search with a fresh byte. A genuine header that begins
	// inside a failed partial match is skipped.
	SyncLinear SyncMode = iota
	// SyncBacktracking re-examines the mismatched byte against the longest
	// signature prefix that is still a valid suffix (KMP), so no genuine
	// header is skipped.
	SyncBacktracking
)

func (m SyncMode) String() string {
	switch m {
	case SyncLinear:
		return "linear"
	case SyncBacktracking:
		return "backtracking"
	default:
		return fmt.Sprintf("SyncMode(%d)", int(m))
	}
}

// ParseSyncMode converts a config string into a SyncMode.
func ParseSyncMode(s string) (SyncMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "linear":
		return SyncLinear, nil
	case "backtracking", "kmp":
		return SyncBacktracking, nil
	default:
		return SyncLinear, fmt.Errorf("unsupported sync mode %q: expected linear or backtracking", s)
	}
}

// SyncOptions configures a Synchronizer.
type SyncOptions struct {
	Mode SyncMode
	// TrailerBytes is the number of bytes discarded between the header and
	// the payload. Some firmware revisions emit one status byte there.
	TrailerBytes int
}

// SyncStats summarises synchronizer activity.
type SyncStats struct {
	BytesConsumed  int64  // bytes taken from the stream, including discarded ones
	BytesDiscarded int64  // bytes skipped while searching for a header
	Frames         uint64 // frames yielded
	Timeouts       uint64 // reads that returned no data within the timeout
	PartialFrames  uint64 // frames abandoned after their header matched
}

// Synchronizer recovers frame alignment in a live byte stream and yields
// fixed-size payloads that directly follow a matched header.
type Synchronizer struct {
	src       *byteReader
	mode      SyncMode
	trailer   int
	signature []byte
	failure   []int
	stats     SyncStats
}

// NewSynchronizer creates a Synchronizer reading from r. A Read that returns
// no bytes and no error is treated as a read timeout.
//
// The Synchronizer owns r from then on. It reads ahead of the frame boundary,
// so bytes it has buffered but not yet consumed are lost to a caller that
// reads r directly. SyncStats.BytesConsumed counts bytes taken by the
// synchronizer, not bytes read from r.
func NewSynchronizer(r io.Reader, opts SyncOptions) *Synchronizer {
	sig := HeaderSignature[:]
	return &Synchronizer{
		src:       newByteReader(r),
		mode:      opts.Mode,
		trailer:   opts.TrailerBytes,
		signature: sig,
		failure:   prefixFunction(sig),
	}
}

// Stats returns a copy of the synchronizer counters.
func (s *Synchronizer) Stats() SyncStats {
	return s.stats
}

// Next blocks until the next complete frame has been read. It returns
// ErrStreamClosed when the input ends before a header completes,
// ErrShortRead when it ends inside a frame, ErrReadTimeout when a read
// timed out (the partial match or frame is abandoned), and an error wrapping
// ErrIOFailure for any other read failure.
func (s *Synchronizer) Next() (RawFrame, error) {
	var frame RawFrame

	if err := s.seekHeader(); err != nil {
		return frame, err
	}

	for i := 0; i < s.trailer; i++ {
		if _, err := s.readByte(); err != nil {
			s.stats.PartialFrames++
			return frame, payloadError(err)
		}
	}

	if err := s.readFull(frame[:]); err != nil {
		s.stats.PartialFrames++
		return frame, payloadError(err)
	}

	s.stats.Frames++
	return frame, nil
}

// Frames returns a pull-based sequence of frames. Read timeouts are absorbed
// and the byte search resumes; the sequence ends after yielding the first
// fatal error, or the context error once ctx is done.
func (s *Synchronizer) Frames(ctx context.Context) iter.Seq2[RawFrame, error] {
	return func(yield func(RawFrame, error) bool) {
		for ctx.Err() == nil {
			frame, err := s.Next()
			if errors.Is(err, ErrReadTimeout) {
				monitoring.Debugf("sensor read timeout, resuming header search (timeouts=%d)", s.stats.Timeouts)
				continue
			}
			if err != nil {
				yield(frame, err)
				return
			}
			if !yield(frame, nil) {
				return
			}
		}
		yield(RawFrame{}, ctx.Err())
	}
}

// seekHeader consumes bytes until the full header signature has matched.
func (s *Synchronizer) seekHeader() error {
	matched := 0
	for matched < len(s.signature) {
		b, err := s.readByte()
		if err != nil {
			s.stats.BytesDiscarded += int64(matched)
			if errors.Is(err, io.EOF) {
				return ErrStreamClosed
			}
			return err
		}

		switch s.mode {
		case SyncBacktracking:
			for matched > 0 && b != s.signature[matched] {
				s.stats.BytesDiscarded += int64(matched - s.failure[matched-1])
				matched = s.failure[matched-1]
			}
			if b == s.signature[matched] {
				matched++
			} else {
				s.stats.BytesDiscarded++
			}
		default:
			if b == s.signature[matched] {
				matched++
			} else {
				// The mismatched byte is dropped with the partial match.
				s.stats.BytesDiscarded += int64(matched) + 1
				matched = 0
			}
		}
	}
	return nil
}

func (s *Synchronizer) readByte() (byte, error) {
	b, err := s.src.ReadByte()
	if err != nil {
		if errors.Is(err, ErrReadTimeout) {
			s.stats.Timeouts++
		}
		return 0, err
	}
	s.stats.BytesConsumed++
	return b, nil
}

func (s *Synchronizer) readFull(buf []byte) error {
	n, err := s.src.ReadFull(buf)
	s.stats.BytesConsumed += int64(n)
	if err != nil && errors.Is(err, ErrReadTimeout) {
		s.stats.Timeouts++
	}
	return err
}

// payloadError maps an error that interrupted a frame after its header.
func payloadError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrShortRead
	}
	return err
}

// prefixFunction computes the KMP failure table for sig: entry i is the
// length of the longest proper prefix of sig[:i+1] that is also a suffix.
func prefixFunction(sig []byte) []int {
	pi := make([]int, len(sig))
	k := 0
	for i := 1; i < len(sig); i++ {
		for k > 0 && sig[i] != sig[k] {
			k = pi[k-1]
		}
		if sig[i] == sig[k] {
			k++
		}
		pi[i] = k
	}
	return pi
}

// byteReader is a small read-ahead buffer that, unlike bufio.Reader, reports
// each empty read as a timeout instead of retrying it.
type byteReader struct {
	r          io.Reader
	buf        []byte
	start, end int
}

func newByteReader(r io.Reader) *byteReader {
	return &byteReader{r: r, buf: make([]byte, 512)}
}

func (b *byteReader) fill() error {
	n, err := b.r.Read(b.buf)
	b.start, b.end = 0, n
	if n > 0 {
		return nil
	}
	if err == nil {
		return ErrReadTimeout
	}
	return classifyReadError(err)
}

func (b *byteReader) ReadByte() (byte, error) {
	if b.start == b.end {
		if err := b.fill(); err != nil {
			return 0, err
		}
	}
	c := b.buf[b.start]
	b.start++
	return c, nil
}

// ReadFull fills p completely, returning the number of bytes copied.
func (b *byteReader) ReadFull(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if b.start == b.end {
			if err := b.fill(); err != nil {
				return n, err
			}
		}
		c := copy(p[n:], b.buf[b.start:b.end])
		b.start += c
		n += c
	}
	return n, nil
}
