package chunks

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/PolarWolf314/rimu/internal/keys"

	"github.com/restic/chunker"
)

// SplitOptions bounds chunk sizes. The average is 2^AverageBits bytes.
type SplitOptions struct {
	MinSize     uint
	MaxSize     uint
	AverageBits int
}

// DefaultSplitOptions targets 1 MiB chunks between 256 KiB and 4 MiB.
var DefaultSplitOptions = SplitOptions{
	MinSize:     256 * 1024,
	MaxSize:     4 * 1024 * 1024,
	AverageBits: 20,
}

// Validate checks the documented ranges.
func (o SplitOptions) Validate() error {
	switch {
	case o.MinSize == 0 || o.MaxSize == 0:
		return fmt.Errorf("chunk sizes must be positive")
	case o.MinSize > o.MaxSize:
		return fmt.Errorf("min chunk size %d exceeds max %d", o.MinSize, o.MaxSize)
	case o.AverageBits < 10 || o.AverageBits > 22:
		return fmt.Errorf("average bits %d outside [10, 22]", o.AverageBits)
	}
	return nil
}

// Splitter cuts byte streams at rolling-hash boundaries.
type Splitter struct {
	pol  chunker.Pol
	opts SplitOptions
}

// NewSplitter derives the rolling-hash polynomial from the key hierarchy, so
// chunk boundaries are the same on every device of a user but cannot be
// predicted by the storage provider.
func NewSplitter(root keys.Secret, opts SplitOptions) (*Splitter, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	stream, err := keys.Stream(root, keys.LabelChunkerPolynomial, nil)
	if err != nil {
		return nil, err
	}
	pol, err := chunker.DerivePolynomial(stream)
	if err != nil {
		return nil, fmt.Errorf("deriving chunker polynomial: %w", err)
	}

	return &Splitter{pol: pol, opts: opts}, nil
}

// Split calls fn for each chunk of r in order. The slice passed to fn is
// only valid for the duration of the call.
func (s *Splitter) Split(r io.Reader, fn func(data []byte) error) error {
	c := chunker.NewWithBoundaries(r, s.pol, s.opts.MinSize, s.opts.MaxSize)
	c.SetAverageBits(s.opts.AverageBits)

	buf := make([]byte, s.opts.MaxSize)
	for {
		chunk, err := c.Next(buf)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("splitting: %w", err)
		}
		if err := fn(chunk.Data); err != nil {
			return err
		}
	}
}

// SplitBytes returns copies of every chunk of data.
func (s *Splitter) SplitBytes(data []byte) ([][]byte, error) {
	var out [][]byte
	err := s.Split(bytes.NewReader(data), func(chunk []byte) error {
		out = append(out, append([]byte(nil), chunk...))
		return nil
	})
	return out, err
}
