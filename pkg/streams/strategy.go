package streams

import (
	"fmt"

	"github.com/vnykmshr/webstreams/pkg/common/validation"
)

// QueuingStrategy decides how much a stream buffers before it signals
// backpressure. Size computes the weight of one chunk; a nil Size counts every
// chunk as 1.
type QueuingStrategy[T any] struct {
	HighWaterMark float64
	Size          func(chunk T) float64
}

// CountQueuingStrategy counts chunks: every chunk has size 1.
func CountQueuingStrategy[T any](highWaterMark float64) QueuingStrategy[T] {
	return QueuingStrategy[T]{HighWaterMark: highWaterMark}
}

// ByteLengthQueuingStrategy weighs chunks by their length in bytes.
func ByteLengthQueuingStrategy[T ~[]byte | ~string](highWaterMark float64) QueuingStrategy[T] {
	return QueuingStrategy[T]{
		HighWaterMark: highWaterMark,
		Size: func(chunk T) float64 {
			return float64(len(chunk))
		},
	}
}

func (s QueuingStrategy[T]) sizeOf(chunk T) float64 {
	if s.Size == nil {
		return 1
	}
	return s.Size(chunk)
}

func (s QueuingStrategy[T]) validate() error {
	if err := validation.ValidateNonNegative("streams", "highWaterMark", s.HighWaterMark); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidHighWaterMark, err)
	}
	if err := validation.ValidateFinite("streams", "highWaterMark", s.HighWaterMark); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidHighWaterMark, err)
	}
	return nil
}
