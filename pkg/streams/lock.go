package streams

// lockState tracks which handle, if any, owns a stream.
type lockState int

const (
	unlocked lockState = iota
	lockedByReader
	lockedByWriter
)

func (l lockState) String() string {
	switch l {
	case lockedByReader:
		return "locked-by-reader"
	case lockedByWriter:
		return "locked-by-writer"
	default:
		return "unlocked"
	}
}

// transition moves the lock to next. Acquiring a held lock fails with
// ErrLocked; releasing always succeeds. Callers hold the stream mutex.
func (l *lockState) transition(next lockState) error {
	if next != unlocked && *l != unlocked {
		return ErrLocked
	}
	*l = next
	return nil
}
