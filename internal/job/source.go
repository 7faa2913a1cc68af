package job

import "io"

// Source produces job descriptors one at a time. The controller pulls
// strictly in order and never rewinds. Next returns io.EOF once the
// sequence is exhausted; any other error aborts the batch.
//
// Sources may produce descriptors lazily; a Source is consumed by exactly
// one controller and need not be safe for concurrent use.
type Source interface {
	Next() (*Job, error)
}

// SliceSource yields descriptors from an in-memory slice.
type SliceSource struct {
	jobs []*Job
	pos  int
}

// NewSliceSource creates a Source over the given descriptors.
func NewSliceSource(jobs []*Job) *SliceSource {
	return &SliceSource{jobs: jobs}
}

// Next returns the next descriptor or io.EOF.
func (s *SliceSource) Next() (*Job, error) {
	if s.pos >= len(s.jobs) {
		return nil, io.EOF
	}
	j := s.jobs[s.pos]
	s.pos++
	return j, nil
}

// Func adapts a generator function to the Source interface.
type Func func() (*Job, error)

// Next calls the underlying function.
func (f Func) Next() (*Job, error) {
	return f()
}

var (
	_ Source = (*SliceSource)(nil)
	_ Source = (Func)(nil)
)
