package testutil

import (
	"errors"
	"sync"

	"credtrust/pkg/platform/sentinel"
)

// ConcurrentResult counts how racing calls ended.
type ConcurrentResult struct {
	Successes      int32
	AlreadyRevoked int32
	Conflicts      int32
	NotFounds      int32
	Errors         int32
}

// Total is the number of calls that ran.
func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.AlreadyRevoked + r.Conflicts + r.NotFounds + r.Errors
}

func (r *ConcurrentResult) record(err error) {
	switch {
	case err == nil:
		r.Successes++
	case errors.Is(err, sentinel.ErrAlreadyRevoked):
		r.AlreadyRevoked++
	case errors.Is(err, sentinel.ErrConflict):
		r.Conflicts++
	case errors.Is(err, sentinel.ErrNotFound):
		r.NotFounds++
	default:
		r.Errors++
	}
}

// RunConcurrent releases n goroutines at once against fn and tallies their
// outcomes by sentinel error.
func RunConcurrent(n int, fn func(idx int) error) *ConcurrentResult {
	outcomes := make(chan error, n)
	gate := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(n)
	for i := range n {
		go func() {
			defer wg.Done()
			<-gate
			outcomes <- fn(i)
		}()
	}
	close(gate)
	wg.Wait()
	close(outcomes)

	res := &ConcurrentResult{}
	for err := range outcomes {
		res.record(err)
	}
	return res
}
