// Package pipeline fans pipeline stages out over a pool of workers and runs
// their command nodes through a runner.
package pipeline

import (
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// PipeLine represents a worker pool shared by the stages of a workflow
type PipeLine struct {
	numWorker     int
	dispatchCnt   int64
	dispatchLock  sync.RWMutex
	finishCnt     int64
	finishLock    sync.RWMutex
	signal        chan int
	quit          sync.Once
	debug         bool
	debugInterval time.Duration
}

func (p *PipeLine) schedule() {
	for {
		select {
		case <-p.signal:
			return
		case <-time.After(p.debugInterval):
		}

		p.dispatchLock.RLock()
		dispatchCnt := p.dispatchCnt
		p.dispatchLock.RUnlock()

		p.finishLock.RLock()
		finishCnt := p.finishCnt
		p.finishLock.RUnlock()

		logrus.WithFields(logrus.Fields{
			"dispatched": dispatchCnt,
			"finished":   finishCnt,
			"running":    dispatchCnt - finishCnt,
			"workers":    p.numWorker,
		}).Debug("pipeline status")
	}
}

// Init returns a PipeLine with numWorker workers. A non-positive numWorker
// uses one worker per CPU.
func Init(numWorker int, debug bool) *PipeLine {
	if numWorker < 1 {
		numWorker = runtime.NumCPU()
	}

	pl := PipeLine{
		numWorker:     numWorker,
		signal:        make(chan int),
		debug:         debug,
		debugInterval: 4 * time.Second,
	}

	if debug {
		go pl.schedule()
	}

	return &pl
}

// Workers returns the size of the pool
func (p *PipeLine) Workers() int {
	return p.numWorker
}

// Quit stops the scheduler
func (p *PipeLine) Quit() {
	p.quit.Do(func() { close(p.signal) })
}

// Map calls fn for every index in [0, n) on the workers and waits for all
// of them. Every failure is reported, joined in index order.
func (p *PipeLine) Map(n int, fn func(i int) error) error {
	if n <= 0 {
		return nil
	}

	order := make(chan int, n)
	for i := 0; i < n; i++ {
		order <- i
	}
	close(order)

	errs := make([]error, n)

	workers := p.numWorker
	if workers > n {
		workers = n
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range order {
				p.dispatchLock.Lock()
				p.dispatchCnt++
				p.dispatchLock.Unlock()

				errs[i] = fn(i)

				p.finishLock.Lock()
				p.finishCnt++
				p.finishLock.Unlock()
			}
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

// Counts returns how many jobs were dispatched and finished so far
func (p *PipeLine) Counts() (dispatched, finished int64) {
	p.dispatchLock.RLock()
	dispatched = p.dispatchCnt
	p.dispatchLock.RUnlock()

	p.finishLock.RLock()
	finished = p.finishCnt
	p.finishLock.RUnlock()

	return dispatched, finished
}
