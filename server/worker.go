package server

import (
	"fmt"

	"github.com/chazu/trashdsl/vm"
)

// workRequest represents a unit of analysis to run on the worker goroutine.
type workRequest struct {
	fn   func(*vm.Environment) any
	done chan workResult
}

// workResult holds the return value of an analysis.
type workResult struct {
	value any
	err   error
}

// Worker serializes compilation through a single goroutine. Each request
// gets a fresh Environment prepared by the setup function, so documents
// never see each other's code blocks.
type Worker struct {
	setup    func(*vm.Environment)
	requests chan workRequest
	quit     chan struct{}
}

// NewWorker creates a Worker and starts the processing goroutine. setup
// registers natives and constants; it may be nil.
func NewWorker(setup func(*vm.Environment)) *Worker {
	w := &Worker{
		setup:    setup,
		requests: make(chan workRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine.
func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs fn against a fresh environment, recovering from panics.
func (w *Worker) execute(fn func(*vm.Environment) any) workResult {
	var result workResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				result.err = fmt.Errorf("%v", r)
			}
		}()
		result.value = fn(w.NewEnvironment())
	}()
	return result
}

// NewEnvironment returns an Environment prepared by the setup function.
func (w *Worker) NewEnvironment() *vm.Environment {
	env := vm.NewEnvironment()
	if w.setup != nil {
		w.setup(env)
	}
	return env
}

// Do submits fn for execution on the worker goroutine and blocks until it
// completes. Returns the result and any error (including panics).
func (w *Worker) Do(fn func(*vm.Environment) any) (any, error) {
	req := workRequest{
		fn:   fn,
		done: make(chan workResult, 1),
	}
	w.requests <- req
	result := <-req.done
	return result.value, result.err
}

// Stop shuts down the worker goroutine.
func (w *Worker) Stop() {
	close(w.quit)
}
