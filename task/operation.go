// Package task implements the participant lifecycle of a traffic flow test:
// the operation state machine that owns worker goroutines, the shared task
// skeleton driven through fixed lifecycle phases, and the server, client and
// plugin roles built on top of it.
package task

import (
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/trafficflow/tft/exitcodes"
	"github.com/trafficflow/tft/types"
)

// osExit is swappable so state-machine tests do not take the process down.
var osExit = os.Exit

type operationState int

const (
	stateNew operationState = iota
	stateStarting
	stateRunning
	stateStopping
	stateStopped
)

func (s operationState) String() string {
	switch s {
	case stateNew:
		return "NEW"
	case stateStarting:
		return "STARTING"
	case stateRunning:
		return "RUNNING"
	case stateStopping:
		return "STOPPING"
	case stateStopped:
		return "STOPPED"
	}
	return fmt.Sprintf("operationState(%d)", int(s))
}

// TaskOperation is one unit of background work owned by a task: at most one
// worker goroutine, plus the bookkeeping to start it, wait for its side effect
// to become observable, and join it with a bounded timeout. Operations move
// strictly forward through their lifecycle; calling Start or Finish out of
// order is a programming error and panics.
type TaskOperation interface {
	LogName() string

	// Start spawns the worker goroutine (if a thread action is configured)
	// and blocks through the ready action. When Start returns, the
	// operation's side effect is observable.
	Start()

	// Finish joins the worker within timeout and returns the final Output.
	// Without a cancel action the join simply waits; with one, a worker that
	// has not finished yet is canceled and given timeout again to come down.
	// A worker still alive after that is unrecoverable and Finish returns an
	// error. Finish may be called at most once.
	Finish(timeout time.Duration) (types.Output, error)
}

// Actions configures the behavior slots of an operation. At least one of
// Thread and Collect must be set, and Cancel requires Thread.
type Actions[T any] struct {
	// Thread runs on the worker goroutine and produces the intermediate
	// result.
	Thread func() T

	// Collect converts the intermediate result into the final Output after
	// the worker has been joined. It runs on the caller of Finish. When nil,
	// the intermediate result itself must implement types.Output.
	Collect func(T) types.Output

	// Cancel interrupts a thread action that will not finish on its own,
	// typically by killing the process it supervises.
	Cancel func()

	// WaitReady blocks until the operation's side effect is observable.
	WaitReady func()
}

type operation[T any] struct {
	logName string
	log     *zap.SugaredLogger
	actions Actions[T]

	mu        sync.Mutex
	state     operationState
	result    T
	resultSet bool

	// done closes once the thread action has stored its result.
	done chan struct{}
}

// NewOperation validates the action combination and returns the operation in
// state NEW. It does not start anything.
func NewOperation[T any](logName string, log *zap.SugaredLogger, a Actions[T]) (TaskOperation, error) {
	if a.Thread == nil && a.Collect == nil {
		return nil, errors.Errorf("operation %s: needs a thread action or a collect action", logName)
	}
	if a.Cancel != nil && a.Thread == nil {
		return nil, errors.Errorf("operation %s: cancel action requires a thread action", logName)
	}
	return &operation[T]{
		logName: logName,
		log:     log,
		actions: a,
		done:    make(chan struct{}),
	}, nil
}

func (o *operation[T]) LogName() string {
	return o.logName
}

func (o *operation[T]) Start() {
	o.mu.Lock()
	if o.state != stateNew {
		s := o.state
		o.mu.Unlock()
		panic(fmt.Sprintf("operation %s: Start called in state %s", o.logName, s))
	}
	o.state = stateStarting
	o.mu.Unlock()

	if o.actions.Thread != nil {
		go o.runThread()
	}
	if o.actions.WaitReady != nil {
		o.actions.WaitReady()
	}

	// Finish may have raced past us while WaitReady blocked. Its transition
	// wins; the readiness result is stale and must not move the state back.
	o.mu.Lock()
	if o.state == stateStarting {
		o.state = stateRunning
	}
	o.mu.Unlock()
}

func (o *operation[T]) runThread() {
	defer func() {
		if r := recover(); r != nil {
			// A dead worker can never post its result, and every peer of
			// this test case would hang on the barrier waiting for it.
			// Taking the whole process down is the only clean exit.
			o.log.Errorw("Thread action panicked, aborting run",
				"operation", o.logName, "panic", r, "stack", string(debug.Stack()))
			osExit(exitcodes.RuntimeErr)
		}
	}()

	res := o.actions.Thread()

	o.mu.Lock()
	if o.resultSet {
		o.mu.Unlock()
		panic(fmt.Sprintf("operation %s: thread result already set", o.logName))
	}
	o.result = res
	o.resultSet = true
	o.mu.Unlock()
	close(o.done)
}

func (o *operation[T]) Finish(timeout time.Duration) (types.Output, error) {
	hasThread := o.actions.Thread != nil

	o.mu.Lock()
	switch o.state {
	case stateStarting, stateRunning:
	default:
		s := o.state
		o.mu.Unlock()
		panic(fmt.Sprintf("operation %s: Finish called in state %s", o.logName, s))
	}
	if hasThread {
		o.state = stateStopping
	} else {
		o.state = stateStopped
	}
	o.mu.Unlock()

	var res T
	if hasThread {
		if err := o.join(timeout); err != nil {
			return nil, err
		}
		o.mu.Lock()
		o.state = stateStopped
		res = o.result
		o.mu.Unlock()
	}

	if o.actions.Collect != nil {
		return o.actions.Collect(res), nil
	}
	out, ok := any(res).(types.Output)
	if !ok {
		panic(fmt.Sprintf("operation %s: thread result %T does not implement Output", o.logName, res))
	}
	return out, nil
}

// join waits for the worker to post its result. The zero-timeout probe comes
// first so a worker that already finished never pays for a cancel.
func (o *operation[T]) join(timeout time.Duration) error {
	if o.waitDone(0) {
		return nil
	}
	if o.actions.Cancel == nil {
		if o.waitDone(timeout) {
			return nil
		}
		return errors.Errorf("operation %s did not terminate within %v", o.logName, timeout)
	}

	o.log.Debugw("Canceling operation", "operation", o.logName)
	o.actions.Cancel()
	if o.waitDone(timeout) {
		return nil
	}
	return errors.Errorf("operation %s still alive %v after cancel", o.logName, timeout)
}

func (o *operation[T]) waitDone(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-o.done:
			return true
		default:
			return false
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-o.done:
		return true
	case <-t.C:
		return false
	}
}
