// Package agent provides the runtime side of instrumentation: it hands
// probe arrays to instrumented classes and collects them into exec files.
package agent

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/probecov/data"
	"github.com/chazu/probecov/instr"
	"github.com/chazu/probecov/tools"
	"github.com/chazu/probecov/vm"
)

var log = commonlog.GetLogger("probecov.agent")

// Runtime owns the execution data of a running program. Probe arrays are
// handed out once per class and written to without locking; Collect takes
// a snapshot of them.
type Runtime struct {
	mu        sync.Mutex
	store     *data.ExecutionDataStore
	sessionID string
	start     time.Time

	// Now returns the current time. Tests replace it.
	Now func() time.Time
}

// NewRuntime creates a runtime for sessionID, or for DefaultSessionID()
// when sessionID is empty.
func NewRuntime(sessionID string) *Runtime {
	if sessionID == "" {
		sessionID = DefaultSessionID()
	}
	return &Runtime{
		store:     data.NewExecutionDataStore(),
		sessionID: sessionID,
		start:     time.Now(),
		Now:       time.Now,
	}
}

// DefaultSessionID returns "<hostname>-<random hex>".
func DefaultSessionID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknownhost"
	}
	id := uuid.New()
	return fmt.Sprintf("%s-%x", host, id[:4])
}

// SessionID returns the current session id.
func (r *Runtime) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// SetSessionID changes the id reported for the current session.
func (r *Runtime) SetSessionID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID = id
}

// Probes returns the live probe array of a class, creating it on first
// use. Later calls for the same id must agree on name and probe count.
func (r *Runtime) Probes(id uint64, name string, probeCount int) ([]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, err := r.store.GetOrCreate(id, name, probeCount)
	if err != nil {
		return nil, err
	}
	return d.Probes, nil
}

// Collect reports the session and a copy of every probe array to the
// visitors. With reset the probes are cleared and a new session starts.
func (r *Runtime) Collect(executions data.ExecutionDataVisitor, sessions data.SessionInfoVisitor, reset bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.Now()
	info, err := data.NewSessionInfo(r.sessionID, r.start.UnixMilli(), now.UnixMilli())
	if err != nil {
		return err
	}
	if err := sessions.VisitSessionInfo(info); err != nil {
		return err
	}
	for _, d := range r.store.Contents() {
		snapshot := data.NewExecutionData(d.ID, d.Name, len(d.Probes))
		copy(snapshot.Probes, d.Probes)
		if err := executions.VisitClassExecution(snapshot); err != nil {
			return err
		}
	}
	if reset {
		r.resetLocked(now)
	}
	return nil
}

// Reset clears every probe and starts a new session.
func (r *Runtime) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked(r.Now())
}

func (r *Runtime) resetLocked(now time.Time) {
	r.store.Reset()
	r.start = now
}

// Dump collects into the exec file at path.
func (r *Runtime) Dump(path string, doAppend, reset bool) error {
	loader := tools.NewExecFileLoader()
	if err := r.Collect(loader.Executions, loader.Sessions, reset); err != nil {
		return err
	}
	if err := loader.SaveFile(path, doAppend); err != nil {
		return err
	}
	log.Infof("dumped %d classes for session %s", loader.Executions.Len(), r.SessionID())
	return nil
}

// Bind registers the probe provider with m, so that instrumented classes
// loaded into m record into r.
func (r *Runtime) Bind(m *vm.Machine) {
	m.RegisterNative(instr.RuntimeOwner, instr.RuntimeMethod, instr.RuntimeDesc, r.native)
}

func (r *Runtime) native(args []vm.Value) (vm.Value, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("agent: probes: want 3 arguments, got %d", len(args))
	}
	id, ok1 := args[0].(int64)
	name, ok2 := args[1].(string)
	count, ok3 := args[2].(int32)
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("agent: probes: bad arguments %T, %T, %T", args[0], args[1], args[2])
	}
	probes, err := r.Probes(uint64(id), name, int(count))
	if err != nil {
		return nil, err
	}
	return &vm.BoolArray{Elems: probes}, nil
}
