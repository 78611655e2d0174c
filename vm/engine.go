package vm

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("avmcore.vm")

// ErrEngineClosed is returned once Shutdown has started.
var ErrEngineClosed = errors.New("engine is shut down")

// Options tune an engine. A zero MaxRecursion or JITThreshold means the
// default.
type Options struct {
	MaxRecursion      int
	UseInterpreter    bool
	UseJIT            bool
	JITThreshold      int64
	ReusableFunctions bool
	MemoryAccounting  bool
}

// DefaultOptions returns the options an engine runs with when nothing is
// configured.
func DefaultOptions() Options {
	return Options{
		MaxRecursion:      1000,
		UseInterpreter:    true,
		UseJIT:            false,
		JITThreshold:      1000,
		ReusableFunctions: true,
		MemoryAccounting:  false,
	}
}

// Collaborators are the subsystems outside this core that it calls into.
// Any of them may be nil; the corresponding feature is then unavailable.
type Collaborators struct {
	Interpreter Interpreter
	Legacy      LegacyExecutor
	LegacyHost  LegacyHost
	Compiler    Compiler
	Memory      MemorySink
}

// Engine is the process-scoped context: interned names and namespaces,
// the class table, templates and builtin classes, shared by every worker.
// It is created once and passed explicitly to whatever needs it.
type Engine struct {
	opts Options

	Names      *NameTable
	Namespaces *NamespaceTable
	Classes    *ClassTable

	templatesMu sync.RWMutex
	templates   map[QName]*Template

	Interpreter Interpreter
	Legacy      LegacyExecutor
	LegacyHost  LegacyHost
	Compiler    Compiler
	Memory      MemorySink

	// Builtin classes.
	ObjectClass   *Class
	ClassClass    *Class // root metaclass
	FunctionClass *Class
	NumberClass   *Class
	IntClass      *Class
	UintClass     *Class
	StringClass   *Class
	BooleanClass  *Class

	names struct {
		this, arguments, super, length NameID
		prototype, constructor         NameID
	}

	jit *jitInstaller

	workersMu sync.Mutex
	workers   map[uuid.UUID]*Worker

	closing atomic.Bool
}

// NewEngine creates an engine and its builtin classes.
func NewEngine(opts Options, collab Collaborators) *Engine {
	def := DefaultOptions()
	if opts.MaxRecursion <= 0 {
		opts.MaxRecursion = def.MaxRecursion
	}
	if opts.JITThreshold <= 0 {
		opts.JITThreshold = def.JITThreshold
	}
	e := &Engine{
		opts:        opts,
		Names:       NewNameTable(),
		Namespaces:  NewNamespaceTable(),
		Classes:     NewClassTable(),
		templates:   make(map[QName]*Template),
		Interpreter: collab.Interpreter,
		Legacy:      collab.Legacy,
		LegacyHost:  collab.LegacyHost,
		Compiler:    collab.Compiler,
		Memory:      collab.Memory,
		workers:     make(map[uuid.UUID]*Worker),
	}
	e.bootstrap()
	if opts.UseJIT && e.Compiler != nil {
		e.jit = newJIT(e.Compiler, opts.JITThreshold)
	}
	log.Debugf("engine started: %d builtin classes", e.Classes.Len())
	return e
}

// Options returns the engine's options.
func (e *Engine) Options() Options { return e.opts }

// Public interns a public qualified name.
func (e *Engine) Public(name string) QName {
	return QName{Name: e.Names.Intern(name), NS: PublicNS}
}

// PublicName interns a public multiname.
func (e *Engine) PublicName(name string) Multiname {
	return PublicName(e.Names.Intern(name))
}

// Package interns a package namespace.
func (e *Engine) Package(uri string) NamespaceID {
	return e.Namespaces.Intern(Namespace{Kind: NSPackage, URI: e.Names.Intern(uri)})
}

// QualifiedName renders q as "uri::name", or just the name in the public
// namespace.
func (e *Engine) QualifiedName(q QName) string {
	local := e.Names.Name(q.Name)
	ns, ok := e.Namespaces.Get(q.NS)
	if !ok || ns.URI == EmptyName {
		return local
	}
	return e.Names.Name(ns.URI) + "::" + local
}

func (e *Engine) noteInterpreted(mi *MethodInfo) {
	n := mi.calls.Add(1)
	if e.jit != nil {
		e.jit.noteCall(mi, n)
	}
}

// Workers returns the running workers.
func (e *Engine) Workers() []*Worker {
	e.workersMu.Lock()
	defer e.workersMu.Unlock()
	out := make([]*Worker, 0, len(e.workers))
	for _, w := range e.workers {
		out = append(out, w)
	}
	return out
}

func (e *Engine) removeWorker(w *Worker) bool {
	e.workersMu.Lock()
	defer e.workersMu.Unlock()
	if _, ok := e.workers[w.ID]; !ok {
		return false
	}
	delete(e.workers, w.ID)
	return true
}

// Shutdown closes every worker, stops the JIT and tears the class graph
// down. The root metaclass's reference to itself is dropped before any
// class is finalized. Problems found on the way are collected into one
// error.
func (e *Engine) Shutdown() error {
	if !e.closing.CompareAndSwap(false, true) {
		return ErrEngineClosed
	}
	var result *multierror.Error

	e.workersMu.Lock()
	workers := make([]*Worker, 0, len(e.workers))
	for _, w := range e.workers {
		workers = append(workers, w)
	}
	e.workers = make(map[uuid.UUID]*Worker)
	e.workersMu.Unlock()

	for _, w := range workers {
		if err := w.close(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if e.jit != nil {
		e.jit.stop()
	}

	if cc := e.ClassClass; cc != nil {
		cc.meta = nil
	}
	classes := e.Classes.All()
	for i := len(classes) - 1; i >= 0; i-- {
		c := classes[i]
		if n := c.Memory.Bytes(); n != 0 {
			result = multierror.Append(result, fmt.Errorf("class %s: %d bytes still accounted", c.Name(), n))
		}
		c.finalize()
	}

	log.Infof("engine shut down: %d workers, %d classes", len(workers), len(classes))
	return result.ErrorOrNil()
}
