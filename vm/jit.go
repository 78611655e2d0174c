package vm

import (
	"sync"
	"sync/atomic"
	"time"
)

// Compiler turns a method into native code. It runs on the JIT goroutine
// and must not touch any worker heap.
type Compiler interface {
	Compile(mi *MethodInfo) (CompiledFunc, error)
}

// jitInstaller compiles hot methods in the background and installs the
// result on the MethodInfo. Every closure of the method picks the code up
// on its next call; no callable changes identity.
type jitInstaller struct {
	compiler  Compiler
	threshold int64

	// Compilation queue for background processing
	pending chan *MethodInfo
	done    chan struct{}
	wg      sync.WaitGroup

	mu     sync.Mutex
	queued map[*MethodInfo]bool // queued or compiled, never requeued

	// Statistics
	installed       atomic.Uint64
	failed          atomic.Uint64
	dropped         atomic.Uint64
	compilationTime atomic.Uint64 // nanoseconds
}

// JITStats reports background compilation counters.
type JITStats struct {
	Installed       uint64
	Failed          uint64
	Dropped         uint64
	CompilationTime time.Duration
}

func newJIT(c Compiler, threshold int64) *jitInstaller {
	jit := &jitInstaller{
		compiler:  c,
		threshold: threshold,
		pending:   make(chan *MethodInfo, 100),
		done:      make(chan struct{}),
		queued:    make(map[*MethodInfo]bool),
	}
	jit.wg.Add(1)
	go jit.compilationWorker()
	return jit
}

// noteCall queues mi once its interpreted call count reaches the
// threshold.
func (jit *jitInstaller) noteCall(mi *MethodInfo, calls int64) {
	if calls < jit.threshold || mi.Code() != nil {
		return
	}
	jit.mu.Lock()
	if jit.queued[mi] {
		jit.mu.Unlock()
		return
	}
	jit.queued[mi] = true
	jit.mu.Unlock()

	select {
	case jit.pending <- mi:
	default:
		// Queue full; let a later call try again.
		jit.mu.Lock()
		delete(jit.queued, mi)
		jit.mu.Unlock()
		jit.dropped.Add(1)
	}
}

func (jit *jitInstaller) compilationWorker() {
	defer jit.wg.Done()
	for {
		select {
		case mi := <-jit.pending:
			jit.compile(mi)
		case <-jit.done:
			return
		}
	}
}

func (jit *jitInstaller) compile(mi *MethodInfo) {
	start := time.Now()
	fn, err := jit.compiler.Compile(mi)
	jit.compilationTime.Add(uint64(time.Since(start)))
	if err != nil {
		jit.failed.Add(1)
		log.Warningf("JIT: compiling %s: %v", mi.Name, err)
		return
	}
	if fn == nil || !mi.Install(fn) {
		return
	}
	jit.installed.Add(1)
	log.Debugf("JIT: installed %s after %d interpreted calls", mi.Name, mi.Calls())
}

func (jit *jitInstaller) stop() {
	close(jit.done)
	jit.wg.Wait()
}

func (jit *jitInstaller) stats() JITStats {
	return JITStats{
		Installed:       jit.installed.Load(),
		Failed:          jit.failed.Load(),
		Dropped:         jit.dropped.Load(),
		CompilationTime: time.Duration(jit.compilationTime.Load()),
	}
}

// JITStats returns the background compiler's counters; all zero when the
// JIT is disabled.
func (e *Engine) JITStats() JITStats {
	if e.jit == nil {
		return JITStats{}
	}
	return e.jit.stats()
}
