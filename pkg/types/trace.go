package types

import "runtime"

// MaxStackFrames bounds the number of program counters kept per trace.
const MaxStackFrames = 32

// Trace records who performed an allocation or deallocation.
type Trace struct {
	ThreadID uint64
	Sequence uint64
	Depth    int
	PCs      [MaxStackFrames]uintptr
}

// Stack returns the captured program counters.
func (t *Trace) Stack() []uintptr {
	d := t.Depth
	if d < 0 {
		d = 0
	}
	if d > MaxStackFrames {
		d = MaxStackFrames
	}
	return t.PCs[:d]
}

// Frame is a symbolized program counter.
type Frame struct {
	PC       uintptr `json:"pc"`
	Function string  `json:"function,omitempty"`
	File     string  `json:"file,omitempty"`
	Line     int     `json:"line,omitempty"`
}

// Frames symbolizes the trace. It allocates and must not be called from a
// fault handler.
func (t *Trace) Frames() []Frame {
	pcs := t.Stack()
	if len(pcs) == 0 {
		return nil
	}
	out := make([]Frame, 0, len(pcs))
	frames := runtime.CallersFrames(pcs)
	for {
		f, more := frames.Next()
		out = append(out, Frame{PC: f.PC, Function: f.Function, File: f.File, Line: f.Line})
		if !more {
			break
		}
	}
	return out
}
