package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// -----------------------------------------------------------------------------
// Diagnostic report
// -----------------------------------------------------------------------------
//
// A Report is what the diagnoser hands to crash-reporting infrastructure for
// one faulting address. It is filled in without allocating; the Format*
// helpers below render it once the fault handler is done.

// ErrorType classifies a memory-safety violation.
type ErrorType uint8

const (
	ErrUnknown          ErrorType = iota // inside the region but matches no rule
	ErrBufferOverflow                    // guard or inaccessible page past the allocation
	ErrBufferUnderflow                   // guard or inaccessible page before the allocation
	ErrUseAfterFree                      // data page of a quarantined slot
	ErrPaddingOverflow                   // accessible padding past the requested size
	ErrPaddingUnderflow                  // accessible padding before the allocation start
	ErrDoubleFree                        // free of a slot that is not allocated
	ErrInvalidFree                       // free of an address that is not an allocation start
)

var errorTypeNames = [...]string{
	ErrUnknown:          "unknown",
	ErrBufferOverflow:   "buffer-overflow",
	ErrBufferUnderflow:  "buffer-underflow",
	ErrUseAfterFree:     "use-after-free",
	ErrPaddingOverflow:  "padding-overflow",
	ErrPaddingUnderflow: "padding-underflow",
	ErrDoubleFree:       "double-free",
	ErrInvalidFree:      "invalid-free",
}

func (e ErrorType) String() string {
	if int(e) < len(errorTypeNames) {
		return errorTypeNames[e]
	}
	return fmt.Sprintf("ErrorType(%d)", uint8(e))
}

// MarshalText implements encoding.TextMarshaler.
func (e ErrorType) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// Report describes one diagnosed fault.
type Report struct {
	Type      ErrorType
	FaultAddr uintptr

	// Slot is the slot the fault was attributed to, or -1.
	Slot      int
	SlotState SlotState

	AllocAddr     uintptr
	RequestedSize uintptr
	AllocatedSize uintptr
	Placement     Placement

	// Offset is FaultAddr - AllocAddr.
	Offset int64

	Alloc       Trace
	Dealloc     Trace
	Deallocated bool

	// Consistent is false when the slot metadata changed while it was being
	// read; the report is then best-effort.
	Consistent bool
}

// Describe returns a one-line summary such as
// "buffer-overflow 0 bytes to the right of 4,096-byte allocation at 0x7f0000001000".
func (r *Report) Describe() string {
	p := message.NewPrinter(language.English)
	if r.Slot < 0 {
		return fmt.Sprintf("%s at %#x", r.Type, r.FaultAddr)
	}
	var where string
	switch {
	case r.Offset < 0:
		where = p.Sprintf("%d bytes to the left of", -r.Offset)
	case uintptr(r.Offset) >= r.RequestedSize:
		where = p.Sprintf("%d bytes to the right of", uintptr(r.Offset)-r.RequestedSize)
	default:
		where = p.Sprintf("%d bytes inside", r.Offset)
	}
	return fmt.Sprintf("%s %s %s-byte allocation at %#x", r.Type, where, p.Sprintf("%d", r.RequestedSize), r.AllocAddr)
}

// FormatText renders a human-readable report with symbolized stacks.
func (r *Report) FormatText() string {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	fmt.Fprintf(&b, "gwp: %s on address %#x\n", r.Type, r.FaultAddr)
	fmt.Fprintf(&b, "  %s\n", r.Describe())
	if r.Slot >= 0 {
		b.WriteString(p.Sprintf("  slot %d (%s), %d bytes mapped, placement %s\n",
			r.Slot, r.SlotState, r.AllocatedSize, r.Placement))
	}
	if !r.Consistent {
		b.WriteString("  warning: metadata changed while reading; report is best-effort\n")
	}
	if r.Slot >= 0 {
		writeTrace(&b, "allocated", &r.Alloc)
		if r.Deallocated {
			writeTrace(&b, "freed", &r.Dealloc)
		}
	}
	return b.String()
}

func writeTrace(b *strings.Builder, verb string, t *Trace) {
	fmt.Fprintf(b, "  %s by thread %d (seq %d):\n", verb, t.ThreadID, t.Sequence)
	frames := t.Frames()
	if len(frames) == 0 {
		b.WriteString("    <no stack>\n")
		return
	}
	for i, f := range frames {
		if f.Function == "" {
			fmt.Fprintf(b, "    #%d %#x\n", i, f.PC)
			continue
		}
		fmt.Fprintf(b, "    #%d %#x %s %s:%d\n", i, f.PC, f.Function, f.File, f.Line)
	}
}

type jsonTrace struct {
	ThreadID uint64  `json:"thread_id"`
	Sequence uint64  `json:"sequence"`
	Frames   []Frame `json:"frames"`
}

type jsonReport struct {
	Type          ErrorType  `json:"type"`
	Summary       string     `json:"summary"`
	FaultAddr     string     `json:"fault_addr"`
	Slot          int        `json:"slot"`
	SlotState     SlotState  `json:"slot_state"`
	AllocAddr     string     `json:"alloc_addr,omitempty"`
	RequestedSize uintptr    `json:"requested_size"`
	AllocatedSize uintptr    `json:"allocated_size"`
	Placement     Placement  `json:"placement"`
	Offset        int64      `json:"offset"`
	Consistent    bool       `json:"consistent"`
	Alloc         *jsonTrace `json:"alloc,omitempty"`
	Dealloc       *jsonTrace `json:"dealloc,omitempty"`
}

func toJSONTrace(t *Trace) *jsonTrace {
	return &jsonTrace{ThreadID: t.ThreadID, Sequence: t.Sequence, Frames: t.Frames()}
}

// MarshalJSON renders addresses as hex strings and stacks as symbolized frames.
func (r Report) MarshalJSON() ([]byte, error) {
	jr := jsonReport{
		Type:          r.Type,
		Summary:       r.Describe(),
		FaultAddr:     fmt.Sprintf("%#x", r.FaultAddr),
		Slot:          r.Slot,
		SlotState:     r.SlotState,
		RequestedSize: r.RequestedSize,
		AllocatedSize: r.AllocatedSize,
		Placement:     r.Placement,
		Offset:        r.Offset,
		Consistent:    r.Consistent,
	}
	if r.Slot >= 0 {
		jr.AllocAddr = fmt.Sprintf("%#x", r.AllocAddr)
		jr.Alloc = toJSONTrace(&r.Alloc)
		if r.Deallocated {
			jr.Dealloc = toJSONTrace(&r.Dealloc)
		}
	}
	return json.Marshal(jr)
}

// FormatJSON returns the report as indented JSON.
func (r *Report) FormatJSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
