package keyboard

import (
	"duskos/kernel/kfmt"
	"duskos/kernel/task"
)

// scancodeToASCII maps a small set of "make" scancodes (key press, not key
// release) from a US QWERTY set 1 layout to the printable character they
// produce. Only the subset exercised by the keyboard-flow scenario (spec §8
// scenario 5), the other lowercase letters and space are covered; anything
// else is reported as ok=false and silently skipped by Chars.
var scancodeToASCII = map[byte]byte{
	0x1E: 'a', 0x30: 'b', 0x2E: 'c', 0x20: 'd', 0x12: 'e',
	0x21: 'f', 0x22: 'g', 0x23: 'h', 0x17: 'i', 0x24: 'j',
	0x25: 'k', 0x26: 'l', 0x32: 'm', 0x31: 'n', 0x18: 'o',
	0x19: 'p', 0x10: 'q', 0x13: 'r', 0x1F: 's', 0x14: 't',
	0x16: 'u', 0x2F: 'v', 0x11: 'w', 0x2D: 'x', 0x15: 'y', 0x2C: 'z',
	0x39: ' ',
}

// Translate converts a single make scancode into the character it
// represents. ok is false for release codes (high bit set), unmapped keys,
// or anything outside the covered subset.
func Translate(scancode byte) (ch byte, ok bool) {
	if scancode&0x80 != 0 {
		return 0, false // key-release code, not a key-press
	}
	ch, ok = scancodeToASCII[scancode]
	return ch, ok
}

// Chars is a task.Future that repeatedly waits for the next scancode from s,
// translates it, and appends recognized characters to Out, stopping once
// Out has reached the requested length. It is the consumer half of spec §8
// scenario 5: "inject scancodes, observe the corresponding characters".
type Chars struct {
	Out    []byte
	want   int
	s      *Stream
	next   *Next
	active bool
}

// NewChars returns a Future that collects up to want translated characters
// from s.
func NewChars(s *Stream, want int) *Chars {
	return &Chars{s: s, want: want, Out: make([]byte, 0, want)}
}

// Poll implements task.Future.
func (c *Chars) Poll(w task.Waker) bool {
	for len(c.Out) < c.want {
		if !c.active {
			c.next = NextScancode(c.s)
			c.active = true
		}
		if !c.next.Poll(w) {
			return false
		}
		c.active = false
		if ch, ok := Translate(c.next.Result); ok {
			c.Out = append(c.Out, ch)
		}
	}
	return true
}

// Echo is a task.Future that never completes: it translates and prints
// every scancode the stream produces, forever. This is the task kmain
// spawns to keep the executor alive servicing the keyboard (spec control
// flow, §2: "executor loop runs until halt").
type Echo struct {
	s      *Stream
	next   *Next
	active bool
}

// NewEcho returns a Future that echoes every translated scancode from s to
// the early console.
func NewEcho(s *Stream) *Echo {
	return &Echo{s: s}
}

// Poll implements task.Future. It always returns false: Echo is only ever
// removed from the executor by a restart, never by completion.
func (e *Echo) Poll(w task.Waker) bool {
	for {
		if !e.active {
			e.next = NextScancode(e.s)
			e.active = true
		}
		if !e.next.Poll(w) {
			return false
		}
		e.active = false
		if ch, ok := Translate(e.next.Result); ok {
			kfmt.Printf("%s", string(ch))
		}
	}
}
