package looper

import "fmt"

type State uint8

const (
	Unstarted State = iota
	Running
	Finished
)

func (s State) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case Running:
		return "running"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Cursor is what a Loop drives. Initialize prepares a pass and returns the
// first position. Advance processes exactly one logical row at pos and
// reports whether there was one.
type Cursor interface {
	Initialize() (start int64, err error)
	Advance(pos int64) (bool, error)
}

// Loop is the Unstarted -> Running -> Finished state machine around a
// Cursor.
type Loop struct {
	cur   Cursor
	state State
	pos   int64
	err   error
}

func NewLoop(cur Cursor) *Loop {
	return &Loop{cur: cur}
}

// Start (re)initializes the cursor and enters Running. Starting a finished
// loop begins a new pass.
func (l *Loop) Start() error {
	start, err := l.cur.Initialize()
	if err != nil {
		l.state, l.err = Finished, err
		return err
	}
	l.state, l.pos, l.err = Running, start, nil
	return nil
}

// Run advances one row. It returns false once the cursor is exhausted and
// keeps returning false, with the error that ended the loop if any.
func (l *Loop) Run() (bool, error) {
	switch l.state {
	case Unstarted:
		return false, ErrNotInitialized
	case Finished:
		return false, l.err
	}
	ok, err := l.cur.Advance(l.pos)
	if err != nil {
		l.state, l.err = Finished, err
		return false, err
	}
	if !ok {
		l.state = Finished
		return false, nil
	}
	l.pos++
	return true, nil
}

func (l *Loop) State() State    { return l.state }
func (l *Loop) Position() int64 { return l.pos }
func (l *Loop) Err() error      { return l.err }
