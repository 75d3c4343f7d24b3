package viewstate

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "viewstate")

// Field identifies one independently-sequenced part of the state.
type Field int

const (
	FieldEngine Field = iota
	FieldPositions
	FieldCapital
	FieldPnL
	FieldLogs
	FieldTrades
	FieldControlStatus
	FieldConnectivity
	FieldHistory
	numFields
)

func (f Field) String() string {
	switch f {
	case FieldEngine:
		return "engine"
	case FieldPositions:
		return "positions"
	case FieldCapital:
		return "capital"
	case FieldPnL:
		return "pnl"
	case FieldLogs:
		return "logs"
	case FieldTrades:
		return "trades"
	case FieldControlStatus:
		return "control_status"
	case FieldConnectivity:
		return "connectivity"
	case FieldHistory:
		return "history"
	}
	return "unknown"
}

// Patch carries the results of one poll cycle (or one out-of-band fetch).
// A nil field means "no fresh value": the store keeps what it had.
type Patch struct {
	Engine        *EngineStatus
	Positions     *[]Position
	Capital       *Capital
	PnL           *PnL
	Logs          *[]string
	Trades        *[]Trade
	ControlStatus *CommandState
	Connectivity  *Connectivity
	History       *History
}

// Empty reports whether the patch carries nothing.
func (p Patch) Empty() bool {
	return p.Engine == nil && p.Positions == nil && p.Capital == nil && p.PnL == nil &&
		p.Logs == nil && p.Trades == nil && p.ControlStatus == nil && p.Connectivity == nil && p.History == nil
}

// Store is the mutex-guarded state container.
//
// Every publisher takes a sequence number with Begin before it starts its
// network calls and hands it back to Publish. Each field remembers the
// sequence that last wrote it and only accepts strictly newer ones, so a slow
// request that was dispatched earlier can never overwrite a fresher result.
type Store struct {
	seq atomic.Uint64

	mu       sync.Mutex
	state    State
	fieldSeq [numFields]uint64
	discards uint64
	onStale  func(Field)

	subs    map[int]chan State
	nextSub int
}

func New() *Store {
	return &Store{
		state: initialState(),
		subs:  make(map[int]chan State),
	}
}

// Begin reserves the next publish sequence.
func (s *Store) Begin() uint64 {
	return s.seq.Add(1)
}

// OnStale registers a hook called (under the store lock) for every field
// discarded by the sequence guard.
func (s *Store) OnStale(fn func(Field)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStale = fn
}

// accept is called with s.mu held.
func (s *Store) accept(f Field, seq uint64) bool {
	if seq <= s.fieldSeq[f] {
		s.discards++
		if s.onStale != nil {
			s.onStale(f)
		}
		log.Debugf("discard stale %s: seq=%d last=%d", f, seq, s.fieldSeq[f])
		return false
	}
	s.fieldSeq[f] = seq
	return true
}

// Publish applies every non-nil field of p whose sequence guard passes, all in
// one critical section. It returns the number of fields applied.
func (s *Store) Publish(seq uint64, p Patch) int {
	if p.Empty() {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	applied := 0
	if p.Engine != nil && s.accept(FieldEngine, seq) {
		e := *p.Engine
		s.state.Engine = &e
		applied++
	}
	if p.Positions != nil && s.accept(FieldPositions, seq) {
		s.state.Positions = append([]Position(nil), (*p.Positions)...)
		applied++
	}
	if p.Capital != nil && s.accept(FieldCapital, seq) {
		s.state.Capital = *p.Capital
		applied++
	}
	if p.PnL != nil && s.accept(FieldPnL, seq) {
		s.state.PnL = *p.PnL
		applied++
	}
	if p.Logs != nil && s.accept(FieldLogs, seq) {
		s.state.Logs = append([]string(nil), (*p.Logs)...)
		applied++
	}
	if p.Trades != nil && s.accept(FieldTrades, seq) {
		s.state.Trades = append([]Trade(nil), (*p.Trades)...)
		applied++
	}
	if p.ControlStatus != nil && s.accept(FieldControlStatus, seq) {
		s.state.ControlStatus = *p.ControlStatus
		applied++
	}
	if p.Connectivity != nil && s.accept(FieldConnectivity, seq) {
		s.state.Connectivity = *p.Connectivity
		applied++
	}
	if p.History != nil && s.accept(FieldHistory, seq) {
		h := *p.History
		h.Points = append([]HistoryPoint(nil), h.Points...)
		s.state.History = h
		applied++
	}
	if applied == 0 {
		return 0
	}
	if seq > s.state.Cycle {
		s.state.Cycle = seq
	}
	s.state.LastUpdated = time.Now()
	s.notifyLocked()
	return applied
}

// SetCommandState is the dispatcher's writer for the optimistic run state.
func (s *Store) SetCommandState(cs CommandState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.CommandState == cs {
		return
	}
	s.state.CommandState = cs
	s.notifyLocked()
}

// SetCommandError records (or, with "", clears) the last command failure.
func (s *Store) SetCommandError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.CommandError == msg {
		return
	}
	s.state.CommandError = msg
	s.notifyLocked()
}

// CommandState returns the dispatcher-owned run state.
func (s *Store) CommandState() CommandState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.CommandState
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Reset drops all data back to the initial state (used on logout). Sequence
// numbers keep increasing, so publishes begun before the reset stay stale.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = initialState()
	cur := s.seq.Load()
	for i := range s.fieldSeq {
		s.fieldSeq[i] = cur
	}
	s.notifyLocked()
}

// StaleDiscards counts fields rejected by the sequence guard.
func (s *Store) StaleDiscards() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discards
}

// Subscribe returns a channel that always holds the most recent snapshot
// (older undelivered snapshots are replaced) and a cancel func.
func (s *Store) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan State, 1)
	ch <- s.state.clone()
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
		})
	}
}

func (s *Store) notifyLocked() {
	if len(s.subs) == 0 {
		return
	}
	snap := s.state.clone()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
