// Package session implements the per-room state machine for one two-player game.
//
//	matched → ready → countdown → (activity) → submit → reveal
//	                                                      ├─ single round: rematch-pending → matched
//	                                                      └─ series: next-round-pending → countdown …
//
// A Room performs no I/O and owns no goroutines. Callers pass the current time
// into every transition and hand it cancellable timers; the Room cancels those
// timers itself on any transition that makes them moot.
package session

import (
	"errors"
	"math"
	"time"
)

var (
	ErrInvalidState      = errors.New("action not allowed in the current session state")
	ErrPremature         = errors.New("result submitted before the activity started")
	ErrArtifactTooLarge  = errors.New("artifact exceeds the size limit")
	ErrNoRematchRequest  = errors.New("no pending rematch request from the opponent")
	ErrUnknownConnection = errors.New("connection does not occupy a slot in this session")
)

// State is the lifecycle state of a room
type State string

const (
	StateMatched          State = "matched"
	StateReady            State = "ready"
	StateCountdown        State = "countdown"
	StateActivity         State = "activity" // derived from countdown once the start time has passed
	StateSubmit           State = "submit"
	StateReveal           State = "reveal"
	StateRematchPending   State = "rematch-pending"
	StateNextRoundPending State = "next-round-pending"
	StateClosed           State = "closed"
)

// Mode is single-round or best-of-3 series
type Mode string

const (
	ModeSingle Mode = "single"
	ModeSeries Mode = "series"
)

// ParseMode maps a client preference to a Mode, defaulting to single
func ParseMode(s string) Mode {
	if Mode(s) == ModeSeries {
		return ModeSeries
	}
	return ModeSingle
}

// Negotiate returns series only when both sides asked for it
func Negotiate(a, b Mode) Mode {
	if a == ModeSeries && b == ModeSeries {
		return ModeSeries
	}
	return ModeSingle
}

// Canceler is a pending timer owned by the room
type Canceler interface {
	Cancel()
}

// Rules are the fixed timing and size constants of a round
type Rules struct {
	Preroll          time.Duration
	ActivityDuration time.Duration
	ResultDeadline   time.Duration
	MaxArtifactBytes int
	SeriesWins       int
	SeriesRounds     int
}

// DefaultRules returns the production timings
func DefaultRules() Rules {
	return Rules{
		Preroll:          3 * time.Second,
		ActivityDuration: 30 * time.Second,
		ResultDeadline:   90 * time.Second,
		MaxArtifactBytes: 2 << 20,
		SeriesWins:       2,
		SeriesRounds:     3,
	}
}

// MinScore and MaxScore bound a recorded score
const (
	MinScore = 0
	MaxScore = 100
)

// ClampScore forces a score into [MinScore, MaxScore]
func ClampScore(v float64) float64 {
	if math.IsNaN(v) || v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}

// Seat is what a player brings into a new room
type Seat struct {
	ConnID         string
	Name           string
	Mode           Mode
	ReferenceImage string
}

// Result is one slot's submission for the current round
type Result struct {
	Submitted bool
	Artifact  string
	Score     float64
	Forfeited bool
}

// Slot is one participant position
type Slot struct {
	ConnID         string
	Name           string
	Mode           Mode
	Ready          bool
	ReferenceImage string
	Result         Result
	SeriesScore    int

	grace Canceler
}

// Room is one session between two connections
type Room struct {
	ID             string
	CreatedAt      time.Time
	Mode           Mode
	State          State
	Round          int
	CountdownStart time.Time
	DeadlineAt     time.Time
	SeriesOver     bool
	SeriesWinner   int

	slots     [2]Slot
	rules     Rules
	rematchBy int
	deadline  Canceler
}

// New creates a room in the matched state. first is the initiator.
func New(id string, first, second Seat, rules Rules, now time.Time) *Room {
	r := &Room{
		ID:           id,
		CreatedAt:    now,
		Mode:         Negotiate(first.Mode, second.Mode),
		State:        StateMatched,
		Round:        1,
		SeriesWinner: -1,
		rules:        rules,
		rematchBy:    -1,
	}
	for i, s := range [2]Seat{first, second} {
		r.slots[i] = Slot{
			ConnID:         s.ConnID,
			Name:           s.Name,
			Mode:           s.Mode,
			ReferenceImage: s.ReferenceImage,
		}
	}
	return r
}

// Rules returns the constants this room runs with
func (r *Room) Rules() Rules {
	return r.rules
}

// Slot returns a copy of slot i
func (r *Room) Slot(i int) Slot {
	return r.slots[i]
}

// ConnID returns the handle currently occupying slot i
func (r *Room) ConnID(i int) string {
	return r.slots[i].ConnID
}

// SlotIndex finds the slot occupied by connID
func (r *Room) SlotIndex(connID string) (int, bool) {
	for i := range r.slots {
		if r.slots[i].ConnID == connID {
			return i, true
		}
	}
	return -1, false
}

// Opponent returns the other slot index
func Opponent(i int) int {
	return 1 - i
}

// CurrentState reports the state with activity derived from the clock
func (r *Room) CurrentState(now time.Time) State {
	if r.State == StateCountdown && !now.Before(r.CountdownStart) {
		return StateActivity
	}
	return r.State
}

// HasDeadline reports whether a result deadline timer is outstanding
func (r *Room) HasDeadline() bool {
	return r.deadline != nil
}

// HasGrace reports whether slot i has an outstanding disconnect grace timer
func (r *Room) HasGrace(i int) bool {
	return r.slots[i].grace != nil
}

// RematchRequester returns the slot that asked for a rematch, if any
func (r *Room) RematchRequester() (int, bool) {
	return r.rematchBy, r.rematchBy >= 0
}

// SetReady marks slot i ready. Signals outside matched/ready are ignored, which
// is how a late ready after the countdown was fixed is absorbed. started is true
// exactly once, when the second flag turns the room into countdown.
func (r *Room) SetReady(i int, now time.Time) (changed, started bool) {
	if r.State != StateMatched && r.State != StateReady {
		return false, false
	}
	return r.markReady(i, now, StateReady)
}

// NextRoundReady marks slot i ready for the next series round
func (r *Room) NextRoundReady(i int, now time.Time) (changed, started bool, err error) {
	if r.State != StateNextRoundPending {
		return false, false, ErrInvalidState
	}
	changed, started = r.markReady(i, now, StateNextRoundPending)
	return changed, started, nil
}

func (r *Room) markReady(i int, now time.Time, waiting State) (changed, started bool) {
	if r.slots[i].Ready {
		return false, false
	}
	r.slots[i].Ready = true
	if r.slots[0].Ready && r.slots[1].Ready {
		r.State = StateCountdown
		r.CountdownStart = now.Add(r.rules.Preroll)
		return true, true
	}
	r.State = waiting
	return true, false
}

// SetReferenceImage stores slot i's pre-activity artifact
func (r *Room) SetReferenceImage(i int, artifact string) error {
	if len(artifact) > r.rules.MaxArtifactBytes {
		return ErrArtifactTooLarge
	}
	if r.State == StateClosed {
		return ErrInvalidState
	}
	r.slots[i].ReferenceImage = artifact
	return nil
}

// SubmitOutcome describes the effect of a submission
type SubmitOutcome struct {
	Deadline      time.Time
	StartDeadline bool
	Reveal        *Outcome
}

// Submit records slot i's result. The first submission of a round moves the room
// to submit and asks the caller to arm the deadline; the second one reveals.
func (r *Room) Submit(i int, artifact string, score float64, now time.Time) (SubmitOutcome, error) {
	if len(artifact) > r.rules.MaxArtifactBytes {
		return SubmitOutcome{}, ErrArtifactTooLarge
	}
	if r.State != StateCountdown && r.State != StateSubmit {
		return SubmitOutcome{}, ErrInvalidState
	}
	if now.Before(r.CountdownStart) {
		return SubmitOutcome{}, ErrPremature
	}

	r.slots[i].Result = Result{Submitted: true, Artifact: artifact, Score: ClampScore(score)}

	var out SubmitOutcome
	if r.State == StateCountdown {
		r.State = StateSubmit
		r.DeadlineAt = now.Add(r.rules.ResultDeadline)
		out.StartDeadline = true
	}
	out.Deadline = r.DeadlineAt

	if r.slots[0].Result.Submitted && r.slots[1].Result.Submitted {
		out.StartDeadline = false
		out.Reveal = r.reveal()
	}
	return out, nil
}

// ArmDeadline attaches the result deadline timer, replacing any earlier one
func (r *Room) ArmDeadline(t Canceler) {
	if r.deadline != nil {
		r.deadline.Cancel()
	}
	r.deadline = t
}

// Forfeit records a zero result for every slot that has not submitted and
// reveals. It does nothing unless the room is waiting on submissions.
func (r *Room) Forfeit() (*Outcome, bool) {
	if r.State != StateSubmit {
		return nil, false
	}
	r.deadline = nil
	for i := range r.slots {
		if !r.slots[i].Result.Submitted {
			r.slots[i].Result = Result{Submitted: true, Score: MinScore, Forfeited: true}
		}
	}
	return r.reveal(), true
}

// SeriesStatus is the series part of an outcome
type SeriesStatus struct {
	Round  int
	Scores [2]int
	Over   bool
	Winner int
}

// Outcome is the result of one round. Winner is -1 on a tie.
type Outcome struct {
	Round   int
	ConnIDs [2]string
	Results [2]Result
	Winner  int
	Series  *SeriesStatus
}

func (r *Room) reveal() *Outcome {
	r.cancelDeadline()

	a, b := r.slots[0].Result.Score, r.slots[1].Result.Score
	winner := -1
	switch {
	case a > b:
		winner = 0
	case b > a:
		winner = 1
	}

	out := &Outcome{
		Round:   r.Round,
		ConnIDs: [2]string{r.slots[0].ConnID, r.slots[1].ConnID},
		Results: [2]Result{r.slots[0].Result, r.slots[1].Result},
		Winner:  winner,
	}
	r.State = StateReveal

	if r.Mode != ModeSeries {
		return out
	}

	// a tie still consumes one of the series rounds
	if winner >= 0 {
		r.slots[winner].SeriesScore++
	}
	s0, s1 := r.slots[0].SeriesScore, r.slots[1].SeriesScore
	over := s0 >= r.rules.SeriesWins || s1 >= r.rules.SeriesWins || r.Round >= r.rules.SeriesRounds
	if over {
		r.SeriesOver = true
		r.SeriesWinner = leader(s0, s1)
	}
	out.Series = &SeriesStatus{
		Round:  r.Round,
		Scores: [2]int{s0, s1},
		Over:   over,
		Winner: r.SeriesWinner,
	}
	if !over {
		r.Round++
		r.clearRound()
		r.State = StateNextRoundPending
	}
	return out
}

func leader(s0, s1 int) int {
	switch {
	case s0 > s1:
		return 0
	case s1 > s0:
		return 1
	}
	return -1
}

func (r *Room) rematchOpen() bool {
	if r.State != StateReveal && r.State != StateRematchPending {
		return false
	}
	return r.Mode == ModeSingle || r.SeriesOver
}

// RequestRematch records slot i's wish to play again. If the opponent already
// asked, the request counts as an accept and the room is reset.
func (r *Room) RequestRematch(i int) (accepted bool, err error) {
	if !r.rematchOpen() {
		return false, ErrInvalidState
	}
	if r.State == StateRematchPending {
		if r.rematchBy == i {
			return false, nil
		}
		r.resetAll()
		return true, nil
	}
	r.State = StateRematchPending
	r.rematchBy = i
	return false, nil
}

// AcceptRematch answers the opponent's request and resets the room to matched
func (r *Room) AcceptRematch(i int) error {
	if !r.rematchOpen() {
		return ErrInvalidState
	}
	if r.State != StateRematchPending || r.rematchBy == i {
		return ErrNoRematchRequest
	}
	r.resetAll()
	return nil
}

// DeclineRematch ends the session
func (r *Room) DeclineRematch(i int) error {
	if !r.rematchOpen() {
		return ErrInvalidState
	}
	r.Close()
	return nil
}

func (r *Room) clearRound() {
	for i := range r.slots {
		r.slots[i].Ready = false
		r.slots[i].Result = Result{}
		r.slots[i].ReferenceImage = ""
	}
	r.CountdownStart = time.Time{}
	r.DeadlineAt = time.Time{}
	r.cancelDeadline()
}

func (r *Room) resetAll() {
	r.clearRound()
	for i := range r.slots {
		r.slots[i].SeriesScore = 0
	}
	r.Round = 1
	r.SeriesOver = false
	r.SeriesWinner = -1
	r.rematchBy = -1
	r.State = StateMatched
}

// ArmGrace attaches a disconnect grace timer to slot i
func (r *Room) ArmGrace(i int, t Canceler) {
	if r.slots[i].grace != nil {
		r.slots[i].grace.Cancel()
	}
	r.slots[i].grace = t
}

// CancelGrace stops slot i's grace timer and reports whether one was pending
func (r *Room) CancelGrace(i int) bool {
	g := r.slots[i].grace
	if g == nil {
		return false
	}
	g.Cancel()
	r.slots[i].grace = nil
	return true
}

// ClearGrace forgets slot i's grace timer after it fired
func (r *Room) ClearGrace(i int) {
	r.slots[i].grace = nil
}

// Remap moves the slot held by oldID to newID and cancels its grace timer.
// Every slot-scoped field moves with the slot.
func (r *Room) Remap(oldID, newID string) (int, error) {
	i, ok := r.SlotIndex(oldID)
	if !ok || r.State == StateClosed {
		return -1, ErrUnknownConnection
	}
	r.slots[i].ConnID = newID
	r.CancelGrace(i)
	return i, nil
}

// Close cancels every outstanding timer and marks the room closed
func (r *Room) Close() {
	r.cancelDeadline()
	for i := range r.slots {
		r.CancelGrace(i)
	}
	r.State = StateClosed
}

func (r *Room) cancelDeadline() {
	if r.deadline != nil {
		r.deadline.Cancel()
		r.deadline = nil
	}
}
