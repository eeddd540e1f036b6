// Package control implements the out-of-band control surface: the
// named-FIFO reader task (C4) and the "control mailbox" abstraction
// spec §9 calls for in place of raw shared pending_* globals.
package control

import "sync"

// RetuneRequest is the payload of the deprecated 'r' command: a full
// tuner reconfigure that forces an async-read restart.
type RetuneRequest struct {
	CenterFreq uint32
	SampleRate uint32
	GainTenths int32
}

// PendingActions is a snapshot of everything latched since the last
// Drain, for the coordinator to act on between frames (spec §4.4 step
// 8).
type PendingActions struct {
	Retune        *RetuneRequest
	CenterFreq    *uint32
	Gains         []int32 // per-channel, len == channel count, nil if untouched
	ExitRequested bool
}

// Mailbox is the single mutex-guarded latch shared between the control
// task (writer) and the coordinator (reader). All fields spec §3 calls
// the "control request latch" live here, encapsulated behind Submit/
// Drain rather than exposed as package globals.
type Mailbox struct {
	mu sync.Mutex

	retune        *RetuneRequest
	centerFreq    *uint32
	gains         []int32
	exitRequested bool

	// noiseOn is the current commanded noise-source state, not a
	// one-shot pending action: the original keeps this as a persistent
	// value copied into every frame's header regardless of whether it
	// changed this cycle (spec §4.4 step 3), separate from the
	// edge-triggered GPIO toggle in step 8.
	noiseOn bool

	// dummyWindowActive is cleared by the coordinator, not the mailbox —
	// it's a consequence of commands landing, not a command itself. Kept
	// here anyway because spec §3 groups it with the rest of the latch,
	// and because arming the window must happen atomically with the same
	// mutex a command is latched under. The frame countdown that ends the
	// window (dummyCounter) lives in the Coordinator.
	dummyWindowActive bool

	onSubmit func()
}

// NewMailbox returns an empty Mailbox. Every time a command is latched
// the mailbox opens the dummy-frame window and then calls onSubmit, if
// non-nil, with the mutex held — the coordinator uses it to signal its
// condition variable in the same critical section the command lands
// in, per spec §4.3.
func NewMailbox(onSubmit func()) *Mailbox {
	return &Mailbox{onSubmit: onSubmit}
}

func (m *Mailbox) submitLocked() {
	m.dummyWindowActive = true
	if m.onSubmit != nil {
		m.onSubmit()
	}
}

// SubmitRetune latches the deprecated full-reconfigure command.
func (m *Mailbox) SubmitRetune(r RetuneRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retune = &r
	m.submitLocked()
}

// SubmitCenterFreq latches a hot center-frequency change.
func (m *Mailbox) SubmitCenterFreq(hz uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.centerFreq = &hz
	m.submitLocked()
}

// SubmitGains latches a hot per-channel gain change.
func (m *Mailbox) SubmitGains(gains []int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]int32, len(gains))
	copy(cp, gains)
	m.gains = cp
	m.submitLocked()
}

// SubmitNoiseSource sets the current commanded noise-source state.
func (m *Mailbox) SubmitNoiseSource(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.noiseOn = on
	m.submitLocked()
}

// NoiseOn returns the current commanded noise-source state. Unlike
// Drain, calling this does not consume anything — every cycle's header
// needs this value whether or not it changed (spec §4.4 step 3).
func (m *Mailbox) NoiseOn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.noiseOn
}

// SubmitExit latches the graceful-halt request.
func (m *Mailbox) SubmitExit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exitRequested = true
	// The exit command still opens a dummy window in the original
	// behaviour (every known command byte does, spec §4.3) even though
	// no further frame will observe it ending.
	m.submitLocked()
}

// Drain returns everything latched since the last Drain and clears it.
// dummyWindowActive is NOT cleared here — it is owned and cleared by
// the coordinator's own dummy-frame countdown (spec §4.4 step 7), not
// by the act of draining commands.
func (m *Mailbox) Drain() PendingActions {
	m.mu.Lock()
	defer m.mu.Unlock()

	pa := PendingActions{
		Retune:        m.retune,
		CenterFreq:    m.centerFreq,
		Gains:         m.gains,
		ExitRequested: m.exitRequested,
	}
	m.retune = nil
	m.centerFreq = nil
	m.gains = nil
	return pa
}

// ExitRequested reports whether a halt has been latched, without
// consuming any other pending action.
func (m *Mailbox) ExitRequested() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exitRequested
}

// DummyWindowActive reports whether the dummy-frame window the
// coordinator owns is currently open.
func (m *Mailbox) DummyWindowActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dummyWindowActive
}

// ClearDummyWindow is called by the coordinator once NO_DUMMY_FRAMES
// have been emitted.
func (m *Mailbox) ClearDummyWindow() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dummyWindowActive = false
}
