package platform

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/DoyleJ11/tilecast/internal/engine"
	"github.com/google/uuid"
)

var ErrInjected = errors.New("injected platform failure")

// Call is one recorded platform invocation.
type Call struct {
	Method string
	Arg    string
}

// Memory is an in-process Platform that records what is on the surface.
// Tests and local simulations use it in place of a real client binding.
type Memory struct {
	mu       sync.Mutex
	self     engine.Participant
	session  string
	roster   []engine.Participant
	running  RunningContext
	videos   map[string]VideoPlacement
	images   map[string]ImagePatch
	sent     []Message
	calls    []Call
	failures map[string]map[string]bool // method -> arg ("" = any)
	invites  int
}

func NewMemory(self engine.Participant, sessionID string, running RunningContext) *Memory {
	return &Memory{
		self:     self,
		session:  sessionID,
		roster:   []engine.Participant{self},
		running:  running,
		videos:   make(map[string]VideoPlacement),
		images:   make(map[string]ImagePatch),
		failures: make(map[string]map[string]bool),
	}
}

// FailOn makes method fail for arg; an empty arg fails every call of method.
func (m *Memory) FailOn(method, arg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures[method] == nil {
		m.failures[method] = make(map[string]bool)
	}
	m.failures[method][arg] = true
}

func (m *Memory) ClearFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.failures)
}

func (m *Memory) SetRoster(ps []engine.Participant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roster = slices.Clone(ps)
}

// record logs the call and reports an injected failure, caller must hold mu.
func (m *Memory) record(method, arg string) error {
	m.calls = append(m.calls, Call{Method: method, Arg: arg})
	if f := m.failures[method]; f != nil && (f[""] || f[arg]) {
		return fmt.Errorf("%s(%s): %w", method, arg, ErrInjected)
	}
	return nil
}

func (m *Memory) PlaceVideo(_ context.Context, v VideoPlacement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("PlaceVideo", v.ParticipantID); err != nil {
		return err
	}
	m.videos[v.ParticipantID] = v
	return nil
}

func (m *Memory) RemoveVideo(_ context.Context, participantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("RemoveVideo", participantID); err != nil {
		return err
	}
	delete(m.videos, participantID)
	return nil
}

func (m *Memory) PlaceImage(_ context.Context, p ImagePatch) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	if err := m.record("PlaceImage", fmt.Sprint(p.ZIndex)); err != nil {
		return "", err
	}
	m.images[id] = p
	return id, nil
}

func (m *Memory) RemoveImage(_ context.Context, imageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("RemoveImage", imageID); err != nil {
		return err
	}
	delete(m.images, imageID)
	return nil
}

func (m *Memory) RemoveVirtualBackground(_ context.Context, participantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record("RemoveVirtualBackground", participantID)
}

func (m *Memory) Roster(context.Context) ([]engine.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("Roster", ""); err != nil {
		return nil, err
	}
	return slices.Clone(m.roster), nil
}

func (m *Memory) Self(context.Context) (engine.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("Self", ""); err != nil {
		return engine.Participant{}, err
	}
	return m.self, nil
}

func (m *Memory) SessionID(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("SessionID", ""); err != nil {
		return "", err
	}
	return m.session, nil
}

func (m *Memory) SendMessage(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("SendMessage", ""); err != nil {
		return err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *Memory) SendInvitation(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("SendInvitation", ""); err != nil {
		return err
	}
	m.invites++
	return nil
}

func (m *Memory) EnterImmersive(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("EnterImmersive", ""); err != nil {
		return err
	}
	m.running = ContextInImmersive
	return nil
}

func (m *Memory) ExitImmersive(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("ExitImmersive", ""); err != nil {
		return err
	}
	m.running = ContextInMeeting
	return nil
}

func (m *Memory) RunningContext(context.Context) (RunningContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("RunningContext", ""); err != nil {
		return "", err
	}
	return m.running, nil
}

// Inspection helpers.

func (m *Memory) Videos() map[string]VideoPlacement {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.videos)
}

func (m *Memory) Images() map[string]ImagePatch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.images)
}

func (m *Memory) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.sent)
}

func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

func (m *Memory) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *Memory) Invitations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invites
}

var _ Platform = (*Memory)(nil)
