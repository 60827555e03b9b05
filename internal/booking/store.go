package booking

import (
	"sync"
	"time"

	"github.com/vitalink/platform/internal/shared/errors"
	"github.com/vitalink/platform/internal/shared/types"
)

// Store holds in-flight wizard sessions in memory. Sessions are transient
// form state; losing them on restart only means the patient starts the
// wizard over, so there is no database table behind this.
//
// All session mutation happens inside the store's lock. Callers get value
// copies back, never the live *Session, so concurrent requests on the same
// session cannot race on its fields.
type Store struct {
	mu       sync.Mutex
	sessions map[types.ID]*Session
	ttl      time.Duration
	clock    func() time.Time
}

// NewStore creates a session store with the given TTL
func NewStore(ttl time.Duration, clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		sessions: make(map[types.ID]*Session),
		ttl:      ttl,
		clock:    clock,
	}
}

// Create starts a new session for a patient
func (st *Store) Create(patientID types.ID) (Session, error) {
	now := st.clock()

	session, err := NewSession(patientID, st.ttl, now)
	if err != nil {
		return Session{}, errors.Validation(err.Error(), nil)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	st.sweepLocked(now)
	st.sessions[session.ID] = session
	return *session, nil
}

// Get returns a copy of a live session or a not-found error once it has expired
func (st *Store) Get(id types.ID) (Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	session, err := st.getLocked(id, st.clock())
	if err != nil {
		return Session{}, err
	}
	return *session, nil
}

// Advance applies the payload to the session's current step and moves it
// forward if the step validates. Field errors leave the session on the
// current step with the payload retained.
func (st *Store) Advance(id types.ID, payload StepPayload) (Session, map[string]string, error) {
	now := st.clock()

	st.mu.Lock()
	defer st.mu.Unlock()

	session, err := st.getLocked(id, now)
	if err != nil {
		return Session{}, nil, err
	}

	fieldErrors, err := session.Next(payload, now)
	if err != nil {
		return Session{}, nil, errors.Conflict(err.Error())
	}
	if fieldErrors != nil {
		return *session, fieldErrors, nil
	}
	return *session, nil, nil
}

// StepBack moves the session back one step, keeping everything entered so far
func (st *Store) StepBack(id types.ID) (Session, error) {
	now := st.clock()

	st.mu.Lock()
	defer st.mu.Unlock()

	session, err := st.getLocked(id, now)
	if err != nil {
		return Session{}, err
	}

	if err := session.Previous(now); err != nil {
		return Session{}, errors.Conflict(err.Error())
	}
	return *session, nil
}

// Submit validates the payment step and, when it passes, calls book to
// create the appointment and records the result. The whole sequence runs
// under the store lock, so a double submit on the same session observes
// the first result instead of booking a second appointment. The returned
// bool reports whether this call created the appointment.
func (st *Store) Submit(id types.ID, payload StepPayload, book func(s *Session) (types.ID, error)) (Session, bool, map[string]string, error) {
	now := st.clock()

	st.mu.Lock()
	defer st.mu.Unlock()

	session, err := st.getLocked(id, now)
	if err != nil {
		return Session{}, false, nil, err
	}

	if session.Submitted() {
		return *session, false, nil, nil
	}

	fieldErrors, err := session.Submit(payload, now)
	if err != nil {
		return Session{}, false, nil, errors.Conflict(err.Error())
	}
	if fieldErrors != nil {
		return *session, false, fieldErrors, nil
	}

	appointmentID, err := book(session)
	if err != nil {
		return Session{}, false, nil, err
	}

	session.Complete(appointmentID, now)
	return *session, true, nil, nil
}

// Delete removes a session, typically after completion
func (st *Store) Delete(id types.ID) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// Len reports the number of sessions currently held, expired ones included
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

func (st *Store) getLocked(id types.ID, now time.Time) (*Session, error) {
	session, ok := st.sessions[id]
	if !ok || session.Expired(now) {
		if ok {
			delete(st.sessions, id)
		}
		return nil, errors.NotFound("booking session", id.String())
	}
	return session, nil
}

func (st *Store) sweepLocked(now time.Time) {
	for id, session := range st.sessions {
		if session.Expired(now) {
			delete(st.sessions, id)
		}
	}
}
