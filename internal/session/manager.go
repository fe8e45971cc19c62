package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/fankserver/wordpool-annotator/internal/collection"
	"github.com/fankserver/wordpool-annotator/internal/feedback"
	"github.com/fankserver/wordpool-annotator/internal/spans"
	"github.com/fankserver/wordpool-annotator/internal/store"
	"github.com/fankserver/wordpool-annotator/pkg/annotation"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Manager handles annotation sessions, one per open audio file
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	store   *store.Store
	bus     *feedback.EventBus
	spanGap int64
}

// Session is the state of one open audio file
type Session struct {
	ID        string     `json:"id"`
	AudioPath string     `json:"audioPath"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`

	Annotations *collection.Collection `json:"-"`
	Suggestions *collection.Collection `json:"-"`
	Spans       *spans.Recorder        `json:"-"`

	annotator string
}

// Info is a read-only summary of a session
type Info struct {
	ID          string    `json:"id"`
	AudioPath   string    `json:"audioPath"`
	Annotator   string    `json:"annotator,omitempty"`
	StartTime   time.Time `json:"startTime"`
	Annotations int       `json:"annotations"`
	Suggestions int       `json:"suggestions"`
}

// Annotator returns the cached annotator name, "" until one is known.
func (s *Session) Annotator() string { return s.annotator }

// SetAnnotator caches the annotator name for later commits.
func (s *Session) SetAnnotator(name string) { s.annotator = name }

// AnnotationPath returns the annotation file of the session.
func (s *Session) AnnotationPath() string {
	return annotation.CompanionPath(s.AudioPath, annotation.KindAnnotation)
}

// SuggestionPath returns the suggestion file of the session.
func (s *Session) SuggestionPath() string {
	return annotation.CompanionPath(s.AudioPath, annotation.KindSuggestion)
}

// Info summarises the session.
func (s *Session) Info() Info {
	return Info{
		ID:          s.ID,
		AudioPath:   s.AudioPath,
		Annotator:   s.annotator,
		StartTime:   s.StartTime,
		Annotations: s.Annotations.Len(),
		Suggestions: s.Suggestions.Len(),
	}
}

// NewManager creates a new session manager. bus may be nil. A spanGap <= 0
// selects spans.DefaultGap.
func NewManager(st *store.Store, bus *feedback.EventBus, spanGap int64) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		store:    st,
		bus:      bus,
		spanGap:  spanGap,
	}
}

// Store returns the file store sessions are loaded with.
func (m *Manager) Store() *store.Store { return m.store }

// Open creates a session for audioPath and loads its annotation and
// suggestion files. A header in the annotation file seeds the annotator
// name cache.
func (m *Manager) Open(audioPath string) (*Session, error) {
	s := &Session{
		ID:          uuid.New().String(),
		AudioPath:   audioPath,
		StartTime:   time.Now(),
		Annotations: collection.New("annotations", annotation.KindAnnotation, m.bus),
		Suggestions: collection.New("suggestions", annotation.KindSuggestion, m.bus),
		Spans:       spans.NewRecorder(m.spanGap),
	}

	ann, err := m.store.Load(s.AnnotationPath(), annotation.KindAnnotation)
	if err != nil {
		return nil, fmt.Errorf("session: load annotations: %w", err)
	}
	sug, err := m.store.Load(s.SuggestionPath(), annotation.KindSuggestion)
	if err != nil {
		return nil, fmt.Errorf("session: load suggestions: %w", err)
	}

	s.annotator = ann.Annotator
	if len(ann.Records) > 0 {
		if err := s.Annotations.BulkInsert(ann.Records); err != nil {
			return nil, err
		}
	}
	if len(sug.Records) > 0 {
		if err := s.Suggestions.BulkInsert(sug.Records); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"session_id":  s.ID,
		"audio":       audioPath,
		"annotations": s.Annotations.Len(),
		"suggestions": s.Suggestions.Len(),
	}).Info("Session opened")

	m.bus.Publish(feedback.Event{
		Type:      feedback.EventSessionOpened,
		SessionID: s.ID,
		Data:      s.Info(),
	})
	return s, nil
}

// Close flushes pending interaction spans into the annotation file and
// forgets the session. The session is removed even when the flush fails.
func (m *Manager) Close(sessionID string) error {
	m.mu.Lock()
	s, exists := m.sessions[sessionID]
	if exists {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if !exists {
		return fmt.Errorf("session %s not found", sessionID)
	}

	now := time.Now()
	s.EndTime = &now

	written, err := s.Spans.Flush(m.store, s.AnnotationPath())
	if len(written) > 0 {
		m.bus.Publish(feedback.Event{
			Type:      feedback.EventSpansWritten,
			SessionID: s.ID,
			Data:      feedback.SpansData{Count: len(written), Path: s.AnnotationPath()},
		})
	}

	logrus.WithFields(logrus.Fields{
		"session_id": s.ID,
		"spans":      len(written),
		"duration":   now.Sub(s.StartTime).String(),
	}).Info("Session closed")

	m.bus.Publish(feedback.Event{
		Type:      feedback.EventSessionClosed,
		SessionID: s.ID,
		Data:      s.Info(),
	})
	if err != nil {
		return fmt.Errorf("session: write spans: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID
func (m *Manager) GetSession(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[sessionID]
	if !exists {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}

	return session, nil
}

// ListSessions returns a summary of every open session
func (m *Manager) ListSessions() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]Info, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session.Info())
	}
	return sessions
}
