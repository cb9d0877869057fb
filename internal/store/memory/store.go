// Package memory is an in-process implementation of store.Store used when no
// database is configured and throughout the tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"hkms/internal/models"
	"hkms/internal/store"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type userRecord struct {
	user         models.User
	passwordHash []byte
}

type Store struct {
	mu           sync.RWMutex
	rooms        map[string]models.Room
	sessions     map[string]models.CleaningSession
	checklists   map[string][]models.ChecklistCompletion
	reports      map[string][]models.ProblemReport
	users        map[string]userRecord
	authSessions map[string]models.AuthSession
	now          func() time.Time
}

func New() *Store {
	return &Store{
		rooms:        make(map[string]models.Room),
		sessions:     make(map[string]models.CleaningSession),
		checklists:   make(map[string][]models.ChecklistCompletion),
		reports:      make(map[string][]models.ProblemReport),
		users:        make(map[string]userRecord),
		authSessions: make(map[string]models.AuthSession),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// AddUser registers a user with a bcrypt-hashed password.
func (s *Store) AddUser(user models.User, password string) (models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}
	if user.UserID == "" {
		user.UserID = uuid.NewString()
	}
	if user.Created.IsZero() {
		user.Created = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.UserID] = userRecord{user: user, passwordHash: hash}
	return user, nil
}

// EnsureUser adds user unless one with the same email exists.
func (s *Store) EnsureUser(ctx context.Context, user models.User, password string) (models.User, error) {
	s.mu.RLock()
	for _, record := range s.users {
		if strings.EqualFold(record.user.Email, user.Email) {
			s.mu.RUnlock()
			return record.user, nil
		}
	}
	s.mu.RUnlock()
	return s.AddUser(user, password)
}

// SetUserRole changes the role stored on the user record.
func (s *Store) SetUserRole(userID, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.users[userID]
	if !ok {
		return
	}
	record.user.Role = role
	s.users[userID] = record
}

// IssueSession creates a session token for userID without a password check.
func (s *Store) IssueSession(userID string, ttl time.Duration) models.AuthSession {
	session := models.AuthSession{
		SessionID: uuid.NewString(),
		UserID:    userID,
		ExpiresAt: s.now().Add(ttl),
	}
	s.mu.Lock()
	s.authSessions[session.SessionID] = session
	s.mu.Unlock()
	return session
}

func (s *Store) Login(ctx context.Context, email, password string, ttl time.Duration) (store.LoginResult, error) {
	s.mu.RLock()
	var found *userRecord
	for _, record := range s.users {
		if strings.EqualFold(record.user.Email, strings.TrimSpace(email)) {
			r := record
			found = &r
			break
		}
	}
	s.mu.RUnlock()
	if found == nil {
		return store.LoginResult{}, store.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(found.passwordHash, []byte(password)); err != nil {
		return store.LoginResult{}, store.ErrInvalidCredentials
	}
	session := s.IssueSession(found.user.UserID, ttl)
	return store.LoginResult{User: found.user, Session: session}, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.authSessions[sessionID]
	if !ok || !session.ExpiresAt.After(s.now()) {
		return store.Session{}, store.ErrAuthSessionNotFound
	}
	record, ok := s.users[session.UserID]
	if !ok {
		return store.Session{}, store.ErrAuthSessionNotFound
	}
	return store.Session{
		SessionID: session.SessionID,
		UserID:    record.user.UserID,
		Name:      record.user.Name,
		Email:     record.user.Email,
		Role:      record.user.Role,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

func (s *Store) CreateRoom(ctx context.Context, room models.Room) (models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rooms {
		if existing.RoomNumber == room.RoomNumber {
			return models.Room{}, store.ErrRoomNumberTaken
		}
	}
	if room.RoomID == "" {
		room.RoomID = uuid.NewString()
	}
	s.rooms[room.RoomID] = room
	return room, nil
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return models.Room{}, store.ErrRoomNotFound
	}
	return room, nil
}

func (s *Store) ListRooms(ctx context.Context) ([]models.Room, error) {
	s.mu.RLock()
	rooms := make([]models.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}
	s.mu.RUnlock()
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].Floor != rooms[j].Floor {
			return rooms[i].Floor < rooms[j].Floor
		}
		return rooms[i].RoomNumber < rooms[j].RoomNumber
	})
	return rooms, nil
}

func (s *Store) GetCleaningSession(ctx context.Context, sessionID string) (models.CleaningSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return models.CleaningSession{}, store.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) ListCleaningSessions(ctx context.Context, roomID string) ([]models.CleaningSession, error) {
	s.mu.RLock()
	var sessions []models.CleaningSession
	for _, session := range s.sessions {
		if session.RoomID == roomID {
			sessions = append(sessions, session)
		}
	}
	s.mu.RUnlock()
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})
	return sessions, nil
}

func (s *Store) ListProblemReports(ctx context.Context, roomID string) ([]models.ProblemReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reports := make([]models.ProblemReport, len(s.reports[roomID]))
	copy(reports, s.reports[roomID])
	return reports, nil
}

// ListChecklists returns the checklist completions recorded for a room.
func (s *Store) ListChecklists(ctx context.Context, roomID string) ([]models.ChecklistCompletion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	checklists := make([]models.ChecklistCompletion, len(s.checklists[roomID]))
	copy(checklists, s.checklists[roomID])
	return checklists, nil
}

// WithinRoom stages writes in a roomTx and applies them in one step. Callers
// serialize per room; the commit still refuses a second open session so two
// racing transactions cannot both open one.
func (s *Store) WithinRoom(ctx context.Context, roomID string, fn func(tx store.RoomTx) error) error {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	tx := &roomTx{
		store:    s,
		room:     room,
		sessions: make(map[string]models.CleaningSession),
	}
	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) commit(tx *roomTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[tx.room.RoomID]; !ok {
		return store.ErrRoomNotFound
	}
	open := 0
	for id, session := range s.sessions {
		if session.RoomID != tx.room.RoomID {
			continue
		}
		if staged, ok := tx.sessions[id]; ok {
			session = staged
		}
		if session.Open() {
			open++
		}
	}
	for id, session := range tx.sessions {
		if _, exists := s.sessions[id]; !exists && session.Open() {
			open++
		}
	}
	if open > 1 {
		return store.ErrOpenSessionExists
	}

	if tx.roomDirty {
		s.rooms[tx.room.RoomID] = tx.room
	}
	for id, session := range tx.sessions {
		s.sessions[id] = session
	}
	s.checklists[tx.room.RoomID] = append(s.checklists[tx.room.RoomID], tx.checklists...)
	s.reports[tx.room.RoomID] = append(s.reports[tx.room.RoomID], tx.reports...)
	return nil
}

type roomTx struct {
	store      *Store
	room       models.Room
	roomDirty  bool
	sessions   map[string]models.CleaningSession
	checklists []models.ChecklistCompletion
	reports    []models.ProblemReport
}

func (tx *roomTx) Room() models.Room {
	return tx.room
}

func (tx *roomTx) SaveRoom(ctx context.Context, room models.Room) error {
	if room.RoomID != tx.room.RoomID {
		return store.ErrRoomNotFound
	}
	tx.room = room
	tx.roomDirty = true
	return nil
}

func (tx *roomTx) OpenSession(ctx context.Context) (models.CleaningSession, bool, error) {
	for _, session := range tx.sessions {
		if session.Open() {
			return session, true, nil
		}
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	for id, session := range tx.store.sessions {
		if session.RoomID != tx.room.RoomID || !session.Open() {
			continue
		}
		if _, staged := tx.sessions[id]; staged {
			continue
		}
		return session, true, nil
	}
	return models.CleaningSession{}, false, nil
}

func (tx *roomTx) GetSession(ctx context.Context, sessionID string) (models.CleaningSession, error) {
	if session, ok := tx.sessions[sessionID]; ok {
		return session, nil
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	session, ok := tx.store.sessions[sessionID]
	if !ok || session.RoomID != tx.room.RoomID {
		return models.CleaningSession{}, store.ErrSessionNotFound
	}
	return session, nil
}

func (tx *roomTx) InsertSession(ctx context.Context, session models.CleaningSession) error {
	if _, open, err := tx.OpenSession(ctx); err != nil {
		return err
	} else if open && session.Open() {
		return store.ErrOpenSessionExists
	}
	tx.sessions[session.SessionID] = session
	return nil
}

func (tx *roomTx) SaveSession(ctx context.Context, session models.CleaningSession) error {
	if _, err := tx.GetSession(ctx, session.SessionID); err != nil {
		return err
	}
	tx.sessions[session.SessionID] = session
	return nil
}

func (tx *roomTx) InsertChecklist(ctx context.Context, checklist models.ChecklistCompletion) error {
	items := make(map[string]bool, len(checklist.Items))
	for name, done := range checklist.Items {
		items[name] = done
	}
	checklist.Items = items
	tx.checklists = append(tx.checklists, checklist)
	return nil
}

func (tx *roomTx) InsertProblemReport(ctx context.Context, report models.ProblemReport) error {
	tx.reports = append(tx.reports, report)
	return nil
}
