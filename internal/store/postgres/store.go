package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"hkms/internal/models"
	"hkms/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

const uniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const roomColumns = `room_id, room_number, floor, room_type, status, assigned_to, priority, last_cleaned_at, created_at, updated_at`

const sessionColumns = `session_id, room_id, staff_id, status, started_at, paused_at, paused_ms, ended_at, total_seconds`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (models.Room, error) {
	var room models.Room
	err := row.Scan(
		&room.RoomID,
		&room.RoomNumber,
		&room.Floor,
		&room.Type,
		&room.Status,
		&room.AssignedTo,
		&room.Priority,
		&room.LastCleanedAt,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	return room, err
}

func scanSession(row rowScanner) (models.CleaningSession, error) {
	var session models.CleaningSession
	err := row.Scan(
		&session.SessionID,
		&session.RoomID,
		&session.StaffID,
		&session.Status,
		&session.StartedAt,
		&session.PausedAt,
		&session.PausedMillis,
		&session.EndedAt,
		&session.TotalSeconds,
	)
	session.PausedSeconds = session.PausedMillis / 1000
	return session, err
}

// mapConstraintError turns unique violations into store sentinels.
func mapConstraintError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case "cleaning_sessions_one_open":
		return store.ErrOpenSessionExists
	case "rooms_room_number_key":
		return store.ErrRoomNumberTaken
	default:
		return err
	}
}

func (s *Store) CreateRoom(ctx context.Context, room models.Room) (models.Room, error) {
	if room.RoomID == "" {
		room.RoomID = uuid.NewString()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO rooms (`+roomColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+roomColumns,
		room.RoomID, room.RoomNumber, room.Floor, room.Type, room.Status,
		room.AssignedTo, room.Priority, room.LastCleanedAt, room.CreatedAt, room.UpdatedAt,
	)
	created, err := scanRoom(row)
	if err != nil {
		return models.Room{}, mapConstraintError(err)
	}
	return created, nil
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (models.Room, error) {
	room, err := scanRoom(s.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE room_id = $1`, roomID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Room{}, store.ErrRoomNotFound
		}
		return models.Room{}, err
	}
	return room, nil
}

func (s *Store) ListRooms(ctx context.Context) ([]models.Room, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY floor, room_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (s *Store) GetCleaningSession(ctx context.Context, sessionID string) (models.CleaningSession, error) {
	session, err := scanSession(s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM cleaning_sessions WHERE session_id = $1`, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.CleaningSession{}, store.ErrSessionNotFound
		}
		return models.CleaningSession{}, err
	}
	return session, nil
}

func (s *Store) ListCleaningSessions(ctx context.Context, roomID string) ([]models.CleaningSession, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM cleaning_sessions
		WHERE room_id = $1
		ORDER BY started_at DESC
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.CleaningSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *Store) ListProblemReports(ctx context.Context, roomID string) ([]models.ProblemReport, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT report_id, room_id, reported_by, report_type, description, priority, created_at
		FROM problem_reports
		WHERE room_id = $1
		ORDER BY created_at
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []models.ProblemReport
	for rows.Next() {
		var report models.ProblemReport
		if err := rows.Scan(&report.ReportID, &report.RoomID, &report.ReportedBy, &report.Type, &report.Description, &report.Priority, &report.CreatedAt); err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func (s *Store) ListChecklists(ctx context.Context, roomID string) ([]models.ChecklistCompletion, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT checklist_id, room_id, session_id, staff_id, items, notes, finalized, supervisor_signature, signed_by, created_at
		FROM checklist_completions
		WHERE room_id = $1
		ORDER BY created_at
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var checklists []models.ChecklistCompletion
	for rows.Next() {
		var (
			checklist models.ChecklistCompletion
			items     []byte
		)
		if err := rows.Scan(&checklist.ChecklistID, &checklist.RoomID, &checklist.SessionID, &checklist.StaffID, &items,
			&checklist.Notes, &checklist.Finalized, &checklist.Signature, &checklist.SignedBy, &checklist.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(items, &checklist.Items); err != nil {
			return nil, err
		}
		checklists = append(checklists, checklist)
	}
	return checklists, rows.Err()
}

// WithinRoom locks the room row for the lifetime of fn. The partial unique
// index on open sessions backs the one-open-session rule even for writers
// that bypass the lock.
func (s *Store) WithinRoom(ctx context.Context, roomID string, fn func(tx store.RoomTx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	room, err := scanRoom(tx.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE room_id = $1 FOR UPDATE`, roomID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrRoomNotFound
		}
		return err
	}

	if err = fn(&roomTx{tx: tx, room: room}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return mapConstraintError(err)
	}
	return nil
}

type roomTx struct {
	tx   pgx.Tx
	room models.Room
}

func (t *roomTx) Room() models.Room {
	return t.room
}

func (t *roomTx) SaveRoom(ctx context.Context, room models.Room) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE rooms
		SET status = $2, assigned_to = $3, priority = $4, last_cleaned_at = $5, updated_at = $6
		WHERE room_id = $1
	`, room.RoomID, room.Status, room.AssignedTo, room.Priority, room.LastCleanedAt, room.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 || room.RoomID != t.room.RoomID {
		return store.ErrRoomNotFound
	}
	t.room = room
	return nil
}

func (t *roomTx) OpenSession(ctx context.Context) (models.CleaningSession, bool, error) {
	session, err := scanSession(t.tx.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM cleaning_sessions
		WHERE room_id = $1 AND status IN ('active', 'paused')
	`, t.room.RoomID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.CleaningSession{}, false, nil
		}
		return models.CleaningSession{}, false, err
	}
	return session, true, nil
}

func (t *roomTx) GetSession(ctx context.Context, sessionID string) (models.CleaningSession, error) {
	session, err := scanSession(t.tx.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM cleaning_sessions
		WHERE session_id = $1 AND room_id = $2
	`, sessionID, t.room.RoomID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.CleaningSession{}, store.ErrSessionNotFound
		}
		return models.CleaningSession{}, err
	}
	return session, nil
}

func (t *roomTx) InsertSession(ctx context.Context, session models.CleaningSession) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO cleaning_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, session.SessionID, session.RoomID, session.StaffID, session.Status, session.StartedAt,
		session.PausedAt, session.PausedMillis, session.EndedAt, session.TotalSeconds)
	return mapConstraintError(err)
}

func (t *roomTx) SaveSession(ctx context.Context, session models.CleaningSession) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE cleaning_sessions
		SET status = $3, paused_at = $4, paused_ms = $5, ended_at = $6, total_seconds = $7
		WHERE session_id = $1 AND room_id = $2
	`, session.SessionID, t.room.RoomID, session.Status, session.PausedAt, session.PausedMillis, session.EndedAt, session.TotalSeconds)
	if err != nil {
		return mapConstraintError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrSessionNotFound
	}
	return nil
}

func (t *roomTx) InsertChecklist(ctx context.Context, checklist models.ChecklistCompletion) error {
	items, err := json.Marshal(checklist.Items)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO checklist_completions
			(checklist_id, room_id, session_id, staff_id, items, notes, finalized, supervisor_signature, signed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, checklist.ChecklistID, t.room.RoomID, checklist.SessionID, checklist.StaffID, items,
		checklist.Notes, checklist.Finalized, checklist.Signature, checklist.SignedBy, checklist.CreatedAt)
	return err
}

func (t *roomTx) InsertProblemReport(ctx context.Context, report models.ProblemReport) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO problem_reports (report_id, room_id, reported_by, report_type, description, priority, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, report.ReportID, t.room.RoomID, report.ReportedBy, report.Type, report.Description, report.Priority, report.CreatedAt)
	return err
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	var session store.Session
	err := s.pool.QueryRow(ctx, `
		SELECT s.session_id, u.user_id, u.name, u.email, u.role, s.expires_at
		FROM auth_sessions s
		JOIN users u ON u.user_id = s.user_id
		WHERE s.session_id = $1 AND s.expires_at > now()
	`, sessionID).Scan(&session.SessionID, &session.UserID, &session.Name, &session.Email, &session.Role, &session.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Session{}, store.ErrAuthSessionNotFound
		}
		return store.Session{}, err
	}
	return session, nil
}

func (s *Store) Login(ctx context.Context, email, password string, ttl time.Duration) (store.LoginResult, error) {
	var (
		user models.User
		hash string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, name, email, role, password_hash, created_at
		FROM users
		WHERE lower(email) = lower($1)
	`, strings.TrimSpace(email)).Scan(&user.UserID, &user.Name, &user.Email, &user.Role, &hash, &user.Created)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.LoginResult{}, store.ErrInvalidCredentials
		}
		return store.LoginResult{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return store.LoginResult{}, store.ErrInvalidCredentials
	}

	session := models.AuthSession{
		SessionID: uuid.NewString(),
		UserID:    user.UserID,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO auth_sessions (session_id, user_id, expires_at) VALUES ($1, $2, $3)
	`, session.SessionID, session.UserID, session.ExpiresAt); err != nil {
		return store.LoginResult{}, err
	}
	return store.LoginResult{User: user, Session: session}, nil
}

// EnsureUser inserts user unless a user with the same email exists, and
// returns the stored row either way.
func (s *Store) EnsureUser(ctx context.Context, user models.User, password string) (models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}
	if user.UserID == "" {
		user.UserID = uuid.NewString()
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO users (user_id, name, email, role, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (lower(email)) DO NOTHING
	`, user.UserID, user.Name, user.Email, user.Role, string(hash))
	if err != nil {
		return models.User{}, err
	}
	var stored models.User
	err = s.pool.QueryRow(ctx, `
		SELECT user_id, name, email, role, created_at FROM users WHERE lower(email) = lower($1)
	`, user.Email).Scan(&stored.UserID, &stored.Name, &stored.Email, &stored.Role, &stored.Created)
	return stored, err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
