package lifecycle

import (
	"time"

	"hkms/internal/models"
)

// Session time is active working time: wall time since start minus the
// time spent paused. Pauses accumulate at millisecond precision and the
// result is truncated to whole seconds once, when it is reported or sealed.

func durationBetween(from, to time.Time) time.Duration {
	if !to.After(from) {
		return 0
	}
	return to.Sub(from)
}

func pausedDuration(session models.CleaningSession, now time.Time) time.Duration {
	paused := time.Duration(session.PausedMillis) * time.Millisecond
	if session.Status == models.SessionPaused && session.PausedAt != nil {
		paused += durationBetween(*session.PausedAt, now)
	}
	return paused
}

// ElapsedSeconds is the active time of session as of now. For a completed
// session it is the sealed total.
func ElapsedSeconds(session models.CleaningSession, now time.Time) int64 {
	if session.TotalSeconds != nil {
		return *session.TotalSeconds
	}
	active := durationBetween(session.StartedAt, now) - pausedDuration(session, now)
	if active < 0 {
		return 0
	}
	return int64(active / time.Second)
}

func pauseSession(session models.CleaningSession, now time.Time) models.CleaningSession {
	at := now
	session.PausedAt = &at
	session.Status = models.SessionPaused
	return session
}

// resumeSession folds the current pause into PausedMillis.
func resumeSession(session models.CleaningSession, now time.Time) models.CleaningSession {
	if session.PausedAt != nil {
		session.PausedMillis += durationBetween(*session.PausedAt, now).Milliseconds()
	}
	session.PausedSeconds = session.PausedMillis / 1000
	session.PausedAt = nil
	session.Status = models.SessionActive
	return session
}

// completeSession seals TotalSeconds. A paused session is resumed at now
// first, so completing from paused and resume-then-complete agree.
func completeSession(session models.CleaningSession, now time.Time) models.CleaningSession {
	if session.Status == models.SessionPaused {
		session = resumeSession(session, now)
	}
	end := now
	total := ElapsedSeconds(session, now)
	session.EndedAt = &end
	session.TotalSeconds = &total
	session.Status = models.SessionCompleted
	return session
}
