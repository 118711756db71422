package service

import (
	"amitk/therapy-app/internal/domain"
	"amitk/therapy-app/internal/repository"
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Error Definitions ---
var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionAccessDenied = errors.New("user does not have access to this session")
	ErrSessionNotScheduled = errors.New("session is not in SCHEDULED status")
)

// --- Service Interface ---

// SessionService owns the therapy visit lifecycle.
type SessionService interface {
	// Schedule books an additional visit within an episode.
	Schedule(ctx context.Context, therapistID, episodeID primitive.ObjectID, sessionType domain.SessionType, when time.Time) (*domain.Session, error)
	GetEpisodeSessions(ctx context.Context, userID, episodeID primitive.ObjectID) ([]domain.Session, error)
	// Complete marks a scheduled visit as held and records the notes.
	Complete(ctx context.Context, therapistID, sessionID primitive.ObjectID, notes string) (*domain.Session, error)
	Cancel(ctx context.Context, therapistID, sessionID primitive.ObjectID) (*domain.Session, error)
}

// --- Service Implementation ---

type sessionService struct {
	sessionRepo repository.SessionRepository
	episodeRepo repository.EpisodeRepository
}

// NewSessionService creates a new instance of sessionService.
func NewSessionService(sessionRepo repository.SessionRepository, episodeRepo repository.EpisodeRepository) SessionService {
	return &sessionService{
		sessionRepo: sessionRepo,
		episodeRepo: episodeRepo,
	}
}

// Schedule books a new visit.
func (s *sessionService) Schedule(ctx context.Context, therapistID, episodeID primitive.ObjectID, sessionType domain.SessionType, when time.Time) (*domain.Session, error) {
	episode, err := s.episodeRepo.GetByID(ctx, episodeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEpisodeNotFound
		}
		return nil, err
	}
	if episode.TherapistID != therapistID {
		return nil, ErrSessionAccessDenied
	}

	session := &domain.Session{
		EpisodeID:   episode.ID,
		PatientID:   episode.PatientID,
		TherapistID: episode.TherapistID,
		Type:        sessionType,
		Status:      domain.SessionScheduled,
		ScheduledAt: when,
	}
	id, err := s.sessionRepo.Create(ctx, session)
	if err != nil {
		return nil, err
	}
	session.ID = id
	return session, nil
}

// GetEpisodeSessions lists an episode's visits, soonest first.
func (s *sessionService) GetEpisodeSessions(ctx context.Context, userID, episodeID primitive.ObjectID) ([]domain.Session, error) {
	episode, err := s.episodeRepo.GetByID(ctx, episodeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEpisodeNotFound
		}
		return nil, err
	}
	if episode.PatientID != userID && episode.TherapistID != userID {
		return nil, ErrSessionAccessDenied
	}
	return s.sessionRepo.GetByEpisodeID(ctx, episodeID)
}

// Complete marks a scheduled visit as held.
func (s *sessionService) Complete(ctx context.Context, therapistID, sessionID primitive.ObjectID, notes string) (*domain.Session, error) {
	session, err := s.getOwnedSession(ctx, therapistID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.SessionScheduled {
		return nil, ErrSessionNotScheduled
	}

	now := time.Now().UTC()
	session.Status = domain.SessionCompleted
	session.CompletedAt = &now
	if notes != "" {
		session.Notes = notes
	}

	if err := s.sessionRepo.Update(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Cancel voids a scheduled visit.
func (s *sessionService) Cancel(ctx context.Context, therapistID, sessionID primitive.ObjectID) (*domain.Session, error) {
	session, err := s.getOwnedSession(ctx, therapistID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.SessionScheduled {
		return nil, ErrSessionNotScheduled
	}

	session.Status = domain.SessionCancelled

	if err := s.sessionRepo.Update(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *sessionService) getOwnedSession(ctx context.Context, therapistID, sessionID primitive.ObjectID) (*domain.Session, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if session.TherapistID != therapistID {
		return nil, ErrSessionAccessDenied
	}
	return session, nil
}
