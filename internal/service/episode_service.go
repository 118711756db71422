package service

import (
	"amitk/therapy-app/internal/domain"
	"amitk/therapy-app/internal/repository"
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var ErrEpisodeAccessDenied = errors.New("user does not have access to this episode")

// --- Service Interface ---

// EpisodeService exposes episode reads and the duration adjustment.
type EpisodeService interface {
	GetEpisode(ctx context.Context, userID, episodeID primitive.ObjectID) (*domain.Episode, error)
	GetPatientEpisodes(ctx context.Context, patientID primitive.ObjectID) ([]domain.Episode, error)
	// UpdateDurationWeeks changes the program length and the derived
	// expected end date. Existing milestones are left untouched; the
	// milestone reset operation is the only regeneration path.
	UpdateDurationWeeks(ctx context.Context, therapistID, episodeID primitive.ObjectID, durationWeeks int) (*domain.Episode, error)
}

// --- Service Implementation ---

type episodeService struct {
	episodeRepo repository.EpisodeRepository
}

// NewEpisodeService creates a new instance of episodeService.
func NewEpisodeService(episodeRepo repository.EpisodeRepository) EpisodeService {
	return &episodeService{episodeRepo: episodeRepo}
}

// GetEpisode fetches one episode, visible to its patient and therapist.
func (s *episodeService) GetEpisode(ctx context.Context, userID, episodeID primitive.ObjectID) (*domain.Episode, error) {
	episode, err := s.episodeRepo.GetByID(ctx, episodeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEpisodeNotFound
		}
		return nil, err
	}
	if episode.PatientID != userID && episode.TherapistID != userID {
		return nil, ErrEpisodeAccessDenied
	}
	return episode, nil
}

// GetPatientEpisodes lists all of a patient's episodes.
func (s *episodeService) GetPatientEpisodes(ctx context.Context, patientID primitive.ObjectID) ([]domain.Episode, error) {
	return s.episodeRepo.GetByPatientID(ctx, patientID)
}

// UpdateDurationWeeks adjusts the program length.
func (s *episodeService) UpdateDurationWeeks(ctx context.Context, therapistID, episodeID primitive.ObjectID, durationWeeks int) (*domain.Episode, error) {
	if durationWeeks < 1 {
		return nil, errors.New("durationWeeks must be at least 1")
	}

	episode, err := s.episodeRepo.GetByID(ctx, episodeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEpisodeNotFound
		}
		return nil, err
	}
	if episode.TherapistID != therapistID {
		return nil, ErrEpisodeAccessDenied
	}

	expectedEnd := episode.StartDate.AddDate(0, 0, durationWeeks*7)
	if err := s.episodeRepo.UpdateDurationWeeks(ctx, episodeID, durationWeeks, expectedEnd); err != nil {
		return nil, err
	}

	return s.episodeRepo.GetByID(ctx, episodeID)
}
