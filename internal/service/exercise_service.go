package service

import (
	"amitk/therapy-app/internal/domain"
	"amitk/therapy-app/internal/repository"
	"amitk/therapy-app/internal/storage"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Error Definitions ---
var (
	ErrExerciseNotFound     = errors.New("exercise not found")
	ErrExerciseAccessDenied = errors.New("access denied to modify or delete this exercise")
	ErrValidationFailed     = errors.New("exercise validation failed")
	ErrNoVideo              = errors.New("exercise has no video attached")
)

// ExerciseInput carries the authorable exercise fields.
type ExerciseInput struct {
	Name        domain.LocalizedText
	Description domain.LocalizedText
	Discipline  domain.Discipline
	BodyRegion  string
	Difficulty  string
	DefaultSets int
	DefaultReps int
}

// VideoUploadTicket is the presigned upload handed to the client. The client
// PUTs the file to UploadURL and then confirms with ObjectKey.
type VideoUploadTicket struct {
	ObjectKey string `json:"objectKey"`
	UploadURL string `json:"uploadUrl"`
}

// ExerciseWithVideo pairs an exercise with a short-lived download URL for
// its demo video.
type ExerciseWithVideo struct {
	domain.Exercise
	VideoDownloadURL string `json:"videoDownloadUrl,omitempty"`
}

// --- Service Interface ---
type ExerciseService interface {
	CreateExercise(ctx context.Context, therapistID primitive.ObjectID, input ExerciseInput) (*domain.Exercise, error)
	GetExercise(ctx context.Context, exerciseID primitive.ObjectID) (*ExerciseWithVideo, error)
	GetTherapistExercises(ctx context.Context, therapistID primitive.ObjectID) ([]domain.Exercise, error)
	UpdateExercise(ctx context.Context, therapistID, exerciseID primitive.ObjectID, input ExerciseInput) (*domain.Exercise, error)
	DeleteExercise(ctx context.Context, therapistID, exerciseID primitive.ObjectID) error
	// RequestVideoUpload issues a presigned PUT URL for a demo video.
	RequestVideoUpload(ctx context.Context, therapistID, exerciseID primitive.ObjectID, fileName, contentType string) (*VideoUploadTicket, error)
	// ConfirmVideoUpload records the uploaded object against the exercise
	// after the client finished the PUT.
	ConfirmVideoUpload(ctx context.Context, therapistID, exerciseID primitive.ObjectID, objectKey, fileName, contentType string, fileSize int64) (*domain.Exercise, error)
}

// --- Service Implementation ---

// exerciseService implements the ExerciseService interface.
type exerciseService struct {
	exerciseRepo repository.ExerciseRepository
	uploadRepo   repository.UploadRepository
	fileStorage  storage.FileStorage
}

// NewExerciseService creates a new instance of exerciseService.
func NewExerciseService(exerciseRepo repository.ExerciseRepository, uploadRepo repository.UploadRepository, fileStorage storage.FileStorage) ExerciseService {
	return &exerciseService{
		exerciseRepo: exerciseRepo,
		uploadRepo:   uploadRepo,
		fileStorage:  fileStorage,
	}
}

// CreateExercise handles the creation of a new exercise by a therapist.
func (s *exerciseService) CreateExercise(ctx context.Context, therapistID primitive.ObjectID, input ExerciseInput) (*domain.Exercise, error) {
	if input.Name.En == "" {
		return nil, ErrValidationFailed
	}
	if therapistID == primitive.NilObjectID {
		return nil, errors.New("therapist ID is required to create an exercise")
	}

	exercise := &domain.Exercise{
		TherapistID: therapistID,
		Name:        input.Name,
		Description: input.Description,
		Discipline:  input.Discipline,
		BodyRegion:  input.BodyRegion,
		Difficulty:  input.Difficulty,
		DefaultSets: input.DefaultSets,
		DefaultReps: input.DefaultReps,
	}

	exerciseID, err := s.exerciseRepo.Create(ctx, exercise)
	if err != nil {
		return nil, err
	}
	return s.exerciseRepo.GetByID(ctx, exerciseID)
}

// GetExercise retrieves a single exercise with a presigned video URL when a
// video is attached.
func (s *exerciseService) GetExercise(ctx context.Context, exerciseID primitive.ObjectID) (*ExerciseWithVideo, error) {
	exercise, err := s.exerciseRepo.GetByID(ctx, exerciseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExerciseNotFound
		}
		return nil, err
	}

	result := &ExerciseWithVideo{Exercise: *exercise}
	if exercise.VideoObjectKey != "" {
		url, err := s.fileStorage.GeneratePresignedDownloadURL(ctx, exercise.VideoObjectKey, storage.DefaultPresignedURLExpiry)
		if err == nil {
			result.VideoDownloadURL = url
		}
		// A presign failure degrades to an exercise without a playable
		// video rather than failing the read.
	}
	return result, nil
}

// GetTherapistExercises retrieves all exercises owned by a therapist.
func (s *exerciseService) GetTherapistExercises(ctx context.Context, therapistID primitive.ObjectID) ([]domain.Exercise, error) {
	if therapistID == primitive.NilObjectID {
		return nil, errors.New("therapist ID cannot be nil")
	}
	return s.exerciseRepo.GetByTherapistID(ctx, therapistID)
}

// UpdateExercise handles updating an existing exercise, ensuring ownership.
func (s *exerciseService) UpdateExercise(ctx context.Context, therapistID, exerciseID primitive.ObjectID, input ExerciseInput) (*domain.Exercise, error) {
	if input.Name.En == "" {
		return nil, ErrValidationFailed
	}

	existing, err := s.getOwnedExercise(ctx, therapistID, exerciseID)
	if err != nil {
		return nil, err
	}

	existing.Name = input.Name
	existing.Description = input.Description
	existing.Discipline = input.Discipline
	existing.BodyRegion = input.BodyRegion
	existing.Difficulty = input.Difficulty
	existing.DefaultSets = input.DefaultSets
	existing.DefaultReps = input.DefaultReps

	if err := s.exerciseRepo.Update(ctx, existing); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExerciseNotFound
		}
		return nil, err
	}
	return existing, nil
}

// DeleteExercise handles deleting an exercise, ensuring ownership. The demo
// video object is removed from the bucket as well.
func (s *exerciseService) DeleteExercise(ctx context.Context, therapistID, exerciseID primitive.ObjectID) error {
	existing, err := s.getOwnedExercise(ctx, therapistID, exerciseID)
	if err != nil {
		return err
	}

	// The repository's delete filter includes the therapist ID, enforcing
	// ownership at the DB level too.
	if err := s.exerciseRepo.Delete(ctx, exerciseID, therapistID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrExerciseNotFound
		}
		return err
	}

	if existing.VideoObjectKey != "" {
		// Best effort; an orphaned object is preferable to a failed delete.
		_ = s.fileStorage.DeleteObject(ctx, existing.VideoObjectKey)
	}
	return nil
}

// RequestVideoUpload issues a presigned PUT URL under a fresh object key.
func (s *exerciseService) RequestVideoUpload(ctx context.Context, therapistID, exerciseID primitive.ObjectID, fileName, contentType string) (*VideoUploadTicket, error) {
	if contentType == "" {
		return nil, errors.New("contentType is required")
	}
	if _, err := s.getOwnedExercise(ctx, therapistID, exerciseID); err != nil {
		return nil, err
	}

	objectKey := fmt.Sprintf("exercises/%s/%s%s", exerciseID.Hex(), uuid.NewString(), path.Ext(fileName))
	uploadURL, err := s.fileStorage.GeneratePresignedUploadURL(ctx, objectKey, contentType, storage.DefaultPresignedURLExpiry)
	if err != nil {
		return nil, err
	}

	return &VideoUploadTicket{
		ObjectKey: objectKey,
		UploadURL: uploadURL,
	}, nil
}

// ConfirmVideoUpload attaches the uploaded object to the exercise and
// records the upload metadata. A previously attached video is deleted.
func (s *exerciseService) ConfirmVideoUpload(ctx context.Context, therapistID, exerciseID primitive.ObjectID, objectKey, fileName, contentType string, fileSize int64) (*domain.Exercise, error) {
	if objectKey == "" {
		return nil, errors.New("objectKey is required")
	}

	existing, err := s.getOwnedExercise(ctx, therapistID, exerciseID)
	if err != nil {
		return nil, err
	}

	previousKey := existing.VideoObjectKey
	existing.VideoObjectKey = objectKey
	if err := s.exerciseRepo.Update(ctx, existing); err != nil {
		return nil, err
	}

	_, err = s.uploadRepo.Create(ctx, &domain.Upload{
		ExerciseID:  exerciseID,
		TherapistID: therapistID,
		ObjectKey:   objectKey,
		FileName:    fileName,
		FileSize:    fileSize,
		ContentType: contentType,
		UploadedAt:  time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	if previousKey != "" && previousKey != objectKey {
		_ = s.fileStorage.DeleteObject(ctx, previousKey)
	}

	return existing, nil
}

func (s *exerciseService) getOwnedExercise(ctx context.Context, therapistID, exerciseID primitive.ObjectID) (*domain.Exercise, error) {
	exercise, err := s.exerciseRepo.GetByID(ctx, exerciseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExerciseNotFound
		}
		return nil, err
	}
	if exercise.TherapistID != therapistID {
		return nil, ErrExerciseAccessDenied
	}
	return exercise, nil
}
