package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/quizdesk/quizdesk-backend/internal/config"
	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/quizdesk/quizdesk-backend/internal/repository"
	"github.com/quizdesk/quizdesk-backend/internal/response"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Domain errors.
var (
	ErrQuizNotFound = errors.New("quiz not found")
	ErrNotQuizOwner = errors.New("not the owner of this quiz")
)

// QuizService serves the read-only quiz surface: the student-facing list,
// the frozen snapshot consumed by the attempt flow, and owner analytics.
//
// Snapshots are cached in Redis so every request of an in-flight attempt
// sees the same quiz content even while the owner edits it; the cache is
// warmed on first access and self-heals from PostgreSQL on a miss.
type QuizService struct {
	quizRepo     *repository.QuizRepository
	questionRepo *repository.QuestionRepository
	attemptRepo  *repository.AttemptRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewQuizService creates a new QuizService.
func NewQuizService(
	quizRepo *repository.QuizRepository,
	questionRepo *repository.QuestionRepository,
	attemptRepo *repository.AttemptRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *QuizService {
	return &QuizService{
		quizRepo:     quizRepo,
		questionRepo: questionRepo,
		attemptRepo:  attemptRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "quiz_service").Logger(),
	}
}

// Snapshot returns the frozen view of a quiz, preferring the Redis cache.
// On a cache miss the snapshot is rebuilt from PostgreSQL and re-cached.
func (s *QuizService) Snapshot(ctx context.Context, quizID uuid.UUID) (*model.QuizSnapshot, error) {
	key := config.CacheKey.QuizSnapshotKey(quizID)

	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var snap model.QuizSnapshot
		if err := json.Unmarshal(data, &snap); err == nil {
			return &snap, nil
		}
		// Corrupt cache entry; fall through and rebuild.
		s.log.Warn().Str("quiz_id", quizID.String()).Msg("Dropping unreadable snapshot cache entry")
		_ = s.rdb.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		// Real Redis error: degrade to PostgreSQL rather than failing the attempt.
		s.log.Warn().Err(err).Msg("Snapshot cache read failed, falling back to database")
	}

	snap, err := s.buildSnapshot(ctx, quizID)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(snap); err == nil {
		if err := s.rdb.Set(ctx, key, raw, 0).Err(); err != nil {
			s.log.Warn().Err(err).Str("quiz_id", quizID.String()).Msg("Snapshot cache write failed")
		}
	}

	return snap, nil
}

// InvalidateSnapshot drops the cached snapshot, e.g. after authoring tools
// change a quiz that has no attempts in flight.
func (s *QuizService) InvalidateSnapshot(ctx context.Context, quizID uuid.UUID) error {
	return s.rdb.Del(ctx, config.CacheKey.QuizSnapshotKey(quizID)).Err()
}

func (s *QuizService) buildSnapshot(ctx context.Context, quizID uuid.UUID) (*model.QuizSnapshot, error) {
	quiz, err := s.quizRepo.GetByID(ctx, quizID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("get quiz: %w", err)
	}

	questions, err := s.questionRepo.ListByQuiz(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	return &model.QuizSnapshot{Quiz: *quiz, Questions: questions}, nil
}

// ListForStudent returns one page of active quizzes with the student's own
// attempt usage and best score overlaid.
func (s *QuizService) ListForStudent(ctx context.Context, studentID, page, perPage int) ([]model.QuizListEntry, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	quizzes, total, err := s.quizRepo.ListActivePaginated(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, fmt.Errorf("list quizzes: %w", err)
	}

	stats, err := s.attemptRepo.StatsByStudent(ctx, studentID)
	if err != nil {
		return nil, nil, fmt.Errorf("attempt stats: %w", err)
	}

	now := time.Now()
	entries := make([]model.QuizListEntry, 0, len(quizzes))
	for _, q := range quizzes {
		st := stats[q.ID]
		entries = append(entries, model.QuizListEntry{
			Quiz:           q,
			AttemptsUsed:   st.AttemptsUsed,
			CanAttempt:     q.AvailableAt(now) && st.AttemptsUsed < q.MaxAttempts,
			BestPercentage: st.BestPercentage,
		})
	}

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	}
	return entries, pagination, nil
}

// GetForStudent returns one quiz for the pre-attempt detail view.
func (s *QuizService) GetForStudent(ctx context.Context, quizID uuid.UUID, studentID int) (*model.QuizListEntry, error) {
	quiz, err := s.quizRepo.GetByID(ctx, quizID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("get quiz: %w", err)
	}

	n, err := s.attemptRepo.CountByQuizAndStudent(ctx, quizID, studentID)
	if err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}

	stats, err := s.attemptRepo.StatsByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("attempt stats: %w", err)
	}

	return &model.QuizListEntry{
		Quiz:           *quiz,
		AttemptsUsed:   n,
		CanAttempt:     quiz.AvailableAt(time.Now()) && n < quiz.MaxAttempts,
		BestPercentage: stats[quizID].BestPercentage,
	}, nil
}

// Analytics returns the aggregate results view of a quiz. Only the quiz
// owner may see it.
func (s *QuizService) Analytics(ctx context.Context, quizID uuid.UUID, requesterID int) (*repository.QuizAnalytics, error) {
	quiz, err := s.quizRepo.GetByID(ctx, quizID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("get quiz: %w", err)
	}
	if quiz.OwnerID != requesterID {
		return nil, ErrNotQuizOwner
	}

	return s.attemptRepo.AnalyticsByQuiz(ctx, quizID)
}

// PrewarmSnapshots loads every active quiz snapshot into Redis. Run at
// startup so the first wave of attempts does not stampede PostgreSQL.
func (s *QuizService) PrewarmSnapshots(ctx context.Context) error {
	quizzes, err := s.quizRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active quizzes: %w", err)
	}

	for i := range quizzes {
		if _, err := s.Snapshot(ctx, quizzes[i].ID); err != nil {
			s.log.Warn().Err(err).Str("quiz_id", quizzes[i].ID.String()).Msg("Snapshot prewarm failed")
		}
	}

	s.log.Info().Int("count", len(quizzes)).Msg("Quiz snapshots prewarmed")
	return nil
}
