package experiment

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"omnisearch/domain"
	"omnisearch/pkg/logger"
)

// Config is the assignment surface for a single two-variant experiment.
// SplitRatio is the control share of traffic; Epoch re-buckets every user
// when changed.
type Config struct {
	ExperimentID string
	Epoch        string
	SplitRatio   float64
	Enabled      bool
}

func DefaultConfig() Config {
	return Config{
		ExperimentID: "search_ranking",
		Epoch:        "1",
		SplitRatio:   0.5,
		Enabled:      true,
	}
}

// ---- Repository interface ----

// AssignmentRepository persists sticky assignments with create-if-absent
// semantics: when two writers race, the stored record wins for both.
type AssignmentRepository interface {
	Get(ctx context.Context, experimentID, epoch, userID string) (*domain.UserAssignment, error)
	CreateIfAbsent(ctx context.Context, epoch string, assignment domain.UserAssignment) (*domain.UserAssignment, error)
}

// ---- Service ----

// AssignmentService deterministically buckets users into variants. The hash
// is pure, so a lost record or an unreachable store degrades to recomputing
// the same answer; the persisted record only exists so that split-ratio
// changes never reassign existing users.
type AssignmentService struct {
	repo AssignmentRepository
	cfg  Config
	now  func() time.Time
}

func NewAssignmentService(repo AssignmentRepository, cfg Config) *AssignmentService {
	return &AssignmentService{
		repo: repo,
		cfg:  cfg,
		now:  time.Now,
	}
}

// Assign resolves (or creates) the user's variant. It never returns an
// error: a disabled experiment, an empty user id, or a store failure all
// resolve to a usable assignment so the search path is never blocked.
func (s *AssignmentService) Assign(ctx context.Context, userID string) domain.UserAssignment {
	if !s.cfg.Enabled || userID == "" {
		return s.controlAssignment(userID)
	}

	existing, err := s.repo.Get(ctx, s.cfg.ExperimentID, s.cfg.Epoch, userID)
	if err != nil {
		logger.Warn("assignment store unavailable, using hash bucket", "user_id", userID, "error", err)
		return s.hashAssignment(userID)
	}
	if existing != nil {
		return *existing
	}

	assignment := s.hashAssignment(userID)
	stored, err := s.repo.CreateIfAbsent(ctx, s.cfg.Epoch, assignment)
	if err != nil {
		logger.Warn("failed to persist assignment, using hash bucket", "user_id", userID, "error", err)
		return assignment
	}

	logger.Debug("assigned user to variant",
		"user_id", userID,
		"experiment_id", s.cfg.ExperimentID,
		"variant", stored.Variant,
	)
	return *stored
}

// GetAssignment returns the stored assignment, or nil when the user has
// never been bucketed in this epoch.
func (s *AssignmentService) GetAssignment(ctx context.Context, userID string) (*domain.UserAssignment, error) {
	if userID == "" {
		return nil, domain.NewValidationError("user_id", "required")
	}
	return s.repo.Get(ctx, s.cfg.ExperimentID, s.cfg.Epoch, userID)
}

func (s *AssignmentService) hashAssignment(userID string) domain.UserAssignment {
	variant := domain.VariantSearchV2
	if hashToUnit(s.cfg.Epoch, s.cfg.ExperimentID, userID) < s.cfg.SplitRatio {
		variant = domain.VariantSearchV1
	}
	return domain.UserAssignment{
		UserID:       userID,
		ExperimentID: s.cfg.ExperimentID,
		Variant:      variant,
		AssignedAt:   s.now(),
	}
}

func (s *AssignmentService) controlAssignment(userID string) domain.UserAssignment {
	return domain.UserAssignment{
		UserID:       userID,
		ExperimentID: s.cfg.ExperimentID,
		Variant:      domain.VariantSearchV1,
		AssignedAt:   s.now(),
	}
}

// hashToUnit maps (epoch, experiment, user) into [0, 1) deterministically.
func hashToUnit(epoch, experimentID, userID string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fmt.Sprintf("%s|%s|%s", epoch, experimentID, userID)))
	return float64(h.Sum32()) / float64(1<<32)
}
