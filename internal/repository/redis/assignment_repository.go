package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"omnisearch/domain"

	"github.com/redis/go-redis/v9"
)

// assignmentTTL keeps sticky buckets around long enough to outlive any
// reasonable experiment run before Redis reclaims them.
const assignmentTTL = 30 * 24 * time.Hour

type AssignmentRepository struct {
	client *redis.Client
}

func NewAssignmentRepository(client *redis.Client) *AssignmentRepository {
	return &AssignmentRepository{
		client: client,
	}
}

// key format: "ab:assignment:{experiment_id}:{epoch}:{user_id}"
func assignmentKey(experimentID, epoch, userID string) string {
	return fmt.Sprintf("ab:assignment:%s:%s:%s", experimentID, epoch, userID)
}

// Get returns the stored assignment for the user, or nil when none exists.
func (r *AssignmentRepository) Get(ctx context.Context, experimentID, epoch, userID string) (*domain.UserAssignment, error) {
	key := assignmentKey(experimentID, epoch, userID)

	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get assignment from Redis: %w", err)
	}

	var assignment domain.UserAssignment
	if err := json.Unmarshal([]byte(val), &assignment); err != nil {
		return nil, fmt.Errorf("failed to unmarshal assignment: %w", err)
	}

	return &assignment, nil
}

// CreateIfAbsent writes the assignment only when no record exists yet and
// returns whichever record ends up stored. Losing the SetNX race means some
// other request already bucketed this user, so the existing record wins.
func (r *AssignmentRepository) CreateIfAbsent(ctx context.Context, epoch string, assignment domain.UserAssignment) (*domain.UserAssignment, error) {
	key := assignmentKey(assignment.ExperimentID, epoch, assignment.UserID)

	jsonData, err := json.Marshal(assignment)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal assignment: %w", err)
	}

	created, err := r.client.SetNX(ctx, key, jsonData, assignmentTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to store assignment in Redis: %w", err)
	}
	if created {
		return &assignment, nil
	}

	existing, err := r.Get(ctx, assignment.ExperimentID, epoch, assignment.UserID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		// the winning record expired or was deleted between SetNX and Get,
		// fall back to what we computed
		return &assignment, nil
	}

	return existing, nil
}

// Delete removes a stored assignment. Ops use only.
func (r *AssignmentRepository) Delete(ctx context.Context, experimentID, epoch, userID string) error {
	key := assignmentKey(experimentID, epoch, userID)

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete assignment: %w", err)
	}

	return nil
}
