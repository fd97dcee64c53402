package services

import (
	"context"

	"github.com/anonto42/nano-midea/relations/internal/metrics"
	"github.com/anonto42/nano-midea/relations/internal/models"
	"github.com/anonto42/nano-midea/relations/internal/repositories"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const maxFollowPageSize = 100

// RelationshipService answers how two users relate and manages follow edges.
type RelationshipService struct {
	store   *repositories.Store
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewRelationshipService(store *repositories.Store, m *metrics.Metrics, log *zap.Logger) *RelationshipService {
	return &RelationshipService{store: store, metrics: m, log: log}
}

// GetRelationshipStatus runs the four existence checks concurrently. It never
// fails: without an actor, for the actor themselves, or on any lookup error
// it answers with the all-false status. Errors are logged and counted.
func (s *RelationshipService) GetRelationshipStatus(ctx context.Context, actor *models.Actor, targetID uint) models.RelationshipStatus {
	var status models.RelationshipStatus
	if !actor.Authenticated() || targetID == 0 || targetID == actor.ID {
		return status
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		status.IsFollowing, err = s.store.Follows.IsFollowing(gctx, actor.ID, targetID)
		return errors.Wrap(err, "is following")
	})
	g.Go(func() (err error) {
		status.IsFriend, err = s.store.Friendships.IsFriend(gctx, actor.ID, targetID)
		return errors.Wrap(err, "is friend")
	})
	g.Go(func() (err error) {
		status.RequestSent, err = s.store.Friendships.HasPendingRequest(gctx, actor.ID, targetID)
		return errors.Wrap(err, "request sent")
	})
	g.Go(func() (err error) {
		status.RequestReceived, err = s.store.Friendships.HasPendingRequest(gctx, targetID, actor.ID)
		return errors.Wrap(err, "request received")
	})
	if err := g.Wait(); err != nil {
		s.metrics.RelationshipStatusFailures.Inc()
		s.log.Error("relationship status lookup failed, answering default",
			zap.Uint("actor", actor.ID), zap.Uint("target", targetID), zap.Error(err))
		return models.RelationshipStatus{}
	}
	return status
}

// Follow creates the actor -> target edge. Following twice is not an error.
func (s *RelationshipService) Follow(ctx context.Context, actor *models.Actor, targetID uint) error {
	if err := checkPair(actor, targetID); err != nil {
		return err
	}
	err := s.store.Follows.CreateFollow(ctx, actor.ID, targetID)
	s.observe("follow", err)
	return errors.Wrap(err, "follow user")
}

// Unfollow removes the actor -> target edge, ErrNotFound if it does not exist.
func (s *RelationshipService) Unfollow(ctx context.Context, actor *models.Actor, targetID uint) error {
	if err := checkPair(actor, targetID); err != nil {
		return err
	}
	err := s.store.Follows.DeleteFollow(ctx, actor.ID, targetID)
	if errors.Is(err, repositories.ErrNotFound) {
		err = ErrNotFound
	}
	s.observe("unfollow", err)
	return errors.Wrap(err, "unfollow user")
}

func (s *RelationshipService) observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.Follows.WithLabelValues(op, outcome).Inc()
}

// ListFollowers pages through the users following userID.
func (s *RelationshipService) ListFollowers(ctx context.Context, userID uint, page, limit int) (*models.FollowList, error) {
	return s.list(ctx, userID, page, limit, s.store.Follows.GetFollowerIDs, s.store.Follows.GetFollowersCount)
}

// ListFollowing pages through the users userID follows.
func (s *RelationshipService) ListFollowing(ctx context.Context, userID uint, page, limit int) (*models.FollowList, error) {
	return s.list(ctx, userID, page, limit, s.store.Follows.GetFollowingIDs, s.store.Follows.GetFollowingCount)
}

func (s *RelationshipService) list(
	ctx context.Context, userID uint, page, limit int,
	ids func(context.Context, uint, int, int) ([]uint, error),
	count func(context.Context, uint) (int64, error),
) (*models.FollowList, error) {
	if userID == 0 {
		return nil, ErrInvalidUser
	}
	page, limit = normalizePage(page, limit, maxFollowPageSize)

	userIDs, err := ids(ctx, userID, (page-1)*limit, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list follow ids")
	}
	total, err := count(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "count follows")
	}
	return &models.FollowList{UserIDs: userIDs, Total: total}, nil
}
