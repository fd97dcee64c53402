package services

import (
	"context"
	"fmt"

	"github.com/anonto42/nano-midea/relations/internal/metrics"
	"github.com/anonto42/nano-midea/relations/internal/models"
	"github.com/anonto42/nano-midea/relations/internal/repositories"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// TransitionResult is the outcome of cancel, accept or decline. AlreadyHandled
// is set when the request had left PENDING before this call, and Request then
// carries the state that won.
type TransitionResult struct {
	Request        *models.FriendRequest `json:"request"`
	AlreadyHandled bool                  `json:"alreadyHandled"`
}

// FriendshipService drives the friend request state machine
// PENDING -> ACCEPTED | DECLINED | CANCELLED together with the FOLLOW
// notifications that mirror it.
type FriendshipService struct {
	store   *repositories.Store
	out     dispatcher
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewFriendshipService(store *repositories.Store, publisher Publisher, unread repositories.UnreadCache, m *metrics.Metrics, log *zap.Logger) *FriendshipService {
	return &FriendshipService{
		store:   store,
		out:     dispatcher{publisher: publisher, unread: unread, log: log},
		metrics: m,
		log:     log,
	}
}

func checkPair(actor *models.Actor, targetID uint) error {
	if !actor.Authenticated() {
		return ErrUnauthenticated
	}
	if targetID == 0 {
		return ErrInvalidUser
	}
	if targetID == actor.ID {
		return ErrSelfRequest
	}
	return nil
}

func (s *FriendshipService) observe(op string, err error, handled bool) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case handled:
		outcome = "already_handled"
	}
	s.metrics.FriendRequests.WithLabelValues(op, outcome).Inc()
}

// SendFriendRequest creates a PENDING request from actor to targetID and a
// FOLLOW notification for the target, unless one is already active.
func (s *FriendshipService) SendFriendRequest(ctx context.Context, actor *models.Actor, targetID uint) (*models.FriendRequest, error) {
	if err := checkPair(actor, targetID); err != nil {
		return nil, err
	}

	var (
		req *models.FriendRequest
		buf eventBuffer
	)
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		_, err := tx.Friendships.FindRequestBetween(ctx, actor.ID, targetID)
		if err == nil {
			return ErrRequestExists
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return err
		}

		req = &models.FriendRequest{FromID: actor.ID, ToID: targetID}
		if err := tx.Friendships.CreateFriendRequest(ctx, req); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				return ErrRequestExists
			}
			return err
		}

		_, err = tx.Notifications.FindActiveFollowNotification(ctx, targetID, actor.ID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return err
		}
		n := &models.Notification{
			UserID:          targetID,
			Type:            models.NotificationFollow,
			Title:           "New Friend Request",
			Message:         fmt.Sprintf("%s sent you a friend request", actor.DisplayName()),
			Data:            actorPayload(actor, map[string]interface{}{"friendRequestId": req.ID}),
			FromUserID:      actor.ID,
			FriendRequestID: &req.ID,
			Status:          models.FriendRequestPending.Ptr(),
		}
		if err := tx.Notifications.CreateNotification(ctx, n); err != nil {
			return err
		}
		buf.inserted(*n)
		return nil
	})
	s.observe("send", err, false)
	if err != nil {
		return nil, errors.Wrap(err, "send friend request")
	}

	s.countCreated(buf)
	s.out.flush(ctx, &buf)
	s.log.Info("friend request sent", zap.Uint("from", actor.ID), zap.Uint("to", targetID), zap.Uint("request", req.ID))
	return req, nil
}

// CancelFriendRequest withdraws the actor's pending request to targetID.
func (s *FriendshipService) CancelFriendRequest(ctx context.Context, actor *models.Actor, targetID uint) (*TransitionResult, error) {
	return s.resolve(ctx, actor, targetID, models.FriendRequestCancelled, "cancel")
}

// AcceptFriendRequest accepts the pending request fromID sent to the actor.
// The request, the FOLLOW notifications of both parties and the two friend
// rows change in one transaction.
func (s *FriendshipService) AcceptFriendRequest(ctx context.Context, actor *models.Actor, fromID uint) (*TransitionResult, error) {
	return s.resolve(ctx, actor, fromID, models.FriendRequestAccepted, "accept")
}

// DeclineFriendRequest declines the pending request fromID sent to the actor.
func (s *FriendshipService) DeclineFriendRequest(ctx context.Context, actor *models.Actor, fromID uint) (*TransitionResult, error) {
	return s.resolve(ctx, actor, fromID, models.FriendRequestDeclined, "decline")
}

func (s *FriendshipService) resolve(ctx context.Context, actor *models.Actor, otherID uint, to models.FriendRequestStatus, op string) (*TransitionResult, error) {
	if err := checkPair(actor, otherID); err != nil {
		return nil, err
	}

	var (
		res TransitionResult
		buf eventBuffer
	)
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		req, err := tx.Friendships.FindRequestBetween(ctx, actor.ID, otherID)
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrNoPendingRequest
		}
		if err != nil {
			return err
		}

		// Only the sender cancels; only the recipient accepts or declines.
		party := req.ToID
		if to == models.FriendRequestCancelled {
			party = req.FromID
		}
		if party != actor.ID {
			return ErrForbidden
		}

		if req.Status.Terminal() {
			res = TransitionResult{Request: req, AlreadyHandled: true}
			return nil
		}

		applied, err := tx.Friendships.TransitionRequest(ctx, req.ID, to)
		if err != nil {
			return err
		}
		if !applied {
			current, err := tx.Friendships.FindRequestBetween(ctx, actor.ID, otherID)
			if err != nil {
				return err
			}
			res = TransitionResult{Request: current, AlreadyHandled: true}
			return nil
		}
		req.Status = to
		res.Request = req

		mirrored, err := tx.Notifications.MirrorRequestStatus(ctx, req)
		if err != nil {
			return err
		}
		buf.updated(mirrored...)

		if to != models.FriendRequestAccepted {
			return nil
		}
		if err := tx.Friendships.CreateFriendPair(ctx, req.FromID, req.ToID); err != nil {
			return err
		}
		n := &models.Notification{
			UserID:          req.FromID,
			Type:            models.NotificationFriendAccepted,
			Title:           "Friend Request Accepted",
			Message:         fmt.Sprintf("%s accepted your friend request", actor.DisplayName()),
			Data:            actorPayload(actor, map[string]interface{}{"friendRequestId": req.ID}),
			FromUserID:      actor.ID,
			FriendRequestID: &req.ID,
		}
		if err := tx.Notifications.CreateNotification(ctx, n); err != nil {
			return err
		}
		buf.inserted(*n)
		return nil
	})
	s.observe(op, err, res.AlreadyHandled)
	if err != nil {
		return nil, errors.Wrapf(err, "%s friend request", op)
	}

	if res.AlreadyHandled {
		s.log.Info("friend request already handled",
			zap.String("op", op), zap.Uint("actor", actor.ID), zap.Uint("other", otherID),
			zap.String("status", string(res.Request.Status)))
		return &res, nil
	}
	s.countCreated(buf)
	s.out.flush(ctx, &buf)
	s.log.Info("friend request resolved", zap.String("op", op), zap.Uint("request", res.Request.ID), zap.String("status", string(to)))
	return &res, nil
}

// RemoveFriend deletes both friend rows and the ACCEPTED request between the
// pair so a new request can be sent later. Notifications are kept.
func (s *FriendshipService) RemoveFriend(ctx context.Context, actor *models.Actor, targetID uint) error {
	if err := checkPair(actor, targetID); err != nil {
		return err
	}
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		if _, err := tx.Friendships.DeleteFriendPair(ctx, actor.ID, targetID); err != nil {
			return err
		}
		return tx.Friendships.DeleteAcceptedBetween(ctx, actor.ID, targetID)
	})
	s.observe("remove", err, false)
	return errors.Wrap(err, "remove friend")
}

// ListFriends returns the ids of the actor's friends, most recent first.
func (s *FriendshipService) ListFriends(ctx context.Context, actor *models.Actor) ([]uint, error) {
	if !actor.Authenticated() {
		return nil, ErrUnauthenticated
	}
	ids, err := s.store.Friendships.ListFriendIDs(ctx, actor.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list friends")
	}
	return ids, nil
}

// ListPendingRequests returns the PENDING requests addressed to the actor.
func (s *FriendshipService) ListPendingRequests(ctx context.Context, actor *models.Actor) ([]models.FriendRequest, error) {
	if !actor.Authenticated() {
		return nil, ErrUnauthenticated
	}
	reqs, err := s.store.Friendships.ListIncomingPending(ctx, actor.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list pending friend requests")
	}
	return reqs, nil
}

func (s *FriendshipService) countCreated(buf eventBuffer) {
	for _, e := range buf.events {
		if e.EventType == models.EventInsert {
			s.metrics.NotificationsCreated.WithLabelValues(string(e.Record.Type)).Inc()
		}
	}
}
