package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/secops-portal/backend/internal/models"
)

// FetchRequests loads the four task queues of agentID concurrently. When any
// sub-fetch fails all four queues come back empty and the error is returned
// alongside them. An empty agentID yields empty queues without a backend call.
func (s *TaskService) FetchRequests(ctx context.Context, agentID string) (models.TaskQueues, error) {
	if blank(agentID) {
		return models.EmptyQueues(), nil
	}

	var available, assigned, submitted, sentBack []models.Request
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		available, err = s.Backend.AvailableRequests(gctx, agentID)
		return err
	})
	g.Go(func() (err error) {
		assigned, err = s.Backend.AssignedRequests(gctx, agentID)
		return err
	})
	g.Go(func() (err error) {
		submitted, err = s.Backend.SubmittedRequests(gctx, agentID)
		return err
	})
	g.Go(func() (err error) {
		sentBack, err = s.Backend.SentBackRequests(gctx, agentID)
		return err
	})
	if err := g.Wait(); err != nil {
		s.Logger.Error().Err(err).Str("agent_id", agentID).Msg("failed to fetch task queues")
		return models.EmptyQueues(), err
	}

	seen := map[string]struct{}{}
	return models.TaskQueues{
		Assigned:  partition(assigned, seen),
		Submitted: partition(submitted, seen),
		SentBack:  partition(sentBack, seen),
		Available: partition(available, seen),
	}, nil
}

// partition drops requests already placed in an earlier queue so that no id
// appears twice across the views.
func partition(reqs []models.Request, seen map[string]struct{}) []models.Request {
	out := make([]models.Request, 0, len(reqs))
	for _, r := range reqs {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}
