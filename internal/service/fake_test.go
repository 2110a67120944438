package service

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/secops-portal/backend/internal/memstore"
	"github.com/secops-portal/backend/internal/models"
)

var errBackendDown = errors.New("backend unavailable")

// recordingBackend wraps the in-memory store, counts calls and can be told to
// fail individual operations.
type recordingBackend struct {
	*memstore.Store

	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error

	available []models.Request
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{
		Store: memstore.New(),
		calls: map[string]int{},
		fail:  map[string]error{},
	}
}

func (b *recordingBackend) hit(op string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[op]++
	return b.fail[op]
}

func (b *recordingBackend) count(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

func (b *recordingBackend) total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		n += c
	}
	return n
}

func (b *recordingBackend) failOn(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail[op] = err
}

func (b *recordingBackend) GetRequest(ctx context.Context, id string) (models.Request, error) {
	if err := b.hit("GetRequest"); err != nil {
		return models.Request{}, err
	}
	return b.Store.GetRequest(ctx, id)
}

func (b *recordingBackend) AvailableRequests(ctx context.Context, agentID string) ([]models.Request, error) {
	if err := b.hit("AvailableRequests"); err != nil {
		return nil, err
	}
	if b.available != nil {
		return b.available, nil
	}
	return b.Store.AvailableRequests(ctx, agentID)
}

func (b *recordingBackend) AssignedRequests(ctx context.Context, agentID string) ([]models.Request, error) {
	if err := b.hit("AssignedRequests"); err != nil {
		return nil, err
	}
	return b.Store.AssignedRequests(ctx, agentID)
}

func (b *recordingBackend) SubmittedRequests(ctx context.Context, agentID string) ([]models.Request, error) {
	if err := b.hit("SubmittedRequests"); err != nil {
		return nil, err
	}
	return b.Store.SubmittedRequests(ctx, agentID)
}

func (b *recordingBackend) SentBackRequests(ctx context.Context, agentID string) ([]models.Request, error) {
	if err := b.hit("SentBackRequests"); err != nil {
		return nil, err
	}
	return b.Store.SentBackRequests(ctx, agentID)
}

func (b *recordingBackend) ClaimRequest(ctx context.Context, id, agentID string) (models.Request, bool, error) {
	if err := b.hit("ClaimRequest"); err != nil {
		return models.Request{}, false, err
	}
	return b.Store.ClaimRequest(ctx, id, agentID)
}

func (b *recordingBackend) UpdateRequestStatus(ctx context.Context, id string, status models.Status, agentID string, extra models.StatusExtra) (models.Request, error) {
	if err := b.hit("UpdateRequestStatus"); err != nil {
		return models.Request{}, err
	}
	return b.Store.UpdateRequestStatus(ctx, id, status, agentID, extra)
}

func (b *recordingBackend) AddComment(ctx context.Context, id, agentID, text string, sendBack bool) (models.Comment, error) {
	if err := b.hit("AddComment"); err != nil {
		return models.Comment{}, err
	}
	return b.Store.AddComment(ctx, id, agentID, text, sendBack)
}

func (b *recordingBackend) UpdateRequestData(ctx context.Context, id string, fields models.RequestFields, agentID string) (models.Request, error) {
	if err := b.hit("UpdateRequestData"); err != nil {
		return models.Request{}, err
	}
	return b.Store.UpdateRequestData(ctx, id, fields, agentID)
}

func (b *recordingBackend) GetRoutingRule(ctx context.Context, serviceType string) (*models.RoutingRule, error) {
	if err := b.hit("GetRoutingRule"); err != nil {
		return nil, err
	}
	return b.Store.GetRoutingRule(ctx, serviceType)
}

type countingRecorder struct {
	transitions map[models.Status]int
	conflicts   int
}

func (r *countingRecorder) ObserveTransition(to models.Status) {
	if r.transitions == nil {
		r.transitions = map[models.Status]int{}
	}
	r.transitions[to]++
}

func (r *countingRecorder) ObserveClaimConflict() { r.conflicts++ }

func newServices(b *recordingBackend) (*TaskService, *RoutingService) {
	rules := &RoutingService{Backend: b, Logger: zerolog.Nop()}
	tasks := &TaskService{Backend: b, Rules: rules, Metrics: &countingRecorder{}, Logger: zerolog.Nop()}
	return tasks, rules
}

func seedRequest(b *recordingBackend, serviceType string) models.Request {
	r, err := b.Store.CreateRequest(context.Background(), models.NewRequest{
		ServiceType: serviceType,
		Title:       "Badge access for visitor",
		RequestedBy: "requestor-1",
	})
	if err != nil {
		panic(err)
	}
	return r
}

func seedRule(b *recordingBackend, rule models.RoutingRule) {
	if _, err := b.Store.SaveRoutingRule(context.Background(), rule); err != nil {
		panic(err)
	}
}
