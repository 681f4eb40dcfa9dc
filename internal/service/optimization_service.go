package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	apperrors "h2grid/internal/errors"
	"h2grid/internal/logger"
	"h2grid/internal/model"
	"h2grid/internal/optimizer"
	"h2grid/internal/repository"
)

// ErrLogNotFound covers unknown ids and logs of other users.
var ErrLogNotFound = apperrors.Wrap(http.StatusNotFound, "Optimization log not found", apperrors.ErrNotFound)

// capacityAttribute names the attribute summed per asset type in the overview.
var capacityAttribute = map[string]string{
	"plants":     "capacityMW",
	"storages":   "capacityTonnes",
	"pipelines":  "capacityTonnesPerDay",
	"renewables": "capacityMW",
	"demands":    "demandMW",
}

// OptimizationResult is what callers of the gateway receive. Fallback is
// true when the plan is the static suggestion.
type OptimizationResult struct {
	LogID    uuid.UUID      `json:"logId"`
	Fallback bool           `json:"fallback"`
	Plan     optimizer.Plan `json:"plan"`
}

// SuggestionParams are the optional constraints of a suggestion request.
type SuggestionParams struct {
	Budget         float64
	TargetCapacity float64
}

// LogInput creates an optimization log by hand.
type LogInput struct {
	ProjectID *uuid.UUID
	Kind      string
	Input     json.RawMessage
}

// LogUpdate records an outcome on an existing log. Nil means unchanged.
type LogUpdate struct {
	Output json.RawMessage
	Status *model.OptimizationStatus
	Error  *string
}

// AssetCount is one asset type's row in the system overview.
type AssetCount struct {
	Count         int64   `json:"count"`
	Existing      int64   `json:"existing"`
	Planned       int64   `json:"planned"`
	TotalCapacity float64 `json:"totalCapacity,omitempty"`
}

// Overview summarizes the whole system.
type Overview struct {
	Infrastructure map[string]AssetCount `json:"infrastructure"`
	Users          map[model.Role]int64  `json:"users"`
}

// Metrics summarizes optimizer usage.
type Metrics struct {
	Total       int64   `json:"total"`
	Success     int64   `json:"success"`
	Errors      int64   `json:"errors"`
	Pending     int64   `json:"pending"`
	SuccessRate float64 `json:"successRate"`
}

// OptimizationService is the gateway to the external optimizer plus the
// analytics built on top of it.
type OptimizationService interface {
	Optimize(ctx context.Context, owner uuid.UUID, kind optimizer.Kind, projectID *uuid.UUID, request interface{}) (*OptimizationResult, error)
	Suggestions(ctx context.Context, owner uuid.UUID, kind optimizer.Kind, params SuggestionParams) (*OptimizationResult, error)
	SystemOptimize(ctx context.Context, owner uuid.UUID, constraints map[string]interface{}) (*OptimizationResult, error)
	Overview(ctx context.Context) (*Overview, error)
	Metrics(ctx context.Context) (*Metrics, error)

	CreateLog(ctx context.Context, owner uuid.UUID, in LogInput) (*model.OptimizationLog, error)
	UpdateLog(ctx context.Context, owner, id uuid.UUID, in LogUpdate) (*model.OptimizationLog, error)
	GetLog(ctx context.Context, owner, id uuid.UUID) (*model.OptimizationLog, error)
	ListLogs(ctx context.Context, owner uuid.UUID) ([]model.OptimizationLog, error)

	// Close stops the outcome writer after flushing queued updates.
	Close()
}

type optimizationService struct {
	opt    optimizer.Optimizer
	logs   repository.OptimizationLogRepository
	assets map[string]AssetService
	users  UserService
	log    *logger.Logger

	outcomes chan model.OptimizationLog
	done     chan struct{}
	once     sync.Once
	mu       sync.RWMutex
	closed   bool
}

// NewOptimizationService creates the gateway and starts the worker that
// records optimizer outcomes.
func NewOptimizationService(
	opt optimizer.Optimizer,
	logs repository.OptimizationLogRepository,
	assets map[string]AssetService,
	users UserService,
	log *logger.Logger,
) OptimizationService {
	if log == nil {
		log = logger.Nop()
	}
	s := &optimizationService{
		opt:      opt,
		logs:     logs,
		assets:   assets,
		users:    users,
		log:      log,
		outcomes: make(chan model.OptimizationLog, 100),
		done:     make(chan struct{}),
	}
	go s.outcomeWorker()
	return s
}

// outcomeWorker writes outcomes in batches, flushing every second.
func (s *optimizationService) outcomeWorker() {
	defer close(s.done)
	ctx := context.Background()
	batch := make([]model.OptimizationLog, 0, 10)
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	flush := func() {
		for i := range batch {
			if err := s.logs.Update(ctx, &batch[i]); err != nil {
				s.log.Error("record optimization outcome failed", "logId", batch[i].ID, "error", err)
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-s.outcomes:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= 10 {
				flush()
			}
		case <-ticker.C:
			if len(batch) > 0 {
				flush()
			}
		}
	}
}

func (s *optimizationService) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.outcomes)
		s.mu.Unlock()
		<-s.done
	})
}

// record queues entry for the worker. Once the queue is full or the
// service is closed the update is written inline.
func (s *optimizationService) record(ctx context.Context, entry model.OptimizationLog) {
	queued := false
	s.mu.RLock()
	if !s.closed {
		select {
		case s.outcomes <- entry:
			queued = true
		default:
		}
	}
	s.mu.RUnlock()
	if queued {
		return
	}
	if err := s.logs.Update(context.WithoutCancel(ctx), &entry); err != nil {
		s.log.Error("record optimization outcome failed", "logId", entry.ID, "error", err)
	}
}

// Optimize logs the request as pending, makes a single optimizer call and
// serves the static fallback when the call fails.
func (s *optimizationService) Optimize(ctx context.Context, owner uuid.UUID, kind optimizer.Kind, projectID *uuid.UUID, request interface{}) (*OptimizationResult, error) {
	input, err := json.Marshal(request)
	if err != nil {
		return nil, apperrors.Wrap(http.StatusBadRequest, "Request is not serializable", apperrors.ErrBadRequest)
	}
	entry := model.OptimizationLog{
		UserID:    owner,
		ProjectID: projectID,
		Kind:      string(kind),
		Input:     datatypes.JSON(input),
		Status:    model.OptimizationStatusPending,
	}
	if err := s.logs.Create(ctx, &entry); err != nil {
		return nil, fmt.Errorf("create optimization log: %w", err)
	}

	plan, err := s.opt.Plan(ctx, json.RawMessage(input))
	if err != nil {
		s.log.Warn("optimizer unavailable, serving fallback", "kind", kind, "logId", entry.ID, "error", err)
		entry.Status = model.OptimizationStatusError
		entry.Error = err.Error()
		s.record(ctx, entry)
		return &OptimizationResult{LogID: entry.ID, Fallback: true, Plan: optimizer.Fallback(kind)}, nil
	}

	if output, err := json.Marshal(plan); err == nil {
		entry.Output = datatypes.JSON(output)
	}
	entry.Status = model.OptimizationStatusSuccess
	s.record(ctx, entry)
	return &OptimizationResult{LogID: entry.ID, Plan: plan}, nil
}

type infrastructure map[string][]map[string]interface{}

// gather loads the listed asset types concurrently and reduces each asset
// to the fields the optimizer consumes.
func (s *optimizationService) gather(ctx context.Context, routes ...string) (infrastructure, error) {
	var mu sync.Mutex
	out := make(infrastructure, len(routes))
	g, gctx := errgroup.WithContext(ctx)
	for _, route := range routes {
		route := route
		svc, ok := s.assets[route]
		if !ok {
			continue
		}
		g.Go(func() error {
			assets, err := svc.List(gctx)
			if err != nil {
				return err
			}
			def := svc.Definition()
			items := make([]map[string]interface{}, 0, len(assets))
			for _, a := range assets {
				item := map[string]interface{}{
					"id":             a.ID,
					"name":           a.Name,
					"status":         a.Status,
					def.GeometryField: json.RawMessage(a.Geometry),
				}
				for k, v := range a.Attributes {
					if k != "attachments" {
						item[k] = v
					}
				}
				items = append(items, item)
			}
			mu.Lock()
			out[route] = items
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("gather infrastructure: %w", err)
	}
	return out, nil
}

func orDefault(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}

// Suggestions asks the optimizer where to add plants, storages or pipelines
// given the current infrastructure.
func (s *optimizationService) Suggestions(ctx context.Context, owner uuid.UUID, kind optimizer.Kind, params SuggestionParams) (*OptimizationResult, error) {
	var routes []string
	var constraints map[string]interface{}
	switch kind {
	case optimizer.KindPlants:
		routes = []string{"plants", "storages", "demands", "zones", "renewables"}
		constraints = map[string]interface{}{
			"budget":          orDefault(params.Budget, 500),
			"target_capacity": orDefault(params.TargetCapacity, 100),
		}
	case optimizer.KindStorages:
		routes = []string{"plants", "storages", "demands"}
		constraints = map[string]interface{}{
			"budget":   orDefault(params.Budget, 300),
			"capacity": orDefault(params.TargetCapacity, 100),
		}
	case optimizer.KindPipelines:
		routes = []string{"plants", "storages", "demands", "pipelines"}
		constraints = map[string]interface{}{
			"budget_limit":      orDefault(params.Budget, 200),
			"required_capacity": orDefault(params.TargetCapacity, 50),
		}
	default:
		return nil, apperrors.Wrap(http.StatusBadRequest, "Unknown suggestion type", apperrors.ErrBadRequest)
	}

	infra, err := s.gather(ctx, routes...)
	if err != nil {
		return nil, err
	}
	request := map[string]interface{}{
		"mode":                    string(kind),
		"existing_infrastructure": infra,
		"constraints":             constraints,
	}
	return s.Optimize(ctx, owner, kind, nil, request)
}

// SystemOptimize sends the whole infrastructure with caller constraints.
func (s *optimizationService) SystemOptimize(ctx context.Context, owner uuid.UUID, constraints map[string]interface{}) (*OptimizationResult, error) {
	routes := make([]string, 0, len(s.assets))
	for route := range s.assets {
		routes = append(routes, route)
	}
	infra, err := s.gather(ctx, routes...)
	if err != nil {
		return nil, err
	}
	if constraints == nil {
		constraints = map[string]interface{}{}
	}
	request := map[string]interface{}{
		"mode":                    string(optimizer.KindSystem),
		"existing_infrastructure": infra,
		"constraints":             constraints,
	}
	return s.Optimize(ctx, owner, optimizer.KindSystem, nil, request)
}

// Overview counts assets per type and status and users per role.
func (s *optimizationService) Overview(ctx context.Context) (*Overview, error) {
	var mu sync.Mutex
	ov := &Overview{Infrastructure: make(map[string]AssetCount, len(s.assets))}
	g, gctx := errgroup.WithContext(ctx)

	for route, svc := range s.assets {
		route, svc := route, svc
		g.Go(func() error {
			counts, err := svc.CountByStatus(gctx)
			if err != nil {
				return fmt.Errorf("count %s: %w", route, err)
			}
			row := AssetCount{
				Existing: counts[model.AssetStatusExisting],
				Planned:  counts[model.AssetStatusPlanned],
			}
			row.Count = row.Existing + row.Planned
			if attr, ok := capacityAttribute[route]; ok && row.Count > 0 {
				assets, err := svc.List(gctx)
				if err != nil {
					return fmt.Errorf("list %s: %w", route, err)
				}
				for _, a := range assets {
					if v, ok := a.Attributes[attr].(float64); ok {
						row.TotalCapacity += v
					}
				}
			}
			mu.Lock()
			ov.Infrastructure[route] = row
			mu.Unlock()
			return nil
		})
	}
	g.Go(func() error {
		roles, err := s.users.CountByRole(gctx)
		if err != nil {
			return fmt.Errorf("count users: %w", err)
		}
		mu.Lock()
		ov.Users = roles
		mu.Unlock()
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ov, nil
}

func (s *optimizationService) Metrics(ctx context.Context) (*Metrics, error) {
	counts, err := s.logs.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count optimization logs: %w", err)
	}
	m := &Metrics{
		Success: counts[model.OptimizationStatusSuccess],
		Errors:  counts[model.OptimizationStatusError],
		Pending: counts[model.OptimizationStatusPending],
	}
	m.Total = m.Success + m.Errors + m.Pending
	if finished := m.Success + m.Errors; finished > 0 {
		m.SuccessRate = float64(m.Success) / float64(finished)
	}
	return m, nil
}

func (s *optimizationService) CreateLog(ctx context.Context, owner uuid.UUID, in LogInput) (*model.OptimizationLog, error) {
	if len(in.Input) == 0 {
		return nil, apperrors.Wrap(http.StatusBadRequest, "input is required", apperrors.ErrBadRequest)
	}
	entry := &model.OptimizationLog{
		UserID:    owner,
		ProjectID: in.ProjectID,
		Kind:      in.Kind,
		Input:     datatypes.JSON(in.Input),
		Status:    model.OptimizationStatusPending,
	}
	if err := s.logs.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("create optimization log: %w", err)
	}
	return entry, nil
}

func (s *optimizationService) UpdateLog(ctx context.Context, owner, id uuid.UUID, in LogUpdate) (*model.OptimizationLog, error) {
	entry, err := s.GetLog(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, apperrors.Wrap(http.StatusBadRequest, "status must be one of pending, success, error", apperrors.ErrBadRequest)
		}
		entry.Status = *in.Status
	}
	if in.Output != nil {
		entry.Output = datatypes.JSON(in.Output)
	}
	if in.Error != nil {
		entry.Error = *in.Error
	}
	if err := s.logs.Update(ctx, entry); err != nil {
		return nil, fmt.Errorf("update optimization log: %w", err)
	}
	return entry, nil
}

func (s *optimizationService) GetLog(ctx context.Context, owner, id uuid.UUID) (*model.OptimizationLog, error) {
	entry, err := s.logs.FindForUser(ctx, id, owner)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLogNotFound
	}
	return entry, err
}

func (s *optimizationService) ListLogs(ctx context.Context, owner uuid.UUID) ([]model.OptimizationLog, error) {
	return s.logs.ListForUser(ctx, owner)
}
