package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	apperrors "h2grid/internal/errors"
	"h2grid/internal/model"
	"h2grid/internal/optimizer"
)

func expectLogCreate(m *MockOptimizationLogRepository) {
	m.On("Create", mock.Anything, mock.AnythingOfType("*model.OptimizationLog")).
		Run(func(args mock.Arguments) {
			entry := args.Get(1).(*model.OptimizationLog)
			entry.ID = uuid.New()
		}).
		Return(nil)
}

func logWithStatus(status model.OptimizationStatus) interface{} {
	return mock.MatchedBy(func(l *model.OptimizationLog) bool { return l.Status == status })
}

func TestOptimizationService_Optimize(t *testing.T) {
	owner := uuid.New()
	request := map[string]interface{}{"budget": 10}

	tests := []struct {
		name         string
		planResult   optimizer.Plan
		planErr      error
		wantStatus   model.OptimizationStatus
		wantFallback bool
	}{
		{
			name:       "optimizer answers",
			planResult: optimizer.Plan{"plants": []interface{}{"p1"}},
			wantStatus: model.OptimizationStatusSuccess,
		},
		{
			name:         "optimizer unreachable",
			planErr:      fmt.Errorf("post optimize: %w", optimizer.ErrUnavailable),
			wantStatus:   model.OptimizationStatusError,
			wantFallback: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := new(MockOptimizationLogRepository)
			expectLogCreate(logs)
			logs.On("Update", mock.Anything, logWithStatus(tt.wantStatus)).Return(nil).Once()

			opt := new(MockOptimizer)
			if tt.planErr != nil {
				opt.On("Plan", mock.Anything, mock.Anything).Return(nil, tt.planErr)
			} else {
				opt.On("Plan", mock.Anything, mock.Anything).Return(tt.planResult, nil)
			}

			svc := NewOptimizationService(opt, logs, nil, nil, nil)
			res, err := svc.Optimize(context.Background(), owner, optimizer.KindSystem, nil, request)
			svc.Close()

			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, res.LogID)
			assert.Equal(t, tt.wantFallback, res.Fallback)
			if tt.wantFallback {
				assert.Equal(t, true, res.Plan["fallback"])
				assert.NotEmpty(t, res.Plan["plants"])
			} else {
				assert.Equal(t, tt.planResult, res.Plan)
			}
			logs.AssertExpectations(t)
			opt.AssertExpectations(t)
		})
	}
}

func TestOptimizationService_OptimizeAfterClose(t *testing.T) {
	logs := new(MockOptimizationLogRepository)
	expectLogCreate(logs)
	live := mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil })
	logs.On("Update", live, logWithStatus(model.OptimizationStatusError)).Return(nil).Once()
	opt := new(MockOptimizer)
	opt.On("Plan", mock.Anything, mock.Anything).Return(nil, optimizer.ErrUnavailable)

	svc := NewOptimizationService(opt, logs, nil, nil, nil)
	svc.Close()

	// the request outlived shutdown, so its context is already cancelled
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var res *OptimizationResult
	require.NotPanics(t, func() {
		var err error
		res, err = svc.Optimize(ctx, uuid.New(), optimizer.KindSystem, nil, map[string]interface{}{})
		require.NoError(t, err)
	})
	assert.True(t, res.Fallback)
	logs.AssertExpectations(t)
	assert.NotPanics(t, svc.Close)
}

func TestOptimizationService_OptimizeLogFailure(t *testing.T) {
	logs := new(MockOptimizationLogRepository)
	logs.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down"))
	svc := NewOptimizationService(new(MockOptimizer), logs, nil, nil, nil)
	defer svc.Close()

	_, err := svc.Optimize(context.Background(), uuid.New(), optimizer.KindSystem, nil, map[string]interface{}{})
	assert.Error(t, err)
}

func TestOptimizationService_Suggestions(t *testing.T) {
	ctx := context.Background()
	assets := newTestAssetServices(t, nil)
	_, err := assets["plants"].Create(ctx, plantPayload("Existing", 10, 20), nil)
	require.NoError(t, err)

	logs := new(MockOptimizationLogRepository)
	expectLogCreate(logs)
	logs.On("Update", mock.Anything, mock.Anything).Return(nil)

	var sent map[string]interface{}
	opt := new(MockOptimizer)
	opt.On("Plan", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			raw := args.Get(1).(json.RawMessage)
			require.NoError(t, json.Unmarshal(raw, &sent))
		}).
		Return(nil, optimizer.ErrUnavailable)

	svc := NewOptimizationService(opt, logs, assets, nil, nil)
	defer svc.Close()

	res, err := svc.Suggestions(ctx, uuid.New(), optimizer.KindPlants, SuggestionParams{Budget: 42})
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Len(t, res.Plan["suggestions"], 1)

	assert.Equal(t, "plants", sent["mode"])
	constraints := sent["constraints"].(map[string]interface{})
	assert.Equal(t, 42.0, constraints["budget"])
	assert.Equal(t, 100.0, constraints["target_capacity"])
	infra := sent["existing_infrastructure"].(map[string]interface{})
	plants := infra["plants"].([]interface{})
	require.Len(t, plants, 1)
	assert.Equal(t, "Existing", plants[0].(map[string]interface{})["name"])
	assert.Contains(t, infra, "zones")

	_, err = svc.Suggestions(ctx, uuid.New(), optimizer.Kind("hubs"), SuggestionParams{})
	assert.Equal(t, http.StatusBadRequest, apperrors.MapErrorToHTTP(err).StatusCode)
}

type stubRoleCounter struct {
	UserService
	roles map[model.Role]int64
}

func (s stubRoleCounter) CountByRole(context.Context) (map[model.Role]int64, error) {
	return s.roles, nil
}

func TestOptimizationService_Overview(t *testing.T) {
	ctx := context.Background()
	assets := newTestAssetServices(t, nil)
	_, err := assets["plants"].Create(ctx, plantPayload("A", 1, 1), nil)
	require.NoError(t, err)
	planned := plantPayload("B", 2, 2)
	planned["status"] = "planned"
	_, err = assets["plants"].Create(ctx, planned, nil)
	require.NoError(t, err)

	users := stubRoleCounter{roles: map[model.Role]int64{model.RoleAdmin: 1, model.RoleUser: 4}}
	svc := NewOptimizationService(new(MockOptimizer), new(MockOptimizationLogRepository), assets, users, nil)
	defer svc.Close()

	ov, err := svc.Overview(ctx)
	require.NoError(t, err)
	assert.Len(t, ov.Infrastructure, 7)
	assert.Equal(t, AssetCount{Count: 2, Existing: 1, Planned: 1, TotalCapacity: 10}, ov.Infrastructure["plants"])
	assert.Equal(t, int64(0), ov.Infrastructure["zones"].Count)
	assert.Equal(t, int64(4), ov.Users[model.RoleUser])
}

func TestOptimizationService_Metrics(t *testing.T) {
	logs := new(MockOptimizationLogRepository)
	logs.On("CountByStatus", mock.Anything).Return(map[model.OptimizationStatus]int64{
		model.OptimizationStatusSuccess: 3,
		model.OptimizationStatusError:   1,
		model.OptimizationStatusPending: 1,
	}, nil)
	svc := NewOptimizationService(new(MockOptimizer), logs, nil, nil, nil)
	defer svc.Close()

	m, err := svc.Metrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Metrics{Total: 5, Success: 3, Errors: 1, Pending: 1, SuccessRate: 0.75}, m)
}

func TestOptimizationService_Logs(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	logs := new(MockOptimizationLogRepository)
	svc := NewOptimizationService(new(MockOptimizer), logs, nil, nil, nil)
	defer svc.Close()

	_, err := svc.CreateLog(ctx, owner, LogInput{})
	assert.Equal(t, http.StatusBadRequest, apperrors.MapErrorToHTTP(err).StatusCode)

	expectLogCreate(logs)
	entry, err := svc.CreateLog(ctx, owner, LogInput{Kind: "manual", Input: json.RawMessage(`{"a":1}`)})
	require.NoError(t, err)
	assert.Equal(t, model.OptimizationStatusPending, entry.Status)

	logs.On("FindForUser", mock.Anything, entry.ID, owner).Return(entry, nil)
	logs.On("Update", mock.Anything, entry).Return(nil)

	bad := model.OptimizationStatus("done")
	_, err = svc.UpdateLog(ctx, owner, entry.ID, LogUpdate{Status: &bad})
	assert.Equal(t, http.StatusBadRequest, apperrors.MapErrorToHTTP(err).StatusCode)

	ok := model.OptimizationStatusSuccess
	updated, err := svc.UpdateLog(ctx, owner, entry.ID, LogUpdate{Status: &ok, Output: json.RawMessage(`{"b":2}`)})
	require.NoError(t, err)
	assert.Equal(t, model.OptimizationStatusSuccess, updated.Status)
	assert.JSONEq(t, `{"b":2}`, string(updated.Output))

	other := uuid.New()
	logs.On("FindForUser", mock.Anything, entry.ID, other).Return(nil, gorm.ErrRecordNotFound)
	_, err = svc.GetLog(ctx, other, entry.ID)
	assert.Equal(t, ErrLogNotFound, err)
}
