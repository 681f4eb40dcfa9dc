package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "h2grid/internal/errors"
	"h2grid/internal/repository"
)

// MockPostGISRepository is a mock implementation of repository.PostGISRepository.
type MockPostGISRepository struct {
	mock.Mock
}

func (m *MockPostGISRepository) AssetsInPolygon(ctx context.Context, table string, polygon []byte) ([]map[string]any, error) {
	args := m.Called(ctx, table, polygon)
	rows, _ := args.Get(0).([]map[string]any)
	return rows, args.Error(1)
}

func (m *MockPostGISRepository) NearestAssets(ctx context.Context, table string, lng, lat float64, limit int) ([]map[string]any, error) {
	args := m.Called(ctx, table, lng, lat, limit)
	rows, _ := args.Get(0).([]map[string]any)
	return rows, args.Error(1)
}

func (m *MockPostGISRepository) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

var square = json.RawMessage(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`)

func TestPostGISService_AssetsInPolygon(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		table      string
		polygon    json.RawMessage
		repoRows   []map[string]any
		repoErr    error
		callsRepo  bool
		wantStatus int
		wantLen    int
	}{
		{name: "rows", table: "plants", polygon: square, repoRows: []map[string]any{{"name": "A"}}, callsRepo: true, wantLen: 1},
		{name: "no rows", table: "plants", polygon: square, callsRepo: true, wantLen: 0},
		{name: "unknown table", table: "users", polygon: square, wantStatus: http.StatusBadRequest},
		{name: "not a polygon", table: "plants", polygon: json.RawMessage(`{"type":"Point","coordinates":[1,2]}`), wantStatus: http.StatusBadRequest},
		{name: "disabled", table: "hubs", polygon: square, repoErr: repository.ErrPostGISDisabled, callsRepo: true, wantStatus: http.StatusServiceUnavailable},
		{name: "query failure", table: "hubs", polygon: square, repoErr: errors.New("relation does not exist"), callsRepo: true, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockPostGISRepository)
			if tt.callsRepo {
				repo.On("AssetsInPolygon", ctx, tt.table, []byte(tt.polygon)).Return(tt.repoRows, tt.repoErr)
			}
			svc := NewPostGISService(repo, nil)

			rows, err := svc.AssetsInPolygon(ctx, tt.table, tt.polygon)
			if tt.wantStatus != 0 {
				require.Error(t, err)
				assert.Equal(t, tt.wantStatus, apperrors.MapErrorToHTTP(err).StatusCode)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, rows)
				assert.Len(t, rows, tt.wantLen)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestPostGISService_NearestAssetsDefaultLimit(t *testing.T) {
	ctx := context.Background()
	repo := new(MockPostGISRepository)
	repo.On("NearestAssets", ctx, "plants", 10.0, 20.0, 10).Return([]map[string]any{{"dist": 0.5}}, nil)

	rows, err := NewPostGISService(repo, nil).NearestAssets(ctx, "plants", 10, 20, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	repo.AssertExpectations(t)

	_, err = NewPostGISService(repo, nil).NearestAssets(ctx, "storages", 10, 20, 5)
	assert.ErrorIs(t, err, ErrInvalidAssetTable)
}
