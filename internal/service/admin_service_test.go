package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"h2grid/internal/model"
)

type stubUserLister struct {
	UserService
	users []model.User
}

func (s stubUserLister) AllUsers(context.Context) ([]model.User, error) {
	return s.users, nil
}

func TestAdminService_Export(t *testing.T) {
	ctx := context.Background()
	assets := newTestAssetServices(t, nil)
	_, err := assets["plants"].Create(ctx, plantPayload("Export Me", 10, 20), nil)
	require.NoError(t, err)

	users := stubUserLister{users: []model.User{{ID: uuid.New(), Username: "alice", PasswordHash: "secret-hash", Role: model.RoleAdmin}}}
	svc := NewAdminService(assets, users, nil, nil)

	exp, err := svc.Export(ctx, "root", false)
	require.NoError(t, err)
	assert.Nil(t, exp.Users)
	assert.Len(t, exp.Assets["plants"], 1)

	exp, err = svc.Export(ctx, "root", true)
	require.NoError(t, err)

	raw, err := json.Marshal(exp)
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "root", doc["exportBy"])
	plants := doc["plants"].([]interface{})
	require.Len(t, plants, 1)
	assert.Equal(t, "Export Me", plants[0].(map[string]interface{})["name"])
	assert.NotContains(t, string(raw), "secret-hash")

	var buf bytes.Buffer
	require.NoError(t, exp.WriteCSV(&buf))
	out := buf.String()
	assert.Contains(t, out, "plants\n")
	assert.Contains(t, out, "Export Me")
	assert.Contains(t, out, "users\n")
	assert.True(t, strings.Index(out, "plants") < strings.Index(out, "users"))
}

func TestAdminService_Import(t *testing.T) {
	ctx := context.Background()
	assets := newTestAssetServices(t, nil)
	svc := NewAdminService(assets, nil, nil, nil)

	report := svc.Import(ctx, map[string][]map[string]interface{}{
		"plants":     {plantPayload("P1", 1, 1), plantPayload("P2", 2, 2)},
		"storages":   {{"name": "S1", "location": point(3, 3), "capacityTonnes": 10.0}, {"name": "S2"}},
		"refineries": {{"name": "R1"}},
	}, ImportOptions{}, nil)

	assert.Equal(t, ImportCounts{Created: 2}, report.Results["plants"])
	assert.Equal(t, 1, report.Results["storages"].Created)
	assert.Equal(t, 1, report.Results["storages"].Errors)
	assert.Contains(t, report.Errors, "Unknown asset type: refineries")
	assert.Len(t, report.Errors, 2)

	// best effort: earlier writes stay committed
	all, err := assets["storages"].List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAdminService_Health(t *testing.T) {
	ok := func(context.Context) error { return nil }
	fail := func(context.Context) error { return errors.New("unreachable") }

	tests := []struct {
		name   string
		checks []HealthCheck
		want   HealthStatus
	}{
		{
			name:   "all healthy",
			checks: []HealthCheck{{Name: "database", Critical: true, Check: ok}, {Name: "redis", Check: ok}},
			want:   HealthHealthy,
		},
		{
			name:   "optional dependency down",
			checks: []HealthCheck{{Name: "database", Critical: true, Check: ok}, {Name: "optimizer", Check: fail}},
			want:   HealthWarning,
		},
		{
			name:   "database down",
			checks: []HealthCheck{{Name: "database", Critical: true, Check: fail}, {Name: "optimizer", Check: fail}},
			want:   HealthCritical,
		},
		{
			name:   "disabled is not a failure",
			checks: []HealthCheck{{Name: "database", Critical: true, Check: ok}, {Name: "postgis", Disabled: true}},
			want:   HealthHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := NewAdminService(nil, nil, tt.checks, nil).Health(context.Background())
			assert.Equal(t, tt.want, report.Status)
			assert.Len(t, report.Services, len(tt.checks))
			assert.NotEmpty(t, report.Metrics.Uptime)
		})
	}
}
