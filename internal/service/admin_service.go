package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"h2grid/internal/logger"
	"h2grid/internal/model"
)

// HealthStatus is the state of one dependency or of the whole system.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
	HealthDisabled HealthStatus = "disabled"
)

// HealthCheck probes one dependency. A failing critical check makes the
// whole system critical, any other failure only a warning.
type HealthCheck struct {
	Name     string
	Critical bool
	// Disabled marks an optional dependency that is not configured.
	Disabled bool
	Check    func(ctx context.Context) error
}

// ServiceHealth is the outcome of one check.
type ServiceHealth struct {
	Status       HealthStatus `json:"status"`
	ResponseTime string       `json:"responseTime,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// SystemHealth is the detailed health report.
type SystemHealth struct {
	Status    HealthStatus             `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Services  map[string]ServiceHealth `json:"services"`
	Metrics   RuntimeMetrics           `json:"systemMetrics"`
}

// RuntimeMetrics describes the running process.
type RuntimeMetrics struct {
	Uptime     string `json:"uptime"`
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heapAlloc"`
	Sys        uint64 `json:"sys"`
}

// Export is a snapshot of the stored infrastructure.
type Export struct {
	Assets     map[string][]model.Asset
	Users      []model.User
	Timestamp  time.Time
	ExportedBy string
}

// MarshalJSON flattens the asset lists next to the metadata.
func (e *Export) MarshalJSON() ([]byte, error) {
	doc := make(map[string]interface{}, len(e.Assets)+3)
	for route, assets := range e.Assets {
		doc[route] = assets
	}
	if e.Users != nil {
		doc["users"] = e.Users
	}
	doc["exportTimestamp"] = e.Timestamp.UTC().Format(time.RFC3339)
	doc["exportBy"] = e.ExportedBy
	return json.Marshal(doc)
}

// WriteCSV writes one section per asset type, then the users when present.
func (e *Export) WriteCSV(out io.Writer) error {
	w := csv.NewWriter(out)
	routes := make([]string, 0, len(e.Assets))
	for route := range e.Assets {
		routes = append(routes, route)
	}
	sort.Strings(routes)

	for _, route := range routes {
		if err := w.Write([]string{route}); err != nil {
			return err
		}
		_ = w.Write([]string{"id", "name", "status", "owner", "geometry", "attributes", "createdAt", "updatedAt"})
		for _, a := range e.Assets[route] {
			attrs, _ := json.Marshal(a.Attributes)
			_ = w.Write([]string{
				a.ID.String(), a.Name, string(a.Status), a.Owner,
				string(a.Geometry), string(attrs),
				a.CreatedAt.UTC().Format(time.RFC3339), a.UpdatedAt.UTC().Format(time.RFC3339),
			})
		}
		_ = w.Write([]string{})
	}

	if e.Users != nil {
		_ = w.Write([]string{"users"})
		_ = w.Write([]string{"id", "username", "fullname", "email", "role", "isVerified", "isActive", "createdAt"})
		for _, u := range e.Users {
			_ = w.Write([]string{
				u.ID.String(), u.Username, u.Fullname, u.Email, string(u.Role),
				fmt.Sprint(u.IsVerified), fmt.Sprint(u.IsActive), u.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
	}
	w.Flush()
	return w.Error()
}

// ImportReport collects per-type counts and every per-item error message.
type ImportReport struct {
	Results map[string]ImportCounts `json:"results"`
	Errors  []string                `json:"errors"`
}

// AdminService covers the system-wide administration operations.
type AdminService interface {
	Export(ctx context.Context, exportedBy string, includeUsers bool) (*Export, error)
	Import(ctx context.Context, data map[string][]map[string]interface{}, opts ImportOptions, createdBy *uuid.UUID) *ImportReport
	Health(ctx context.Context) *SystemHealth
}

type adminService struct {
	assets  map[string]AssetService
	users   UserService
	checks  []HealthCheck
	log     *logger.Logger
	started time.Time
	now     func() time.Time
}

// NewAdminService builds the admin service. checks are run in parallel by Health.
func NewAdminService(assets map[string]AssetService, users UserService, checks []HealthCheck, log *logger.Logger) AdminService {
	if log == nil {
		log = logger.Nop()
	}
	return &adminService{
		assets:  assets,
		users:   users,
		checks:  checks,
		log:     log,
		started: time.Now(),
		now:     time.Now,
	}
}

func (s *adminService) Export(ctx context.Context, exportedBy string, includeUsers bool) (*Export, error) {
	var mu sync.Mutex
	exp := &Export{
		Assets:     make(map[string][]model.Asset, len(s.assets)),
		Timestamp:  s.now(),
		ExportedBy: exportedBy,
	}
	g, gctx := errgroup.WithContext(ctx)
	for route, svc := range s.assets {
		route, svc := route, svc
		g.Go(func() error {
			assets, err := svc.List(gctx)
			if err != nil {
				return err
			}
			mu.Lock()
			exp.Assets[route] = assets
			mu.Unlock()
			return nil
		})
	}
	if includeUsers {
		g.Go(func() error {
			users, err := s.users.AllUsers(gctx)
			if err != nil {
				return fmt.Errorf("export users: %w", err)
			}
			mu.Lock()
			exp.Users = users
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return exp, nil
}

// Import runs the best-effort import type by type. Unknown keys are
// reported and skipped.
func (s *adminService) Import(ctx context.Context, data map[string][]map[string]interface{}, opts ImportOptions, createdBy *uuid.UUID) *ImportReport {
	report := &ImportReport{Results: make(map[string]ImportCounts, len(data)), Errors: []string{}}
	routes := make([]string, 0, len(data))
	for route := range data {
		routes = append(routes, route)
	}
	sort.Strings(routes)

	for _, route := range routes {
		svc, ok := s.assets[route]
		if !ok {
			report.Errors = append(report.Errors, "Unknown asset type: "+route)
			continue
		}
		counts := svc.Import(ctx, data[route], opts, createdBy)
		report.Errors = append(report.Errors, counts.Details...)
		counts.Details = nil
		report.Results[route] = counts
	}
	s.log.Info("data import completed", "types", len(report.Results), "errors", len(report.Errors))
	return report
}

// Health probes every dependency concurrently.
func (s *adminService) Health(ctx context.Context) *SystemHealth {
	report := &SystemHealth{
		Status:    HealthHealthy,
		Timestamp: s.now(),
		Services:  make(map[string]ServiceHealth, len(s.checks)),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, check := range s.checks {
		check := check
		if check.Disabled || check.Check == nil {
			mu.Lock()
			report.Services[check.Name] = ServiceHealth{Status: HealthDisabled}
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := check.Check(ctx)
			result := ServiceHealth{Status: HealthHealthy, ResponseTime: time.Since(start).Round(time.Millisecond).String()}
			if err != nil {
				result.Status = HealthWarning
				if check.Critical {
					result.Status = HealthCritical
				}
				result.Error = err.Error()
				s.log.Warn("health check failed", "service", check.Name, "error", err)
			}
			mu.Lock()
			report.Services[check.Name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, svc := range report.Services {
		switch {
		case svc.Status == HealthCritical:
			report.Status = HealthCritical
		case svc.Status == HealthWarning && report.Status == HealthHealthy:
			report.Status = HealthWarning
		}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	report.Metrics = RuntimeMetrics{
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  mem.HeapAlloc,
		Sys:        mem.Sys,
	}
	return report
}
