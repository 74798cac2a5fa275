package service

import (
	"context"

	"github.com/emzola/circulation/data"
)

const dashboardCacheKey = "dashboard"

type reports interface {
	GetDashboardStats(ctx context.Context) (*data.DashboardStats, error)
}

// GetDashboardStats returns circulation statistics, served from cache while fresh.
func (s *service) GetDashboardStats(ctx context.Context) (*data.DashboardStats, error) {
	caching := s.config.Cache.DashboardTTL > 0
	if caching {
		if item := s.dashboard.Get(dashboardCacheKey); item != nil {
			return item.Value(), nil
		}
	}
	stats, err := s.repo.GetDashboardStats(ctx, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if caching {
		s.dashboard.Set(dashboardCacheKey, stats, s.config.Cache.DashboardTTL)
	}
	return stats, nil
}

// invalidateDashboard drops cached statistics after a write.
func (s *service) invalidateDashboard() {
	s.dashboard.Delete(dashboardCacheKey)
}
