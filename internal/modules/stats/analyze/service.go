package analyze

import (
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/shiv669/echo-core-go/internal/models"
)

// Service answers analytics queries and owns the retention cleanup used by
// both the DELETE endpoint and the cleanup_analytics cron job.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// CleanOlderThan removes analytics rows older than the given number of days
// and reports how many were deleted.
func (s *Service) CleanOlderThan(days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	result := s.db.Where("timestamp < ?", cutoff).Delete(&models.VisitModel{})
	return result.RowsAffected, result.Error
}

// ipAndPVByRange buckets rows by hour ("15") or date ("2006-01-02") and counts
// unique IPs plus page views per bucket.
func (s *Service) ipAndPVByRange(from, to time.Time, granularity string) (map[string]ipPV, error) {
	var rows []analyzeLite
	if err := s.db.Model(&models.VisitModel{}).
		Select("ip, timestamp").
		Where("timestamp >= ? AND timestamp <= ?", from, to).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	type counter struct {
		pv  int64
		ips map[string]struct{}
	}
	counts := map[string]*counter{}
	for _, row := range rows {
		ts := row.At.In(time.Local)
		var key string
		switch granularity {
		case "hour":
			key = ts.Format("15")
		case "date":
			key = ts.Format("2006-01-02")
		default:
			key = ts.Format(time.RFC3339)
		}

		c, ok := counts[key]
		if !ok {
			c = &counter{ips: map[string]struct{}{}}
			counts[key] = c
		}
		c.pv++
		if row.IP != "" {
			c.ips[row.IP] = struct{}{}
		}
	}

	out := make(map[string]ipPV, len(counts))
	for key, val := range counts {
		out[key] = ipPV{IP: int64(len(val.ips)), PV: val.pv}
	}
	return out, nil
}

func (s *Service) topPathsByRange(from, to time.Time, limit int) ([]pathCount, error) {
	var paths []pathCount
	err := s.db.Model(&models.VisitModel{}).
		Select("path, COUNT(*) as count").
		Where("timestamp >= ? AND timestamp <= ?", from, to).
		Where("path <> ''").
		Group("path").
		Order("count DESC").
		Limit(limit).
		Scan(&paths).Error
	return paths, err
}

func (s *Service) todayIPs(from, to time.Time) ([]string, error) {
	var ips []string
	if err := s.db.Model(&models.VisitModel{}).
		Distinct("ip").
		Where("timestamp >= ? AND timestamp <= ?", from, to).
		Where("ip <> ''").
		Pluck("ip", &ips).Error; err != nil {
		return nil, err
	}
	sort.Strings(ips)
	return ips, nil
}

func (s *Service) totalStats() (totalStat, error) {
	var callTime int64
	if err := s.db.Model(&models.VisitModel{}).Count(&callTime).Error; err != nil {
		return totalStat{}, err
	}

	var uv int64
	if err := s.db.Model(&models.VisitModel{}).Distinct("ip").Count(&uv).Error; err != nil {
		return totalStat{}, err
	}
	return totalStat{CallTime: callTime, UV: uv}, nil
}

func beginningOfDay(t time.Time) time.Time {
	local := t.In(time.Local)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

func beginningOfWeek(t time.Time) time.Time {
	dayStart := beginningOfDay(t)
	return dayStart.AddDate(0, 0, -int(dayStart.Weekday()))
}
