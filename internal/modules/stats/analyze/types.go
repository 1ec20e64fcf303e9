package analyze

import "time"

const defaultCleanDays = 90

// rangeQuery carries the optional date window and path filter accepted by
// the list and total endpoints.
type rangeQuery struct {
	From *time.Time `form:"from" time_format:"2006-01-02"`
	To   *time.Time `form:"to"   time_format:"2006-01-02"`
	Path string     `form:"path"`
}

// ipPV is one histogram bucket: how many distinct visitors and how many
// requests landed in it.
type ipPV struct {
	IP int64 `json:"ip"`
	PV int64 `json:"pv"`
}

// totalStat is the all-time counter pair shown on the dashboard.
type totalStat struct {
	CallTime int64 `json:"call_time"` // requests recorded
	UV       int64 `json:"uv"`        // distinct visitor IPs
}

// pathCount is one row of a GROUP BY path aggregation.
type pathCount struct {
	Path  string `json:"path"`
	Count int64  `json:"count"`
}

// analyzeLite is the narrow projection the histogram queries select.
type analyzeLite struct {
	IP string    `gorm:"column:ip"`
	At time.Time `gorm:"column:timestamp"`
}
