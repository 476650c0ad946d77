package domain

import "time"

// CheckResult is one probe execution. Results are append-only.
type CheckResult struct {
	ID             string         `json:"id" bson:"_id"`
	MonitorID      string         `json:"monitor_id" bson:"monitor_id"`
	Status         Status         `json:"status" bson:"status"`
	ResponseTimeMS *float64       `json:"response_time_ms" bson:"response_time"` // pointer to allow nil
	StatusCode     *int           `json:"status_code" bson:"status_code"`        // pointer to allow nil
	Error          *string        `json:"error" bson:"error"`
	Details        map[string]any `json:"details" bson:"details"`
	Timestamp      time.Time      `json:"timestamp" bson:"timestamp"`
}

// CheckUpdate is the live-status write the executor performs after a check.
type CheckUpdate struct {
	Status             Status
	LastCheck          time.Time
	LastResponseTimeMS *float64
	UptimePercentage   float64
}
