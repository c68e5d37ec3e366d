package audit

import "time"

// Record is one audit-log row. RequestArgs and ResponseBody hold arbitrary
// JSON-shaped values; persistence marshals them into jsonb columns.
type Record struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	Username       string    `json:"username"`
	Module         string    `json:"module"`
	Summary        string    `json:"summary"`
	Method         string    `json:"method"`
	Path           string    `json:"path"`
	Status         int       `json:"status"`
	ResponseTimeMS int64     `json:"response_time"`
	RequestArgs    any       `json:"request_args"`
	ResponseBody   any       `json:"response_body"`
	IPAddress      string    `json:"ip_address"`
	UserAgent      string    `json:"user_agent"`
	OperationType  string    `json:"operation_type"`
	LogLevel       string    `json:"log_level"`
	IsDeleted      bool      `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"-"`
}

// OperationTypeFor maps an HTTP method to the operation label shown in the
// audit console. Labels match the upstream admin UI, which is Chinese.
func OperationTypeFor(method string) string {
	switch method {
	case "GET":
		return "查询"
	case "POST":
		return "创建"
	case "PUT":
		return "更新"
	case "DELETE":
		return "删除"
	default:
		return "其他"
	}
}

// LogLevelFor derives the record's severity from the final status code alone.
func LogLevelFor(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "info"
	case status >= 300 && status < 400:
		return "warning"
	default:
		return "error"
	}
}

// ListFilter narrows audit-log queries. Zero values mean "no constraint";
// string fields match as case-insensitive substrings.
type ListFilter struct {
	Username      string
	Module        string
	Method        string
	Summary       string
	Status        int
	IPAddress     string
	OperationType string
	LogLevel      string
	Since         time.Time
	Until         time.Time
}
