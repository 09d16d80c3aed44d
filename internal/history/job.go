package history

import "time"

// Job records one submission of a wizard session to a printer
type Job struct {
	ID         string        `json:"id"`
	SessionID  string        `json:"session_id"`
	Address    string        `json:"address"`
	Documents  []JobDocument `json:"documents"`
	TotalPages int           `json:"total_pages"`
	TotalPrice int           `json:"total_price"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	CreatedAt  time.Time     `json:"created_at"`
}

// JobDocument is the per-document outcome of a job
type JobDocument struct {
	Name       string `json:"name"`
	Pages      int    `json:"pages"`
	OK         bool   `json:"ok"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}
