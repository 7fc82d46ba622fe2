package dto

// RegisterWorkerRequest registers the caller as a worker. Stake is a decimal
// integer in the smallest unit.
type RegisterWorkerRequest struct {
	Name  string `json:"name"`
	Stake string `json:"stake" binding:"required"`
}

type ListWorkersRequest struct {
	ActiveOnly bool   `form:"active_only"`
	PageSize   int    `form:"page_size"`
	Cursor     string `form:"cursor"`
}

type ListWorkersResponse struct {
	Workers    []WorkerDTO `json:"workers"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

type WorkerDTO struct {
	Address       string `json:"address"`
	Name          string `json:"name"`
	Stake         string `json:"stake"`
	Reputation    int64  `json:"reputation"`
	CompletedJobs int64  `json:"completed_jobs"`
	IsActive      bool   `json:"is_active"`
	RegisteredAt  string `json:"registered_at"`
}
