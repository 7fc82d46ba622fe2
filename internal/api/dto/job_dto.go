package dto

// CreateJobRequest posts a new job. EncryptedInput is base64 and Reward is
// a decimal integer in the smallest unit.
type CreateJobRequest struct {
	ComputationKind string `json:"computation_kind" binding:"required"`
	EncryptedInput  string `json:"encrypted_input" binding:"required"`
	Reward          string `json:"reward" binding:"required"`
}

type SubmitResultRequest struct {
	EncryptedResult string `json:"encrypted_result" binding:"required"`
}

type ListJobsRequest struct {
	Client   string `form:"client"`
	Worker   string `form:"worker"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID           uint64 `json:"job_id"`
	Client          string `json:"client"`
	Worker          string `json:"worker,omitempty"`
	ComputationKind string `json:"computation_kind"`
	KindName        string `json:"kind_name"`
	EncryptedInput  string `json:"encrypted_input"`
	EncryptedResult string `json:"encrypted_result,omitempty"`
	Reward          string `json:"reward"`
	PlatformFee     string `json:"platform_fee"`
	Payout          string `json:"payout"`
	Status          string `json:"status"`
	ResultDecrypted bool   `json:"result_decrypted"`
	CreatedAt       string `json:"created_at"`
	CompletedAt     string `json:"completed_at,omitempty"`
}

type KindDTO struct {
	Kind              string `json:"kind"`
	Name              string `json:"name"`
	ExpectedLatencyMS int64  `json:"expected_latency_ms"`
}
