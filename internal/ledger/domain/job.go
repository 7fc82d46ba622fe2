package domain

import "time"

// Job is a unit of requested computation with an escrowed reward
type Job struct {
	ID              uint64          `json:"job_id"`
	Client          string          `json:"client"`
	Worker          string          `json:"worker"`
	Kind            ComputationKind `json:"computation_kind"`
	EncryptedInput  []byte          `json:"encrypted_input"`
	EncryptedResult []byte          `json:"encrypted_result,omitempty"`
	Reward          Amount          `json:"reward"`
	PlatformFee     Amount          `json:"platform_fee"`
	Payout          Amount          `json:"payout"`
	Status          JobStatus       `json:"status"`
	ResultDecrypted bool            `json:"result_decrypted"`
	CreatedAt       time.Time       `json:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// HasWorker reports whether the job has been assigned
func (j *Job) HasWorker() bool {
	return j.Worker != ""
}

// Clone returns a deep copy so callers can never mutate stored state
func (j *Job) Clone() *Job {
	c := *j
	if j.EncryptedInput != nil {
		c.EncryptedInput = append([]byte(nil), j.EncryptedInput...)
	}
	if j.EncryptedResult != nil {
		c.EncryptedResult = append([]byte(nil), j.EncryptedResult...)
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Worker is a staked actor eligible to claim jobs
type Worker struct {
	Address       string    `json:"address"`
	DisplayName   string    `json:"display_name"`
	Stake         Amount    `json:"stake"`
	Reputation    int64     `json:"reputation"`
	CompletedJobs int64     `json:"completed_jobs"`
	IsActive      bool      `json:"is_active"`
	RegisteredAt  time.Time `json:"registered_at"`
}

// Clone returns a copy of the worker record
func (w *Worker) Clone() *Worker {
	c := *w
	return &c
}
