package dto

type ListEventsRequest struct {
	AfterSeq uint64 `form:"after_seq"`
	PageSize int    `form:"page_size"`
}

type ListEventsResponse struct {
	Events       []EventDTO `json:"events"`
	NextAfterSeq uint64     `json:"next_after_seq"`
}

type EventDTO struct {
	Seq             uint64 `json:"seq"`
	Type            string `json:"type"`
	JobID           uint64 `json:"job_id,omitempty"`
	Actor           string `json:"actor"`
	ComputationKind string `json:"computation_kind,omitempty"`
	Amount          string `json:"amount"`
	CreatedAt       string `json:"created_at"`
	Published       bool   `json:"published"`
}

type BalanceResponse struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type PlatformBalancesResponse struct {
	Owner    string `json:"owner"`
	Platform string `json:"platform"`
	Escrow   string `json:"escrow"`
	Stake    string `json:"stake"`
	FeeBps   int64  `json:"fee_bps"`
	MinStake string `json:"min_stake"`
}

type WithdrawResponse struct {
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Class string `json:"class,omitempty"`
}
