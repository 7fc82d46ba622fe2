package dto

import (
	"encoding/base64"
	"time"

	"github.com/Panchu11/obscura/internal/ledger/domain"
)

func FromJob(job *domain.Job) JobDTO {
	out := JobDTO{
		JobID:           job.ID,
		Client:          job.Client,
		Worker:          job.Worker,
		ComputationKind: string(job.Kind),
		KindName:        job.Kind.DisplayName(),
		EncryptedInput:  base64.StdEncoding.EncodeToString(job.EncryptedInput),
		Reward:          job.Reward.String(),
		PlatformFee:     job.PlatformFee.String(),
		Payout:          job.Payout.String(),
		Status:          string(job.Status),
		ResultDecrypted: job.ResultDecrypted,
		CreatedAt:       job.CreatedAt.Format(time.RFC3339),
	}
	if len(job.EncryptedResult) > 0 {
		out.EncryptedResult = base64.StdEncoding.EncodeToString(job.EncryptedResult)
	}
	if job.CompletedAt != nil {
		out.CompletedAt = job.CompletedAt.Format(time.RFC3339)
	}
	return out
}

func FromWorker(w *domain.Worker) WorkerDTO {
	return WorkerDTO{
		Address:       w.Address,
		Name:          w.DisplayName,
		Stake:         w.Stake.String(),
		Reputation:    w.Reputation,
		CompletedJobs: w.CompletedJobs,
		IsActive:      w.IsActive,
		RegisteredAt:  w.RegisteredAt.Format(time.RFC3339),
	}
}

func FromEvent(ev *domain.Event) EventDTO {
	amount := "0"
	if !ev.Amount.IsNil() {
		amount = ev.Amount.String()
	}
	return EventDTO{
		Seq:             ev.Seq,
		Type:            string(ev.Type),
		JobID:           ev.JobID,
		Actor:           ev.Actor,
		ComputationKind: string(ev.Kind),
		Amount:          amount,
		CreatedAt:       ev.CreatedAt.Format(time.RFC3339Nano),
		Published:       ev.PublishedAt != nil,
	}
}
