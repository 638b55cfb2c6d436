package scheduler

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Task type names.
const (
	TaskLeadAudit    = "leads.audit"
	TaskReplayFailed = "leads.replay_failed"
)

// AuditPayload is the payload of a leads.audit task.
type AuditPayload struct {
	Mode string `json:"mode"`
	Days int    `json:"days,omitempty"`
}

func NewLeadAuditTask(payload AuditPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLeadAudit, data), nil
}

func ParseLeadAuditPayload(task *asynq.Task) (AuditPayload, error) {
	var payload AuditPayload
	if len(task.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return AuditPayload{}, fmt.Errorf("decode %s payload: %w", TaskLeadAudit, err)
	}
	return payload, nil
}

func NewReplayFailedTask() *asynq.Task {
	return asynq.NewTask(TaskReplayFailed, nil)
}
