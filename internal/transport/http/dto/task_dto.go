package dto

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/stackgate/backend/internal/core/ports"
	"github.com/stackgate/backend/internal/domain"
)

const actionDataKey = "action_data"

var ErrInvalidBody = errors.New("request body must be a JSON object")

// ParseTaskInput splits a request body into the shared payload and the
// optional per-action overrides under "action_data".
func ParseTaskInput(body []byte) (ports.TaskInput, error) {
	raw := map[string]interface{}{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &raw); err != nil {
			return ports.TaskInput{}, ErrInvalidBody
		}
	}
	in := ports.TaskInput{Data: domain.JSONB{}}
	for k, v := range raw {
		if k != actionDataKey {
			in.Data[k] = v
			continue
		}
		overrides, ok := v.(map[string]interface{})
		if !ok {
			return ports.TaskInput{}, ErrInvalidBody
		}
		in.ActionData = make(map[string]domain.JSONB, len(overrides))
		for action, data := range overrides {
			fields, ok := data.(map[string]interface{})
			if !ok {
				return ports.TaskInput{}, ErrInvalidBody
			}
			in.ActionData[action] = domain.JSONB(fields)
		}
	}
	return in, nil
}

type ApproveRequest struct {
	Approved *bool `json:"approved"`
}

type CreateTaskResponse struct {
	Notes []string `json:"notes"`
}

type UpdateTaskResponse struct {
	Notes []string `json:"notes"`
	Task  string   `json:"task"`
}

type ActionResponse struct {
	ActionName string       `json:"action_name"`
	Data       domain.JSONB `json:"data"`
	Valid      bool         `json:"valid"`
	NeedToken  bool         `json:"need_token"`
	State      string       `json:"state"`
}

type TaskResponse struct {
	UUID        string                `json:"uuid"`
	TaskType    string                `json:"task_type"`
	ProjectID   string                `json:"project_id"`
	IPAddress   string                `json:"ip_address"`
	Request     domain.RequestContext `json:"keystone_user"`
	ApprovedBy  domain.RequestContext `json:"approved_by"`
	Approved    bool                  `json:"approved"`
	Completed   bool                  `json:"completed"`
	Cancelled   bool                  `json:"cancelled"`
	Valid       bool                  `json:"valid"`
	CreatedOn   time.Time             `json:"created_on"`
	ApprovedOn  *time.Time            `json:"approved_on"`
	CompletedOn *time.Time            `json:"completed_on"`
	Actions     []ActionResponse      `json:"actions"`
}

func TaskToResponse(t *domain.Task) TaskResponse {
	resp := TaskResponse{
		UUID:        t.ID,
		TaskType:    t.TaskType,
		ProjectID:   t.ProjectID,
		IPAddress:   t.IPAddress,
		Request:     t.Request,
		ApprovedBy:  t.ApprovedBy,
		Approved:    t.Approved,
		Completed:   t.Completed,
		Cancelled:   t.Cancelled,
		Valid:       t.Valid(),
		CreatedOn:   t.CreatedOn,
		ApprovedOn:  t.ApprovedOn,
		CompletedOn: t.CompletedOn,
		Actions:     make([]ActionResponse, 0, len(t.Actions)),
	}
	for _, a := range t.Actions {
		resp.Actions = append(resp.Actions, ActionResponse{
			ActionName: a.ActionType,
			Data:       a.Input,
			Valid:      a.Valid,
			NeedToken:  a.NeedToken,
			State:      string(a.State),
		})
	}
	return resp
}

type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
}

func TasksToResponse(tasks []domain.Task) TaskListResponse {
	out := TaskListResponse{Tasks: make([]TaskResponse, 0, len(tasks))}
	for i := range tasks {
		out.Tasks = append(out.Tasks, TaskToResponse(&tasks[i]))
	}
	return out
}

type StatusResponse struct {
	LastCreatedTask    *TaskResponse         `json:"last_created_task"`
	LastCompletedTask  *TaskResponse         `json:"last_completed_task"`
	ErrorNotifications []domain.Notification `json:"error_notifications"`
}

func StatusToResponse(s *ports.Status) StatusResponse {
	resp := StatusResponse{ErrorNotifications: s.ErrorNotifications}
	if resp.ErrorNotifications == nil {
		resp.ErrorNotifications = []domain.Notification{}
	}
	if s.LastCreatedTask != nil {
		t := TaskToResponse(s.LastCreatedTask)
		resp.LastCreatedTask = &t
	}
	if s.LastCompletedTask != nil {
		t := TaskToResponse(s.LastCompletedTask)
		resp.LastCompletedTask = &t
	}
	return resp
}
