package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// ==================== ENUMS ====================

type ActionState string

const (
	ActionStateNew       ActionState = "new"
	ActionStateValidated ActionState = "validated"
	ActionStateExecuted  ActionState = "executed"
	ActionStateComplete  ActionState = "complete"
)

// ==================== JSON TYPES ====================

type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan JSONB: invalid type")
	}
	return json.Unmarshal(bytes, j)
}

func (JSONB) GormDataType() string { return "json" }

func (JSONB) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	return jsonColumnType(db)
}

// Clone copies the top level so callers can replace keys without aliasing.
func (j JSONB) Clone() JSONB {
	if j == nil {
		return nil
	}
	out := make(JSONB, len(j))
	for k, v := range j {
		out[k] = v
	}
	return out
}

// Has reports whether key is present with a non-nil value.
func (j JSONB) Has(key string) bool {
	v, ok := j[key]
	return ok && v != nil
}

func jsonColumnType(db *gorm.DB) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "JSONB"
	case "mysql":
		return "JSON"
	}
	return "TEXT"
}

// ==================== REQUEST CONTEXT ====================

// RequestContext is the caller snapshot taken when a task is created.
type RequestContext struct {
	Roles           []string `json:"roles"`
	ProjectID       string   `json:"project_id,omitempty"`
	ProjectDomainID string   `json:"project_domain_id,omitempty"`
	UserID          string   `json:"user_id,omitempty"`
	Username        string   `json:"username,omitempty"`
	IPAddress       string   `json:"ip_address,omitempty"`
}

func (r RequestContext) HasRole(roles ...string) bool {
	for _, have := range r.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

func (r RequestContext) Authenticated() bool {
	return r.UserID != ""
}

func (r RequestContext) Value() (driver.Value, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r *RequestContext) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*r = RequestContext{}
		return nil
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	}
	return errors.New("failed to scan RequestContext: invalid type")
}

func (RequestContext) GormDataType() string { return "json" }

func (RequestContext) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	return jsonColumnType(db)
}

// ==================== ENTITIES ====================

type Task struct {
	ID          string         `gorm:"primaryKey;size:36" json:"uuid"`
	TaskType    string         `gorm:"size:100;not null;index" json:"task_type"`
	ProjectID   string         `gorm:"size:64;index" json:"project_id"`
	IPAddress   string         `gorm:"size:45" json:"ip_address"`
	Request     RequestContext `json:"request_context"`
	ApprovedBy  RequestContext `json:"approved_by"`
	Approved    bool           `gorm:"not null;default:false;index" json:"approved"`
	Completed   bool           `gorm:"not null;default:false;index" json:"completed"`
	Cancelled   bool           `gorm:"not null;default:false;index" json:"cancelled"`
	CreatedOn   time.Time      `gorm:"not null;index" json:"created_on"`
	ApprovedOn  *time.Time     `json:"approved_on"`
	CompletedOn *time.Time     `json:"completed_on"`
	Actions     []Action       `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE" json:"actions"`
}

// Valid is the logical AND of every action's validity.
func (t *Task) Valid() bool {
	if len(t.Actions) == 0 {
		return false
	}
	for i := range t.Actions {
		if !t.Actions[i].Valid {
			return false
		}
	}
	return true
}

// Terminal reports whether the task accepts no further transitions.
func (t *Task) Terminal() bool {
	return t.Completed || t.Cancelled
}

// NeedsToken reports whether any action is waiting on deferred input.
func (t *Task) NeedsToken() bool {
	for i := range t.Actions {
		if t.Actions[i].NeedToken {
			return true
		}
	}
	return false
}

type Action struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	TaskID     string      `gorm:"size:36;not null;index" json:"task"`
	Order      int         `gorm:"column:action_order;not null" json:"order"`
	ActionType string      `gorm:"size:100;not null" json:"action_type"`
	Input      JSONB       `json:"data"`
	Derived    JSONB       `json:"derived,omitempty"`
	State      ActionState `gorm:"size:20;not null;default:'new'" json:"state"`
	Valid      bool        `gorm:"not null;default:false" json:"valid"`
	NeedToken  bool        `gorm:"not null;default:false" json:"need_token"`
	Cache      JSONB       `json:"cache"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

type Token struct {
	Token     string    `gorm:"primaryKey;size:64" json:"token"`
	TaskID    string    `gorm:"size:36;not null;index" json:"task"`
	TaskType  string    `gorm:"size:100" json:"task_type"`
	Expires   time.Time `gorm:"not null;index" json:"expires"`
	CreatedOn time.Time `gorm:"not null" json:"created_on"`
}

func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.Expires)
}

type Notification struct {
	ID           string    `gorm:"primaryKey;size:36" json:"uuid"`
	TaskID       string    `gorm:"size:36;not null;index" json:"task"`
	Notes        JSONB     `json:"notes"`
	Error        bool      `gorm:"not null;default:false;index" json:"error"`
	Acknowledged bool      `gorm:"not null;default:false;index" json:"acknowledged"`
	CreatedOn    time.Time `gorm:"not null;index" json:"created_on"`
}
