package domain

import (
	"strings"
	"time"
)

type FieldKind int

const (
	KindString FieldKind = iota
	KindBool
	KindTime
)

type Operator string

const (
	OpExact      Operator = "exact"
	OpIExact     Operator = "iexact"
	OpContains   Operator = "contains"
	OpIContains  Operator = "icontains"
	OpStartsWith Operator = "startswith"
	OpIn         Operator = "in"
	OpGT         Operator = "gt"
	OpGTE        Operator = "gte"
	OpLT         Operator = "lt"
	OpLTE        Operator = "lte"
)

var kindOperators = map[FieldKind][]Operator{
	KindString: {OpExact, OpIExact, OpContains, OpIContains, OpStartsWith, OpIn},
	KindBool:   {OpExact},
	KindTime:   {OpExact, OpGT, OpGTE, OpLT, OpLTE},
}

func (k FieldKind) Supports(op Operator) bool {
	for _, o := range kindOperators[k] {
		if o == op {
			return true
		}
	}
	return false
}

type FilterField struct {
	Column string
	Kind   FieldKind
}

// FilterSchema maps API field names to columns for one listable resource.
type FilterSchema map[string]FilterField

var TaskFilterSchema = FilterSchema{
	"uuid":         {Column: "id", Kind: KindString},
	"task_type":    {Column: "task_type", Kind: KindString},
	"project_id":   {Column: "project_id", Kind: KindString},
	"ip_address":   {Column: "ip_address", Kind: KindString},
	"approved":     {Column: "approved", Kind: KindBool},
	"completed":    {Column: "completed", Kind: KindBool},
	"cancelled":    {Column: "cancelled", Kind: KindBool},
	"created_on":   {Column: "created_on", Kind: KindTime},
	"approved_on":  {Column: "approved_on", Kind: KindTime},
	"completed_on": {Column: "completed_on", Kind: KindTime},
}

var TokenFilterSchema = FilterSchema{
	"task":       {Column: "task_id", Kind: KindString},
	"task_type":  {Column: "task_type", Kind: KindString},
	"expires":    {Column: "expires", Kind: KindTime},
	"created_on": {Column: "created_on", Kind: KindTime},
}

var NotificationFilterSchema = FilterSchema{
	"uuid":         {Column: "id", Kind: KindString},
	"task":         {Column: "task_id", Kind: KindString},
	"error":        {Column: "error", Kind: KindBool},
	"acknowledged": {Column: "acknowledged", Kind: KindBool},
	"created_on":   {Column: "created_on", Kind: KindTime},
}

// Condition is one parsed field/operator/value triple. Value is a string,
// bool, time.Time or []string (for OpIn) matching the field kind.
type Condition struct {
	Field  string
	Column string
	Kind   FieldKind
	Op     Operator
	Value  interface{}
}

type Filter struct {
	Conditions []Condition
	Limit      int
	Offset     int
}

func (f Filter) With(c Condition) Filter {
	out := f
	out.Conditions = append(append([]Condition(nil), f.Conditions...), c)
	return out
}

// Filterable exposes record fields by API name for in-memory matching.
type Filterable interface {
	FilterValue(field string) interface{}
}

func (f Filter) Match(rec Filterable) bool {
	for _, c := range f.Conditions {
		if !c.Match(rec.FilterValue(c.Field)) {
			return false
		}
	}
	return true
}

func (c Condition) Match(v interface{}) bool {
	switch got := v.(type) {
	case string:
		return matchString(c.Op, got, c.Value)
	case bool:
		want, ok := c.Value.(bool)
		return ok && c.Op == OpExact && got == want
	case time.Time:
		return matchTime(c.Op, got, c.Value)
	case *time.Time:
		if got == nil {
			return false
		}
		return matchTime(c.Op, *got, c.Value)
	}
	return false
}

func matchString(op Operator, got string, value interface{}) bool {
	if op == OpIn {
		list, _ := value.([]string)
		for _, s := range list {
			if s == got {
				return true
			}
		}
		return false
	}
	want, ok := value.(string)
	if !ok {
		return false
	}
	switch op {
	case OpExact:
		return got == want
	case OpIExact:
		return strings.EqualFold(got, want)
	case OpContains:
		return strings.Contains(got, want)
	case OpIContains:
		return strings.Contains(strings.ToLower(got), strings.ToLower(want))
	case OpStartsWith:
		return strings.HasPrefix(got, want)
	}
	return false
}

func matchTime(op Operator, got time.Time, value interface{}) bool {
	want, ok := value.(time.Time)
	if !ok {
		return false
	}
	switch op {
	case OpExact:
		return got.Equal(want)
	case OpGT:
		return got.After(want)
	case OpGTE:
		return !got.Before(want)
	case OpLT:
		return got.Before(want)
	case OpLTE:
		return !got.After(want)
	}
	return false
}

func (t *Task) FilterValue(field string) interface{} {
	switch field {
	case "uuid":
		return t.ID
	case "task_type":
		return t.TaskType
	case "project_id":
		return t.ProjectID
	case "ip_address":
		return t.IPAddress
	case "approved":
		return t.Approved
	case "completed":
		return t.Completed
	case "cancelled":
		return t.Cancelled
	case "created_on":
		return t.CreatedOn
	case "approved_on":
		return t.ApprovedOn
	case "completed_on":
		return t.CompletedOn
	}
	return nil
}

func (t *Token) FilterValue(field string) interface{} {
	switch field {
	case "task":
		return t.TaskID
	case "task_type":
		return t.TaskType
	case "expires":
		return t.Expires
	case "created_on":
		return t.CreatedOn
	}
	return nil
}

func (n *Notification) FilterValue(field string) interface{} {
	switch field {
	case "uuid":
		return n.ID
	case "task":
		return n.TaskID
	case "error":
		return n.Error
	case "acknowledged":
		return n.Acknowledged
	case "created_on":
		return n.CreatedOn
	}
	return nil
}
