package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stackgate/backend/internal/core/ports"
	"github.com/stackgate/backend/internal/domain"
)

const (
	defaultPerPage = 25
	maxPerPage     = 500
)

// ParseFilterJSON decodes the ?filters= query form into the raw filter map.
func ParseFilterJSON(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return nil, nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fieldErrors(map[string][]string{"filters": {"malformed filter: " + err.Error()}})
	}
	return out, nil
}

// BuildFilter validates field -> {operator: value} against schema.
func BuildFilter(q ports.ListQuery, schema domain.FilterSchema) (domain.Filter, error) {
	var f domain.Filter
	problems := map[string][]string{}

	for field, rawOps := range q.Filters {
		def, ok := schema[field]
		if !ok {
			problems[field] = append(problems[field], "unknown filter field")
			continue
		}
		ops, ok := rawOps.(map[string]interface{})
		if !ok || len(ops) == 0 {
			problems[field] = append(problems[field], "filter must be an object of operator to value")
			continue
		}
		for rawOp, rawVal := range ops {
			op := domain.Operator(rawOp)
			if !def.Kind.Supports(op) {
				problems[field] = append(problems[field], fmt.Sprintf("unsupported operator %q", rawOp))
				continue
			}
			val, err := coerceFilterValue(def.Kind, op, rawVal)
			if err != nil {
				problems[field] = append(problems[field], err.Error())
				continue
			}
			f.Conditions = append(f.Conditions, domain.Condition{
				Field:  field,
				Column: def.Column,
				Kind:   def.Kind,
				Op:     op,
				Value:  val,
			})
		}
	}
	if len(problems) > 0 {
		return domain.Filter{}, fieldErrors(problems)
	}

	perPage := q.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	f.Limit = perPage
	f.Offset = (page - 1) * perPage
	return f, nil
}

func coerceFilterValue(kind domain.FieldKind, op domain.Operator, v interface{}) (interface{}, error) {
	switch kind {
	case domain.KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected a boolean value")
		}
		return b, nil
	case domain.KindTime:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected an RFC3339 timestamp")
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("expected an RFC3339 timestamp")
		}
		return t, nil
	}
	if op == domain.OpIn {
		list, ok := v.([]interface{})
		if !ok {
			return nil, fmt.Errorf("expected a list of strings")
		}
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected a list of strings")
			}
			out = append(out, s)
		}
		return out, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected a string value")
	}
	return s, nil
}
