package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/stackgate/backend/internal/config"
	"github.com/stackgate/backend/internal/core/ports"
	"github.com/stackgate/backend/internal/domain"
	"github.com/stackgate/backend/internal/infrastructure/logger"
)

// Env is everything a handler may read during one invocation.
type Env struct {
	Request       domain.RequestContext
	Identity      ports.IdentityBackend
	Settings      config.ActionConfig
	DefaultDomain string
	AdminRoles    []string
	// Derived holds the fields the last validation produced.
	Derived domain.JSONB
	Logger  *logger.Logger
}

func (e *Env) CallerIsAdmin() bool {
	return e.Request.HasRole(e.AdminRoles...)
}

func (e *Env) derivedString(key string) string {
	s, _ := e.Derived[key].(string)
	return s
}

// Verdict is the outcome of validating one action.
type Verdict struct {
	Valid     bool
	NeedToken bool
	// Complete means the requested change already holds, so the action
	// finishes at validation time and never asks for a token.
	Complete bool
	Notes    []string
	Derived  domain.JSONB
}

func invalid(notes ...string) Verdict {
	return Verdict{Notes: notes}
}

// Handler implements one action variant over its typed input I and cache C.
// Execute and Complete mutate cache in place; whatever they recorded is
// persisted even when they return an error.
type Handler[I, C any] interface {
	Validate(ctx context.Context, env *Env, in *I) (Verdict, error)
	Execute(ctx context.Context, env *Env, in *I, cache *C) error
	Complete(ctx context.Context, env *Env, in *I, cache *C, submitted domain.JSONB) error
}

// Meta is the static description of an action's inputs.
type Meta struct {
	Fields         []string
	RequiredFields []string
	TokenFields    []string
}

// Spec is a registered action: its metadata plus type-erased handler calls.
type Spec struct {
	Name string
	Meta

	validate func(ctx context.Context, env *Env, input domain.JSONB) (Verdict, error)
	execute  func(ctx context.Context, env *Env, input, cache domain.JSONB) (domain.JSONB, error)
	complete func(ctx context.Context, env *Env, input, cache, submitted domain.JSONB) (domain.JSONB, error)
}

// Define binds a typed handler to a name.
func Define[I, C any](name string, meta Meta, h Handler[I, C]) Spec {
	return Spec{
		Name: name,
		Meta: meta,
		validate: func(ctx context.Context, env *Env, input domain.JSONB) (Verdict, error) {
			var in I
			if err := decodeInput(input, &in); err != nil {
				return invalid(err.Error()), nil
			}
			return h.Validate(ctx, env, &in)
		},
		execute: func(ctx context.Context, env *Env, input, cache domain.JSONB) (domain.JSONB, error) {
			var in I
			if err := decodeInput(input, &in); err != nil {
				return cache, err
			}
			var c C
			if err := decodeCache(cache, &c); err != nil {
				return cache, err
			}
			runErr := h.Execute(ctx, env, &in, &c)
			out, err := encodeCache(&c)
			if err != nil {
				return cache, errors.Join(runErr, err)
			}
			return out, runErr
		},
		complete: func(ctx context.Context, env *Env, input, cache, submitted domain.JSONB) (domain.JSONB, error) {
			var in I
			if err := decodeInput(input, &in); err != nil {
				return cache, err
			}
			var c C
			if err := decodeCache(cache, &c); err != nil {
				return cache, err
			}
			runErr := h.Complete(ctx, env, &in, &c, submitted)
			out, err := encodeCache(&c)
			if err != nil {
				return cache, errors.Join(runErr, err)
			}
			return out, runErr
		},
	}
}

// SelectInput keeps the declared fields of data, overlaid with override.
func (s Spec) SelectInput(data, override domain.JSONB) domain.JSONB {
	out := domain.JSONB{}
	for _, f := range s.Fields {
		if v, ok := data[f]; ok {
			out[f] = v
		}
		if v, ok := override[f]; ok {
			out[f] = v
		}
	}
	return out
}

func (s Spec) MissingFields(input domain.JSONB) []string {
	return missing(input, s.RequiredFields)
}

func (s Spec) MissingTokenFields(submitted domain.JSONB) []string {
	return missing(submitted, s.TokenFields)
}

// Validate applies the role policy, then the handler's own checks.
func (s Spec) Validate(ctx context.Context, env *Env, input domain.JSONB) (Verdict, error) {
	if fields := s.MissingFields(input); len(fields) > 0 {
		return invalid(fmt.Sprintf("missing required fields: %v", fields)), nil
	}
	if note, ok := checkRolePolicy(env.Request, env.Settings); !ok {
		return invalid(note), nil
	}
	v, err := s.validate(ctx, env, input)
	if err != nil {
		return Verdict{}, err
	}
	if !v.Valid {
		v.NeedToken, v.Complete = false, false
	}
	if v.Complete {
		v.NeedToken = false
	}
	return v, nil
}

func (s Spec) Execute(ctx context.Context, env *Env, input, cache domain.JSONB) (domain.JSONB, error) {
	return s.execute(ctx, env, input, cache)
}

func (s Spec) Complete(ctx context.Context, env *Env, input, cache, submitted domain.JSONB) (domain.JSONB, error) {
	return s.complete(ctx, env, input, cache, submitted)
}

func missing(data domain.JSONB, fields []string) []string {
	var out []string
	for _, f := range fields {
		if !data.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

func decodeInput(input domain.JSONB, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]interface{}(input)); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	return nil
}

func decodeCache(cache domain.JSONB, out interface{}) error {
	if len(cache) == 0 {
		return nil
	}
	b, err := json.Marshal(cache)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func encodeCache(in interface{}) (domain.JSONB, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	out := domain.JSONB{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
