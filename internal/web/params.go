package web

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// paramValidate checks path and query parameters. Initialized in init()
// with the collection name rule.
var paramValidate *validator.Validate

// collNamePattern matches names accepted by every storage backend.
var collNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

func init() {
	paramValidate = validator.New()
	_ = paramValidate.RegisterValidation("collname", func(fl validator.FieldLevel) bool {
		return collNamePattern.MatchString(fl.Field().String())
	})
}

type workspaceParams struct {
	Workspace string `validate:"required,max=64,collname"`
}

type tableParams struct {
	Workspace string `validate:"required,max=64,collname"`
	Table     string `validate:"required,max=200,collname"`
}

type rowsParams struct {
	tableParams
	Offset int `validate:"min=0"`
	Limit  int `validate:"omitempty,min=1,max=1000"`
}

type uploadParams struct {
	tableParams
	Key    string `validate:"omitempty,max=256"`
	DryRun bool
}

func validateParams(v any) error {
	err := paramValidate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", errInvalidParam, err)
	}
	fields := make([]string, len(verrs))
	for i, fe := range verrs {
		fields[i] = strings.ToLower(fe.Field())
	}
	return fmt.Errorf("%w: %s", errInvalidParam, strings.Join(fields, ", "))
}

func parseWorkspaceParams(r *http.Request) (workspaceParams, error) {
	p := workspaceParams{Workspace: chi.URLParam(r, "workspace")}
	return p, validateParams(p)
}

func parseTableParams(r *http.Request) (tableParams, error) {
	p := tableParams{
		Workspace: chi.URLParam(r, "workspace"),
		Table:     chi.URLParam(r, "table"),
	}
	return p, validateParams(p)
}

func parseUploadParams(r *http.Request) (uploadParams, error) {
	tp, err := parseTableParams(r)
	if err != nil {
		return uploadParams{}, err
	}

	q := r.URL.Query()
	p := uploadParams{tableParams: tp, Key: q.Get("key")}
	if raw := q.Get("dry_run"); raw != "" {
		p.DryRun, err = strconv.ParseBool(raw)
		if err != nil {
			return uploadParams{}, fmt.Errorf("%w: dry_run", errInvalidParam)
		}
	}
	return p, validateParams(p)
}

func parseRowsParams(r *http.Request) (rowsParams, error) {
	tp, err := parseTableParams(r)
	if err != nil {
		return rowsParams{}, err
	}

	p := rowsParams{tableParams: tp}
	q := r.URL.Query()
	for name, dst := range map[string]*int{"offset": &p.Offset, "limit": &p.Limit} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		if *dst, err = strconv.Atoi(raw); err != nil {
			return rowsParams{}, fmt.Errorf("%w: %s", errInvalidParam, name)
		}
	}
	return p, validateParams(p)
}
