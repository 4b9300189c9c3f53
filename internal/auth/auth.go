// Package auth decides whether a caller may read or write a workspace.
//
// Callers are identified by API key. Each configured key is granted one
// permission level that applies to every workspace. Policy beyond that
// (per-workspace roles, external identity providers) lives behind the
// Authorizer interface and is not implemented here.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/multinet/internal/config"
)

// Level is a permission level. Higher levels include the lower ones.
type Level int

const (
	LevelNone Level = iota
	LevelReader
	LevelWriter
	LevelMaintainer
	LevelOwner
)

var levelNames = map[Level]string{
	LevelNone:       "none",
	LevelReader:     "reader",
	LevelWriter:     "writer",
	LevelMaintainer: "maintainer",
	LevelOwner:      "owner",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel parses a level name such as "writer".
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for l, name := range levelNames {
		if name == s && l != LevelNone {
			return l, nil
		}
	}
	return LevelNone, fmt.Errorf("unknown permission level %q", s)
}

var (
	ErrMissingKey       = errors.New("missing api key")
	ErrInvalidKey       = errors.New("invalid api key")
	ErrPermissionDenied = errors.New("permission denied")
)

// Principal is an authenticated caller.
type Principal struct {
	Name  string
	Level Level
}

// Anonymous reports whether the principal presented no key.
func (p Principal) Anonymous() bool { return p.Name == anonymousName }

const anonymousName = "anonymous"

// Authorizer authenticates API keys and gates workspace access.
type Authorizer interface {
	// Authenticate resolves an API key (possibly empty) to a principal.
	Authenticate(apiKey string) (Principal, error)

	// Authorize returns ErrPermissionDenied (wrapped) unless p holds at
	// least need on workspace.
	Authorize(ctx context.Context, p Principal, workspace string, need Level) error
}

type grant struct {
	key   []byte
	name  string
	level Level
}

// StaticAuthorizer grants fixed levels to configured API keys.
type StaticAuthorizer struct {
	grants     []grant
	required   bool
	publicRead bool
}

// parseGrants parses "key=level" entries.
func parseGrants(specs []string) ([]grant, error) {
	grants := make([]grant, 0, len(specs))
	for i, spec := range specs {
		key, lvl, ok := strings.Cut(spec, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("api key #%d: want key=level", i+1)
		}
		level, err := ParseLevel(lvl)
		if err != nil {
			return nil, fmt.Errorf("api key #%d: %w", i+1, err)
		}
		grants = append(grants, grant{
			key:   []byte(key),
			name:  fmt.Sprintf("apikey-%d", i+1),
			level: level,
		})
	}
	return grants, nil
}

// NewStatic builds an authorizer from the security config.
//
// With RequireAPIKey off, requests without a key act as owner, matching a
// single-user development setup. With it on, keyless requests are readers
// when PublicRead is set and rejected otherwise.
func NewStatic(cfg config.SecurityConfig) (*StaticAuthorizer, error) {
	grants, err := parseGrants(cfg.APIKeys)
	if err != nil {
		return nil, err
	}
	return &StaticAuthorizer{
		grants:     grants,
		required:   cfg.RequireAPIKey,
		publicRead: cfg.PublicRead,
	}, nil
}

// Authenticate implements Authorizer.
func (a *StaticAuthorizer) Authenticate(apiKey string) (Principal, error) {
	if apiKey == "" {
		switch {
		case !a.required:
			return Principal{Name: anonymousName, Level: LevelOwner}, nil
		case a.publicRead:
			return Principal{Name: anonymousName, Level: LevelReader}, nil
		default:
			return Principal{}, ErrMissingKey
		}
	}

	g, ok := a.match(apiKey)
	if !ok {
		return Principal{}, ErrInvalidKey
	}
	return Principal{Name: g.name, Level: g.level}, nil
}

// match compares against every key in constant time per key so the
// response time does not reveal which key, if any, matched.
func (a *StaticAuthorizer) match(key string) (grant, bool) {
	var (
		found   grant
		matched int
	)
	for _, g := range a.grants {
		if subtle.ConstantTimeCompare([]byte(key), g.key) == 1 {
			found = g
			matched = 1
		}
	}
	return found, matched == 1
}

// Authorize implements Authorizer.
func (a *StaticAuthorizer) Authorize(_ context.Context, p Principal, workspace string, need Level) error {
	if p.Level >= need {
		return nil
	}
	return fmt.Errorf("%w: %s is %s on %q, needs %s", ErrPermissionDenied, p.Name, p.Level, workspace, need)
}

type ctxKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// PrincipalFrom returns the principal stored by WithPrincipal.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}
