package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/clinvera/clinvera/pkg/authz"
	"gopkg.in/yaml.v3"
)

// Actor is the authenticated principal behind a request. Every
// mutation records the actor's ID; there is no ambient "system"
// writer.
type Actor struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	Role string `yaml:"role" json:"role"`
}

type actorKey struct{}

func withActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func currentActor(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

// ActorResolver maps request credentials to an actor.
type ActorResolver interface {
	ResolveActor(key string) (Actor, bool)
}

type actorRegistry struct {
	byKey map[string]Actor
}

type actorsFile struct {
	Version int `yaml:"version"`
	Actors  []struct {
		Key   string `yaml:"key"`
		Actor `yaml:",inline"`
	} `yaml:"actors"`
}

func parseActorsYAML(b []byte) (*actorRegistry, error) {
	var f actorsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	if f.Version != 1 {
		return nil, errors.New("actors: unsupported version")
	}
	if len(f.Actors) == 0 {
		return nil, errors.New("actors: empty registry")
	}
	byKey := make(map[string]Actor, len(f.Actors))
	for _, entry := range f.Actors {
		key := strings.TrimSpace(entry.Key)
		if key == "" || strings.TrimSpace(entry.ID) == "" {
			return nil, errors.New("actors: key and id required")
		}
		switch strings.TrimSpace(strings.ToLower(entry.Role)) {
		case authz.RoleDataManager, authz.RoleInvestigator, authz.RoleMonitor:
		default:
			return nil, errors.New("actors: invalid role for " + entry.ID)
		}
		byKey[key] = entry.Actor
	}
	return &actorRegistry{byKey: byKey}, nil
}

func loadActors() (*actorRegistry, error) {
	path := os.Getenv("ACTORS_PATH")
	if path == "" {
		p, err := defaultActorsPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseActorsYAML(b)
}

func defaultActorsPath() (string, error) {
	path := "config/actors.yaml"
	for range 8 {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", errors.New("server: actors registry not found")
}

func (r *actorRegistry) ResolveActor(key string) (Actor, bool) {
	a, ok := r.byKey[key]
	return a, ok
}

func bearerToken(r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	token, found := strings.CutPrefix(raw, "Bearer ")
	if !found {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
