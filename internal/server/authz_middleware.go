package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/clinvera/clinvera/internal/routing"
	"github.com/clinvera/clinvera/pkg/authz"
)

func loadAuthorizer() (*authz.Authorizer, error) {
	modelPath := os.Getenv("AUTHZ_MODEL_PATH")
	if modelPath == "" {
		p, err := defaultConfigPath("config/access/model.conf", "server: authz model not found")
		if err != nil {
			return nil, err
		}
		modelPath = p
	}

	policyPath := os.Getenv("AUTHZ_POLICY_PATH")
	if policyPath == "" {
		p, err := defaultConfigPath("config/access/policy.csv", "server: authz policy not found")
		if err != nil {
			return nil, err
		}
		policyPath = p
	}

	mode, err := authz.ModeFromEnv()
	if err != nil {
		return nil, err
	}
	return authz.NewAuthorizer(modelPath, policyPath, mode)
}

func defaultConfigPath(rel string, missing string) (string, error) {
	path := rel
	for range 8 {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", errors.New(missing)
}

type authorizer interface {
	Authorize(subject string, object string, action string) (allowed bool, enforced bool, err error)
}

// withActorAndAuthz resolves the acting principal from the bearer key
// and enforces role policy on API routes. Ops and static routes pass
// through without a credential.
func withActorAndAuthz(classifier *routing.Classifier, actors ActorResolver, a authorizer, logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		rc := classifier.Classify(path)
		if rc == routing.RouteClassOps || rc == routing.RouteClassStatic {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			routing.WriteError(w, r, rc, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		actor, ok := actors.ResolveActor(token)
		if !ok {
			routing.WriteError(w, r, rc, http.StatusUnauthorized, "unauthorized", "unknown credential")
			return
		}
		r = r.WithContext(withActor(r.Context(), actor))

		object, action, shouldCheck := authzRequirementForRoute(r.Method, path)
		if !shouldCheck {
			next.ServeHTTP(w, r)
			return
		}

		subject := authz.SubjectFromRole(actor.Role)
		allowed, enforced, err := a.Authorize(subject, object, action)
		if err != nil {
			logger.Error("authz evaluation failed", zap.String("path", path), zap.Error(err))
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "authz_error", "authz error")
			return
		}
		if !allowed {
			if !enforced {
				logger.Warn("authz shadow denial",
					zap.String("subject", subject),
					zap.String("object", object),
					zap.String("action", action),
					zap.String("path", path))
				next.ServeHTTP(w, r)
				return
			}
			routing.WriteError(w, r, rc, http.StatusForbidden, "forbidden", "forbidden")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authzRequirementForRoute maps a route to its protected object and
// action. Pure evaluation endpoints count as reads even though they are
// POSTs; submit targets the submissions object.
func authzRequirementForRoute(method string, path string) (object string, action string, shouldCheck bool) {
	action = authz.ActionWrite
	if method == http.MethodGet {
		action = authz.ActionRead
	}

	switch {
	case hasRoutePrefix(path, "/study/api/studies"):
		return authz.ObjectStudies, action, true
	case hasRoutePrefix(path, "/forms/api/codelists"):
		return authz.ObjectCodeLists, action, true
	case hasRoutePrefix(path, "/forms/api/submissions"):
		return authz.ObjectSubmissions, action, true
	case hasRoutePrefix(path, "/forms/api/forms"):
		switch {
		case strings.HasSuffix(path, "/submit"):
			return authz.ObjectSubmissions, authz.ActionWrite, true
		case strings.HasSuffix(path, "/evaluate"), strings.HasSuffix(path, "/rules:explain"):
			return authz.ObjectForms, authz.ActionRead, true
		default:
			return authz.ObjectForms, action, true
		}
	case hasRoutePrefix(path, "/docs/api/documents"):
		return authz.ObjectDocuments, action, true
	default:
		return "", "", false
	}
}

func hasRoutePrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
