package server

import (
	"context"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/clinvera/clinvera/internal/ingest"
	"github.com/clinvera/clinvera/internal/routing"
)

// HandlerOptions lets tests and embedders inject every collaborator.
// Anything left nil is built from the environment: pgx stores against
// DATABASE_URL, the minio blob store, the Anthropic extractor, and the
// file-based actor registry and authorizer.
type HandlerOptions struct {
	Logger      *zap.Logger
	Studies     StudyStore
	Forms       FormStore
	CodeLists   CodeListStore
	Submissions SubmissionStore
	Documents   DocumentStore
	Blobs       ingest.BlobStore
	Extractor   ingest.TextExtractor
	LLM         ingest.FieldExtractor
	Actors      ActorResolver
	Authorizer  authorizer
}

func NewHandler() (http.Handler, error) {
	return NewHandlerWithOptions(HandlerOptions{})
}

func NewHandlerWithOptions(opts HandlerOptions) (http.Handler, error) {
	allowlistPath := os.Getenv("ALLOWLIST_PATH")
	if allowlistPath == "" {
		p, err := defaultConfigPath("config/routing/allowlist.yaml", "server: routing allowlist not found")
		if err != nil {
			return nil, err
		}
		allowlistPath = p
	}
	a, err := routing.LoadAllowlist(allowlistPath)
	if err != nil {
		return nil, err
	}
	classifier, err := routing.NewClassifier(a, "server")
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger, err = zap.NewProduction()
		if err != nil {
			return nil, err
		}
	}

	studies := opts.Studies
	forms := opts.Forms
	codelists := opts.CodeLists
	submissions := opts.Submissions
	documents := opts.Documents

	var pgPool *pgxpool.Pool
	if studies == nil {
		pool, err := pgxpool.New(context.Background(), dbDSNFromEnv())
		if err != nil {
			return nil, err
		}
		pgPool = pool
		studies = NewPGStudyStore(pgPool)
	}
	if forms == nil {
		if pgPool != nil {
			forms = NewPGFormStore(pgPool)
		} else {
			forms = NewMemFormStore()
		}
	}
	if codelists == nil {
		if pgPool != nil {
			codelists = NewPGCodeListStore(pgPool)
		} else {
			codelists = NewMemCodeListStore()
		}
	}
	if submissions == nil {
		if pgPool != nil {
			submissions = NewPGSubmissionStore(pgPool)
		} else {
			submissions = NewMemSubmissionStore()
		}
	}
	if documents == nil {
		if pgPool != nil {
			documents = NewPGDocumentStore(pgPool)
		} else {
			documents = NewMemDocumentStore()
		}
	}

	blobs := opts.Blobs
	if blobs == nil {
		blobs, err = ingest.NewMinioBlobStore(context.Background())
		if err != nil {
			return nil, err
		}
	}
	extractor := opts.Extractor
	if extractor == nil {
		extractor = ingest.NewTextExtractor()
	}
	llm := opts.LLM
	if llm == nil {
		llm, err = ingest.NewAnthropicExtractor(logger)
		if err != nil {
			return nil, err
		}
	}
	pipeline := ingest.NewPipeline(blobs, extractor, llm, NewExtractedStudyWriter(studies), documents, logger)

	actors := opts.Actors
	if actors == nil {
		actors, err = loadActors()
		if err != nil {
			return nil, err
		}
	}
	authz := opts.Authorizer
	if authz == nil {
		authz, err = loadAuthorizer()
		if err != nil {
			return nil, err
		}
	}

	router := routing.NewRouter(classifier)
	registerRoutes(router, studies, forms, codelists, submissions, documents, pipeline)

	return withActorAndAuthz(classifier, actors, authz, logger, router), nil
}

func registerRoutes(router *routing.Router, studies StudyStore, forms FormStore, codelists CodeListStore, submissions SubmissionStore, documents DocumentStore, pipeline *ingest.Pipeline) {
	api := routing.RouteClassInternalAPI

	router.Handle(routing.RouteClassOps, http.MethodGet, "/health", handleHealth())
	router.Handle(routing.RouteClassOps, http.MethodGet, "/healthz", handleHealth())

	router.Handle(api, http.MethodGet, "/study/api/studies", handleStudiesList(studies))
	router.Handle(api, http.MethodPost, "/study/api/studies", handleStudiesCreate(studies))
	router.Handle(api, http.MethodGet, "/study/api/studies/{id}", handleStudiesGet(studies))
	router.Handle(api, http.MethodPut, "/study/api/studies/{id}", handleStudiesUpdate(studies))
	router.Handle(api, http.MethodDelete, "/study/api/studies/{id}", handleStudiesDelete(studies))

	router.Handle(api, http.MethodGet, "/forms/api/forms", handleFormsList(forms))
	router.Handle(api, http.MethodPost, "/forms/api/forms", handleFormsCreate(forms, studies, codelists))
	router.Handle(api, http.MethodGet, "/forms/api/forms/{id}", handleFormsGet(forms))
	router.Handle(api, http.MethodPut, "/forms/api/forms/{id}", handleFormsUpdate(forms, studies, codelists))
	router.Handle(api, http.MethodDelete, "/forms/api/forms/{id}", handleFormsDelete(forms))
	router.Handle(api, http.MethodPost, "/forms/api/forms/{id}/evaluate", handleFormsEvaluate(forms))
	router.Handle(api, http.MethodPost, "/forms/api/forms/{id}/submit", handleFormsSubmit(forms, submissions))
	router.Handle(api, http.MethodPost, "/forms/api/forms/{id}/rules:explain", handleFormsExplain(forms))

	router.Handle(api, http.MethodGet, "/forms/api/codelists", handleCodeListsList(codelists))
	router.Handle(api, http.MethodPost, "/forms/api/codelists", handleCodeListsCreate(codelists))
	router.Handle(api, http.MethodGet, "/forms/api/codelists/{code}", handleCodeListsGet(codelists))
	router.Handle(api, http.MethodPut, "/forms/api/codelists/{code}", handleCodeListsReplace(codelists))
	router.Handle(api, http.MethodDelete, "/forms/api/codelists/{code}", handleCodeListsDelete(codelists))

	router.Handle(api, http.MethodGet, "/forms/api/submissions", handleSubmissionsList(submissions))
	router.Handle(api, http.MethodGet, "/forms/api/submissions/{id}", handleSubmissionsGet(submissions))

	router.Handle(api, http.MethodGet, "/docs/api/documents", handleDocumentsList(documents))
	router.Handle(api, http.MethodPost, "/docs/api/documents", handleDocumentsUpload(pipeline, studies))
	router.Handle(api, http.MethodGet, "/docs/api/documents/{id}", handleDocumentsGet(documents))
}

func handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
