// Package ingest turns uploaded protocol documents into study drafts.
// The pipeline runs upload, text extraction, LLM field extraction,
// normalization and persistence strictly in order; a stage failure
// stops the run and earlier stages are never rolled back.
package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clinvera/clinvera/pkg/uuidv7"
)

// Stage names double as the distinct failure messages clients see.
const (
	StageUpload    = "upload"
	StageExtract   = "extract"
	StageLLM       = "llm extraction"
	StageNormalize = "normalize"
	StagePersist   = "persist"
)

// StageError marks which pipeline stage failed. The stage name is part
// of the client-visible message so failures are distinguishable.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + " failed: " + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

func stageFailed(stage string, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// Document is the ingestion record for one uploaded file.
type Document struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	BlobKey     string    `json:"blobKey"`
	Status      string    `json:"status"`
	StudyID     string    `json:"studyId,omitempty"`
	Error       string    `json:"error,omitempty"`
	UploadedBy  string    `json:"uploadedBy"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

const (
	DocumentStatusProcessing = "PROCESSING"
	DocumentStatusCompleted  = "COMPLETED"
	DocumentStatusFailed     = "FAILED"
)

// StudyExtract is the field set the LLM pulls from a protocol
// document, before normalization.
type StudyExtract struct {
	ProtocolNumber string   `json:"protocolNumber"`
	Title          string   `json:"title"`
	Phase          string   `json:"phase,omitempty"`
	Sponsor        string   `json:"sponsor,omitempty"`
	Indication     string   `json:"indication,omitempty"`
	Arms           []string `json:"arms,omitempty"`
	Objectives     []string `json:"objectives,omitempty"`
	Visits         []string `json:"visits,omitempty"`
	Assessments    []string `json:"assessments,omitempty"`
}

// StudyWriter persists a normalized extract as a study. A non-empty
// studyID targets an existing study for update; otherwise a new draft
// study is created.
type StudyWriter interface {
	SaveExtractedStudy(ctx context.Context, extract StudyExtract, studyID string, actor string) (string, error)
}

// DocumentWriter records ingestion state transitions.
type DocumentWriter interface {
	SaveDocument(ctx context.Context, doc Document) error
}

// Pipeline wires the ingestion stages together.
type Pipeline struct {
	blobs     BlobStore
	extractor TextExtractor
	llm       FieldExtractor
	studies   StudyWriter
	documents DocumentWriter
	logger    *zap.Logger
}

func NewPipeline(blobs BlobStore, extractor TextExtractor, llm FieldExtractor, studies StudyWriter, documents DocumentWriter, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		blobs:     blobs,
		extractor: extractor,
		llm:       llm,
		studies:   studies,
		documents: documents,
		logger:    logger,
	}
}

// Run ingests one uploaded file. The document record is persisted
// before processing starts and updated with the final status; a failed
// run leaves the blob and the FAILED record in place for inspection.
func (p *Pipeline) Run(ctx context.Context, filename string, contentType string, data []byte, studyID string, actor string) (Document, error) {
	doc := Document{
		ID:          uuidv7.MustNewString(),
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		Status:      DocumentStatusProcessing,
		StudyID:     studyID,
		UploadedBy:  actor,
		UploadedAt:  time.Now().UTC(),
	}
	doc.BlobKey = doc.ID + "/" + filename

	if err := p.blobs.Put(ctx, doc.BlobKey, contentType, data); err != nil {
		return p.fail(ctx, doc, stageFailed(StageUpload, err))
	}
	if err := p.documents.SaveDocument(ctx, doc); err != nil {
		return p.fail(ctx, doc, stageFailed(StageUpload, err))
	}
	p.logger.Info("document stored",
		zap.String("document_id", doc.ID),
		zap.String("blob_key", doc.BlobKey),
		zap.Int64("size_bytes", doc.SizeBytes))

	content, err := p.extractor.Extract(ctx, filename, data)
	if err != nil {
		return p.fail(ctx, doc, stageFailed(StageExtract, err))
	}

	extract, err := p.llm.ExtractStudyFields(ctx, content)
	if err != nil {
		return p.fail(ctx, doc, stageFailed(StageLLM, err))
	}

	normalized, err := Normalize(extract)
	if err != nil {
		return p.fail(ctx, doc, stageFailed(StageNormalize, err))
	}

	savedID, err := p.studies.SaveExtractedStudy(ctx, normalized, studyID, actor)
	if err != nil {
		return p.fail(ctx, doc, stageFailed(StagePersist, err))
	}

	doc.Status = DocumentStatusCompleted
	doc.StudyID = savedID
	if err := p.documents.SaveDocument(ctx, doc); err != nil {
		return p.fail(ctx, doc, stageFailed(StagePersist, err))
	}
	p.logger.Info("document ingested",
		zap.String("document_id", doc.ID),
		zap.String("study_id", savedID))
	return doc, nil
}

// fail records the FAILED state best-effort and returns the stage
// error. Earlier stage outputs stay where they are.
func (p *Pipeline) fail(ctx context.Context, doc Document, err error) (Document, error) {
	doc.Status = DocumentStatusFailed
	doc.Error = err.Error()
	if saveErr := p.documents.SaveDocument(ctx, doc); saveErr != nil {
		p.logger.Error("failed to record document failure",
			zap.String("document_id", doc.ID),
			zap.Error(saveErr))
	}
	p.logger.Error("document ingestion failed",
		zap.String("document_id", doc.ID),
		zap.String("filename", doc.Filename),
		zap.Error(err))
	return doc, err
}

// Normalize trims and validates an extract. A document the LLM could
// not find a protocol number or title in is not a study.
func Normalize(extract StudyExtract) (StudyExtract, error) {
	out := StudyExtract{
		ProtocolNumber: collapseSpace(extract.ProtocolNumber),
		Title:          collapseSpace(extract.Title),
		Phase:          collapseSpace(extract.Phase),
		Sponsor:        collapseSpace(extract.Sponsor),
		Indication:     collapseSpace(extract.Indication),
		Arms:           collapseSpaceAll(extract.Arms),
		Objectives:     collapseSpaceAll(extract.Objectives),
		Visits:         collapseSpaceAll(extract.Visits),
		Assessments:    collapseSpaceAll(extract.Assessments),
	}
	if out.ProtocolNumber == "" {
		return StudyExtract{}, fmt.Errorf("no protocol number found in document")
	}
	if out.Title == "" {
		return StudyExtract{}, fmt.Errorf("no study title found in document")
	}
	return out, nil
}
