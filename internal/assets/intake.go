package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"dealroom-backend/internal/extract"
	"dealroom-backend/internal/shared/storage/object"
	"dealroom-backend/internal/shared/telemetry"
)

// Accepted upload extensions. Everything else is rejected per file, not per
// batch.
var allowedExtensions = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".csv":  "text/csv",
	".txt":  "text/plain",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// Service handles document intake and derived artifacts for a job.
type Service struct {
	Repo  Repo
	Store object.ObjectStore
}

// FileInput is one file in an upload batch.
type FileInput struct {
	Name   string
	Reader io.Reader
}

// RejectedFile explains why one file in a batch was not accepted.
type RejectedFile struct {
	Name   string `json:"fileName"`
	Reason string `json:"reason"`
}

// BatchInput identifies the job an upload batch belongs to.
type BatchInput struct {
	OrgID     string
	CompanyID string
	JobID     string
	Files     []FileInput
}

// BatchResult lists what was stored and what was turned away.
type BatchResult struct {
	Accepted []Asset
	Rejected []RejectedFile
}

// UploadBatch stores the acceptable files of a batch as financial documents.
// A batch succeeds partially: unsupported or unreadable files are reported
// per file and the rest go through. Only a batch with zero accepted files is
// an error.
func (s *Service) UploadBatch(ctx context.Context, in BatchInput) (BatchResult, error) {
	if len(in.Files) == 0 {
		return BatchResult{}, ErrNoFiles
	}
	var res BatchResult
	for _, f := range in.Files {
		a, reason := s.acceptFile(ctx, in, f)
		if reason != "" {
			res.Rejected = append(res.Rejected, RejectedFile{Name: f.Name, Reason: reason})
			continue
		}
		res.Accepted = append(res.Accepted, a)
	}
	telemetry.Info("assets.upload_batch", map[string]any{
		"job_id":   in.JobID,
		"accepted": len(res.Accepted),
		"rejected": len(res.Rejected),
	})
	if len(res.Accepted) == 0 {
		return res, ErrNoFilesAccepted
	}
	return res, nil
}

func (s *Service) acceptFile(ctx context.Context, in BatchInput, f FileInput) (Asset, string) {
	ext := strings.ToLower(filepath.Ext(f.Name))
	if _, ok := allowedExtensions[ext]; !ok {
		return Asset{}, fmt.Sprintf("unsupported file type %q", ext)
	}
	key, size, mimeType, err := s.Store.Save(ctx, in.CompanyID, f.Name, f.Reader)
	if err != nil {
		telemetry.Error("assets.store_failed", map[string]any{
			"job_id": in.JobID, "file_name": f.Name, "error": err.Error(),
		})
		return Asset{}, "could not store file"
	}
	a := Asset{
		ID:         uuid.NewString(),
		OrgID:      in.OrgID,
		CompanyID:  in.CompanyID,
		JobID:      in.JobID,
		Kind:       KindFinancialDocument,
		FileName:   f.Name,
		MimeType:   mimeType,
		SizeBytes:  size,
		StorageKey: key,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, a); err != nil {
		telemetry.Error("assets.create_failed", map[string]any{
			"job_id": in.JobID, "file_name": f.Name, "error": err.Error(),
		})
		return Asset{}, "could not record file"
	}
	return a, ""
}

// ProcessUploads extracts text from every financial document of a job that
// has none yet. Extraction failures degrade to warnings; the documents stay
// usable as-is.
func (s *Service) ProcessUploads(ctx context.Context, jobID string) ([]string, error) {
	docs, err := s.Repo.ListByJobKind(ctx, jobID, KindFinancialDocument)
	if err != nil {
		return nil, err
	}
	var warnings []string
	for _, doc := range docs {
		if doc.ExtractedTextKey != nil || !extract.Supported(doc.MimeType, doc.FileName) {
			continue
		}
		if _, err := extract.ExtractText(ctx, s.Store, doc.StorageKey, doc.MimeType, doc.FileName); err != nil {
			telemetry.Warn("assets.extract_failed", map[string]any{
				"job_id": jobID, "asset_id": doc.ID, "error": err.Error(),
			})
			warnings = append(warnings, fmt.Sprintf("could not extract text from %s", doc.FileName))
			continue
		}
		extractedKey := doc.StorageKey + ".extracted.txt"
		if err := s.Repo.SetExtractedText(ctx, doc.ID, extractedKey, time.Now().UTC()); err != nil {
			return warnings, err
		}
	}
	return warnings, nil
}

// CollectExtractedText concatenates a job's extracted document text for
// generation input, each document introduced by its file name.
func (s *Service) CollectExtractedText(ctx context.Context, jobID string) (string, error) {
	docs, err := s.Repo.ListByJobKind(ctx, jobID, KindFinancialDocument)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	for _, doc := range docs {
		if doc.ExtractedTextKey == nil {
			continue
		}
		body, err := s.Store.Open(ctx, *doc.ExtractedTextKey)
		if err != nil {
			return "", fmt.Errorf("open extracted text for %s: %w", doc.FileName, err)
		}
		text, err := io.ReadAll(body)
		body.Close()
		if err != nil {
			return "", fmt.Errorf("read extracted text for %s: %w", doc.FileName, err)
		}
		fmt.Fprintf(&buf, "--- %s ---\n%s\n\n", doc.FileName, bytes.TrimSpace(text))
	}
	return strings.TrimSpace(buf.String()), nil
}

// StoreGenerated persists a generation artifact and its asset record.
func (s *Service) StoreGenerated(ctx context.Context, orgID, companyID, jobID, output string, payload []byte) (Asset, error) {
	kind := GeneratedKindFor(output)
	if kind == "" {
		return Asset{}, fmt.Errorf("unknown output kind %q", output)
	}
	fileName := output + ".json"
	key := fmt.Sprintf("%s/%s/%s", companyID, jobID, fileName)
	saver, ok := s.Store.(object.KeySaver)
	if !ok {
		return Asset{}, errors.New("object store does not support SaveWithKey")
	}
	size, err := saver.SaveWithKey(ctx, key, "application/json", bytes.NewReader(payload))
	if err != nil {
		return Asset{}, fmt.Errorf("store generated %s: %w", output, err)
	}
	a := Asset{
		ID:         uuid.NewString(),
		OrgID:      orgID,
		CompanyID:  companyID,
		JobID:      jobID,
		Kind:       kind,
		FileName:   fileName,
		MimeType:   "application/json",
		SizeBytes:  size,
		StorageKey: key,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, a); err != nil {
		return Asset{}, err
	}
	return a, nil
}
