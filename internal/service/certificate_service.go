package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/jung-kurt/gofpdf"
	"go.uber.org/zap"

	"github.com/campusops/nodues-api/internal/models"
	"github.com/campusops/nodues-api/internal/repository"
	"github.com/campusops/nodues-api/pkg/config"
	appErrors "github.com/campusops/nodues-api/pkg/errors"
	"github.com/campusops/nodues-api/pkg/jobs"
)

type certificateFormStore interface {
	GetByID(ctx context.Context, id string) (*models.ClearanceForm, error)
	PublishCertificate(ctx context.Context, formID, certificateURL string) error
	ListAwaitingCertificate(ctx context.Context) ([]models.ClearanceForm, error)
}

type certificateStatusReader interface {
	ListByForm(ctx context.Context, formID string) ([]models.DepartmentStatus, error)
}

type certificateStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Exists(filename string) bool
}

type urlSigner interface {
	Generate(formID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (formID, relPath string, expiresAt time.Time, err error)
}

type certificateNotifier interface {
	CertificateReady(ctx context.Context, form *models.ClearanceForm, downloadURL string)
}

type certificateMetrics interface {
	RecordCompletion()
	RecordCertificateFailure()
}

// CertificateService renders no dues certificates and publishes the final
// completed state. A form only ever turns completed here, together with its
// certificate location, so completion and certificate can never diverge.
type CertificateService struct {
	forms    certificateFormStore
	statuses certificateStatusReader
	storage  certificateStorage
	signer   urlSigner
	cache    statusCacheInvalidator
	audit    auditLogger
	notifier certificateNotifier
	metrics  certificateMetrics
	logger   *zap.Logger
	cfg      config.CertificatesConfig
	baseURL  string
	queue    *jobs.Queue
}

// NewCertificateService constructs the service and its generation queue.
func NewCertificateService(forms certificateFormStore, statuses certificateStatusReader, storage certificateStorage,
	signer urlSigner, cache statusCacheInvalidator, audit auditLogger, notifier certificateNotifier,
	metrics certificateMetrics, logger *zap.Logger, cfg config.CertificatesConfig, baseURL string,
	queueCfg jobs.QueueConfig) *CertificateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &CertificateService{
		forms:    forms,
		statuses: statuses,
		storage:  storage,
		signer:   signer,
		cache:    cache,
		audit:    audit,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		baseURL:  baseURL,
	}
	queueCfg.Logger = logger
	s.queue = jobs.NewQueue("certificates", s.handleJob, queueCfg)
	return s
}

// Start begins queue consumption.
func (s *CertificateService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the queue workers.
func (s *CertificateService) Stop() {
	s.queue.Stop()
}

// Schedule enqueues certificate generation for a fully approved form.
func (s *CertificateService) Schedule(formID string) error {
	return s.queue.Enqueue(jobs.Job{ID: formID, Type: "certificate", Payload: formID})
}

// RequeuePending re-enqueues forms whose approval committed but whose
// certificate was never published, typically after a crash.
func (s *CertificateService) RequeuePending(ctx context.Context) error {
	forms, err := s.forms.ListAwaitingCertificate(ctx)
	if err != nil {
		return err
	}
	for _, form := range forms {
		if err := s.Schedule(form.ID); err != nil {
			return err
		}
		s.logger.Info("requeued certificate generation", zap.String("form_id", form.ID))
	}
	return nil
}

func (s *CertificateService) handleJob(ctx context.Context, job jobs.Job) error {
	formID, ok := job.Payload.(string)
	if !ok {
		s.logger.Error("unexpected certificate payload", zap.String("job_id", job.ID))
		return nil
	}
	if err := s.Generate(ctx, formID); err != nil {
		if s.metrics != nil {
			s.metrics.RecordCertificateFailure()
		}
		return err
	}
	return nil
}

// Generate renders, stores and publishes the certificate for one form. The
// method is idempotent: an already published form returns without touching
// anything, and a lost race on publish is treated as success.
func (s *CertificateService) Generate(ctx context.Context, formID string) error {
	form, err := s.forms.GetByID(ctx, formID)
	if err != nil {
		return err
	}
	if form.CertificateURL != nil {
		return nil
	}

	statuses, err := s.statuses.ListByForm(ctx, formID)
	if err != nil {
		return err
	}
	if models.AggregateStatus(statuses) != models.FormStatusCompleted {
		// Stale job: a reject or reapply slipped in after scheduling.
		s.logger.Info("skipping certificate, form no longer fully approved", zap.String("form_id", formID))
		return nil
	}

	pdfBytes, err := s.render(form, statuses)
	if err != nil {
		return fmt.Errorf("render certificate: %w", err)
	}

	relPath := fmt.Sprintf("%d/%s.pdf", form.PassingYear, form.ID)
	if _, err := s.storage.Save(relPath, pdfBytes); err != nil {
		return fmt.Errorf("store certificate: %w", err)
	}

	if err := s.forms.PublishCertificate(ctx, formID, relPath); err != nil {
		if errors.Is(err, repository.ErrCertificatePublished) {
			return nil
		}
		return fmt.Errorf("publish certificate: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordCompletion()
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, repository.StatusKey(formID)); err != nil {
			s.logger.Warn("failed to invalidate status cache", zap.String("form_id", formID), zap.Error(err))
		}
	}
	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			Action:     models.AuditActionCertificateGenerate,
			Resource:   "clearance_form",
			ResourceID: &formID,
			NewValues:  []byte(fmt.Sprintf(`{"certificate_url":%q}`, relPath)),
		}); err != nil {
			s.logger.Warn("failed to write certificate audit log", zap.Error(err))
		}
	}

	if s.notifier != nil {
		if downloadURL, err := s.DownloadURL(formID, relPath); err == nil {
			s.notifier.CertificateReady(ctx, form, downloadURL)
		} else {
			s.logger.Warn("failed to build certificate download url", zap.Error(err))
		}
	}

	s.logger.Info("certificate published", zap.String("form_id", formID), zap.String("path", relPath))
	return nil
}

// DownloadURL builds a signed, expiring download link for a certificate.
func (s *CertificateService) DownloadURL(formID, relPath string) (string, error) {
	token, _, err := s.signer.Generate(formID, relPath)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/certificates/download?token=%s", s.baseURL, url.QueryEscape(token)), nil
}

// Verify validates a signed token and confirms the certificate still matches
// the stored form. Used by the public verification endpoint.
func (s *CertificateService) Verify(ctx context.Context, token string) (*models.ClearanceForm, error) {
	formID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired certificate token")
	}
	form, err := s.forms.GetByID(ctx, formID)
	if err != nil {
		return nil, mapWorkflowError(err)
	}
	if form.CertificateURL == nil || *form.CertificateURL != relPath {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found for this form")
	}
	return form, nil
}

// Open validates the token and returns a read handle on the certificate file.
func (s *CertificateService) Open(ctx context.Context, token string) (*os.File, *models.ClearanceForm, error) {
	form, err := s.Verify(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	file, err := s.storage.Open(*form.CertificateURL)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "certificate file unavailable")
	}
	return file, form, nil
}

func (s *CertificateService) render(form *models.ClearanceForm, statuses []models.DepartmentStatus) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 25, 20)
	pdf.AddPage()

	issuer := s.cfg.Issuer
	if issuer == "" {
		issuer = "No Dues Portal"
	}

	pdf.SetFont("Arial", "B", 18)
	pdf.CellFormat(0, 12, issuer, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, "NO DUES CERTIFICATE", "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Arial", "", 11)
	body := fmt.Sprintf(
		"This is to certify that %s (Registration No. %s), %s, %s, %s, admitted in %d and passing in %d, has no outstanding dues with any department of the university.",
		form.StudentName, form.RegistrationNo, form.Course, form.Branch, form.School, form.AdmissionYear, form.PassingYear)
	pdf.MultiCell(0, 7, body, "", "L", false)
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(95, 8, "Department", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 8, "Status", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 8, "Cleared On", "1", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	for _, st := range statuses {
		clearedOn := ""
		if st.ActionAt != nil {
			clearedOn = st.ActionAt.Format("02 Jan 2006")
		}
		pdf.CellFormat(95, 7, departmentLabel(st.DepartmentName), "1", 0, "", false, 0, "")
		pdf.CellFormat(45, 7, "Approved", "1", 0, "C", false, 0, "")
		pdf.CellFormat(45, 7, clearedOn, "1", 1, "C", false, 0, "")
	}

	pdf.Ln(10)
	pdf.SetFont("Arial", "I", 9)
	pdf.CellFormat(0, 6, fmt.Sprintf("Issued on %s. Certificate ID: %s", time.Now().UTC().Format("02 Jan 2006"), form.ID), "", 1, "L", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
