package service

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusops/nodues-api/internal/models"
	"github.com/campusops/nodues-api/pkg/jobs"
)

// MailSender abstracts the SMTP collaborator.
type MailSender interface {
	Configured() bool
	Send(to []string, subject, html string) error
}

type departmentStaffLister interface {
	ListByDepartment(ctx context.Context, department string) ([]models.User, error)
}

type emailJob struct {
	To      []string
	Subject string
	Body    string
}

// NotificationService fans out workflow emails through a retrying queue.
// Individual approvals are deliberately silent; students hear about
// rejections, certificate availability, and their own reapplications, and
// department staff hear when a student reapplies to their queue.
type NotificationService struct {
	mailer MailSender
	staff  departmentStaffLister
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationService constructs the service and its backing queue.
func NewNotificationService(mailer MailSender, staff departmentStaffLister, logger *zap.Logger, queueCfg jobs.QueueConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{mailer: mailer, staff: staff, logger: logger}
	queueCfg.Logger = logger
	s.queue = jobs.NewQueue("notifications", s.deliver, queueCfg)
	return s
}

// Start begins queue consumption.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the queue workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// FormSubmitted acknowledges a new submission to the student.
func (s *NotificationService) FormSubmitted(ctx context.Context, form *models.ClearanceForm) {
	s.enqueue(emailJob{
		To:      []string{form.Email()},
		Subject: "No dues application received",
		Body: fmt.Sprintf(
			"<p>Dear %s,</p><p>Your no dues application (registration no. <b>%s</b>) has been received and forwarded to all departments for review.</p>",
			html.EscapeString(form.StudentName), html.EscapeString(form.RegistrationNo)),
	})
}

// DepartmentRejected informs the student immediately about a rejection.
func (s *NotificationService) DepartmentRejected(ctx context.Context, form *models.ClearanceForm, department, reason string) {
	s.enqueue(emailJob{
		To:      []string{form.Email()},
		Subject: fmt.Sprintf("No dues application rejected by %s", departmentLabel(department)),
		Body: fmt.Sprintf(
			"<p>Dear %s,</p><p>Your no dues application was rejected by <b>%s</b>.</p><p>Reason: %s</p><p>You can correct the issue and reapply from the portal.</p>",
			html.EscapeString(form.StudentName), html.EscapeString(departmentLabel(department)), html.EscapeString(reason)),
	})
}

// CertificateReady tells the student the certificate can be downloaded.
func (s *NotificationService) CertificateReady(ctx context.Context, form *models.ClearanceForm, downloadURL string) {
	s.enqueue(emailJob{
		To:      []string{form.Email()},
		Subject: "No dues certificate ready",
		Body: fmt.Sprintf(
			"<p>Dear %s,</p><p>All departments have approved your no dues application. Your certificate is ready.</p><p><a href=\"%s\">Download certificate</a></p>",
			html.EscapeString(form.StudentName), downloadURL),
	})
}

// ReapplicationFiled notifies staff of the targeted department only. Other
// departments keep their decisions and get no mail.
func (s *NotificationService) ReapplicationFiled(ctx context.Context, form *models.ClearanceForm, department, message string) {
	staff, err := s.staff.ListByDepartment(ctx, department)
	if err != nil {
		s.logger.Warn("failed to resolve department staff for reapplication mail",
			zap.String("department", department), zap.Error(err))
		return
	}
	recipients := make([]string, 0, len(staff))
	for _, u := range staff {
		recipients = append(recipients, u.Email)
	}
	if len(recipients) == 0 {
		return
	}
	s.enqueue(emailJob{
		To:      recipients,
		Subject: fmt.Sprintf("Reapplication pending review: %s", form.RegistrationNo),
		Body: fmt.Sprintf(
			"<p>Student <b>%s</b> (registration no. %s) has reapplied after your department's rejection.</p><p>Student note: %s</p>",
			html.EscapeString(form.StudentName), html.EscapeString(form.RegistrationNo), html.EscapeString(message)),
	})
}

func (s *NotificationService) enqueue(job emailJob) {
	if s.mailer == nil || !s.mailer.Configured() {
		s.logger.Debug("mailer not configured, dropping notification", zap.String("subject", job.Subject))
		return
	}
	if err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: "email", Payload: job}); err != nil {
		s.logger.Warn("failed to enqueue notification", zap.String("subject", job.Subject), zap.Error(err))
	}
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(emailJob)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID))
		return nil
	}
	return s.mailer.Send(payload.To, payload.Subject, payload.Body)
}

func departmentLabel(department string) string {
	return strings.Title(strings.ReplaceAll(department, "_", " ")) //nolint:staticcheck
}
