package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/campusops/nodues-api/internal/models"
	appErrors "github.com/campusops/nodues-api/pkg/errors"
	"github.com/campusops/nodues-api/pkg/response"
)

type certificateService interface {
	Verify(ctx context.Context, token string) (*models.ClearanceForm, error)
	Open(ctx context.Context, token string) (*os.File, *models.ClearanceForm, error)
}

// CertificateHandler serves certificate verification and downloads.
type CertificateHandler struct {
	service certificateService
}

// NewCertificateHandler constructs the handler.
func NewCertificateHandler(service certificateService) *CertificateHandler {
	return &CertificateHandler{service: service}
}

// Verify godoc
// @Summary Verify a certificate token
// @Tags Certificates
// @Produce json
// @Param token query string true "Signed certificate token"
// @Success 200 {object} response.Envelope
// @Router /certificates/verify [get]
func (h *CertificateHandler) Verify(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	form, err := h.service.Verify(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"valid":          true,
		"registrationNo": form.RegistrationNo,
		"studentName":    form.StudentName,
		"passingYear":    form.PassingYear,
		"completedAt":    form.UpdatedAt,
	}, nil)
}

// Download godoc
// @Summary Download a certificate PDF
// @Tags Certificates
// @Produce application/pdf
// @Param token query string true "Signed certificate token"
// @Success 200 {file} file
// @Router /certificates/download [get]
func (h *CertificateHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, form, err := h.service.Open(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "certificate file unavailable"))
		return
	}

	filename := fmt.Sprintf("no-dues-%s.pdf", form.RegistrationNo)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.DataFromReader(http.StatusOK, info.Size(), "application/pdf", file, nil)
}
