package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/internal/models"
	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/internal/service"
	appErrors "github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/errors"
	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/response"
)

// PreRegistrationHandler exposes the admin pre-registration endpoints.
type PreRegistrationHandler struct {
	preregs   *service.PreRegistrationService
	importer  *service.ImportService
	lifecycle *service.LifecycleService
}

// NewPreRegistrationHandler constructs PreRegistrationHandler.
func NewPreRegistrationHandler(preregs *service.PreRegistrationService, importer *service.ImportService, lifecycle *service.LifecycleService) *PreRegistrationHandler {
	return &PreRegistrationHandler{preregs: preregs, importer: importer, lifecycle: lifecycle}
}

// List godoc
// @Summary List pre-registrations
// @Tags Preregistros
// @Produce json
// @Param search query string false "Search by name or DNI"
// @Param estado query string false "Filter by stored state"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/preregistros [get]
func (h *PreRegistrationHandler) List(c *gin.Context) {
	var filter models.PreRegistrationFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.Estado = models.EstadoRegistro(strings.ToUpper(c.Query("estado")))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	items, pagination, err := h.preregs.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get pre-registration detail
// @Tags Preregistros
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /admin/preregistros/{id} [get]
func (h *PreRegistrationHandler) Get(c *gin.Context) {
	detail, err := h.preregs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Create godoc
// @Summary Create a single pre-registration
// @Tags Preregistros
// @Accept json
// @Produce json
// @Param payload body service.CreatePreRegistrationRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Router /admin/preregistros [post]
func (h *PreRegistrationHandler) Create(c *gin.Context) {
	var req service.CreatePreRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	detail, err := h.preregs.Create(c.Request.Context(), req, actionMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, detail)
}

// Import godoc
// @Summary Bulk import pre-registrations from CSV
// @Tags Preregistros
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV with header nombre,apellido,dni"
// @Success 200 {object} response.Envelope
// @Router /admin/preregistros/importar [post]
func (h *PreRegistrationHandler) Import(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()

	report, err := h.importer.ImportCSV(c.Request.Context(), src, actionMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Export godoc
// @Summary Export pre-registrations
// @Tags Preregistros
// @Produce text/csv,application/pdf
// @Param formato query string false "csv or pdf" default(csv)
// @Param estado query string false "Filter by stored state"
// @Success 200 {file} file
// @Router /admin/preregistros/exportar [get]
func (h *PreRegistrationHandler) Export(c *gin.Context) {
	formato := strings.ToLower(c.DefaultQuery("formato", "csv"))
	estado := models.EstadoRegistro(strings.ToUpper(c.Query("estado")))

	payload, contentType, err := h.preregs.Export(c.Request.Context(), formato, estado)
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("preregistros-%s.%s", time.Now().UTC().Format("20060102"), formato)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}

// Stats godoc
// @Summary Aggregate pre-registration stats
// @Tags Preregistros
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/preregistros/stats [get]
func (h *PreRegistrationHandler) Stats(c *gin.Context) {
	stats, err := h.preregs.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

type estadoRequest struct {
	Accion        string `json:"accion" binding:"required,oneof=suspender cancelar restablecer reactivar"`
	DiasExtension int    `json:"dias_extension"`
}

// UpdateEstado godoc
// @Summary Apply a lifecycle action to a pre-registration
// @Tags Preregistros
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body estadoRequest true "Action payload"
// @Success 200 {object} response.Envelope
// @Router /admin/preregistros/{id}/estado [patch]
func (h *PreRegistrationHandler) UpdateEstado(c *gin.Context) {
	var req estadoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	id := c.Param("id")
	meta := actionMeta(c)

	var rec *models.PreRegistration
	var err error
	switch req.Accion {
	case "suspender":
		rec, err = h.lifecycle.Suspender(c.Request.Context(), id, meta)
	case "cancelar":
		rec, err = h.lifecycle.Cancelar(c.Request.Context(), id, meta)
	case "restablecer":
		rec, err = h.lifecycle.Restablecer(c.Request.Context(), id, meta)
	case "reactivar":
		rec, err = h.lifecycle.Reactivar(c.Request.Context(), id, req.DiasExtension, meta)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rec, nil)
}
