package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/internal/service"
	appErrors "github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/errors"
	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/response"
)

// RegistrationHandler exposes the public student registration endpoints.
type RegistrationHandler struct {
	validation   *service.ValidationService
	registration *service.RegistrationService
}

// NewRegistrationHandler constructs RegistrationHandler.
func NewRegistrationHandler(validation *service.ValidationService, registration *service.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{validation: validation, registration: registration}
}

type validateRequest struct {
	CodigoEstudiante string `json:"codigo_estudiante" binding:"required"`
	DNI              string `json:"dni" binding:"required"`
}

type resendRequest struct {
	DNI string `json:"dni" binding:"required"`
}

// Validate godoc
// @Summary Validate an enrollment code against a DNI
// @Tags Registro
// @Accept json
// @Produce json
// @Param payload body validateRequest true "Code and DNI"
// @Success 200 {object} response.Envelope
// @Router /registro/validar [post]
func (h *RegistrationHandler) Validate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.validation.Validate(c.Request.Context(), req.CodigoEstudiante, req.DNI)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Start godoc
// @Summary Begin registration completion
// @Tags Registro
// @Accept json
// @Produce json
// @Param payload body service.StartRegistrationRequest true "Profile payload"
// @Success 200 {object} response.Envelope
// @Router /registro/iniciar [post]
func (h *RegistrationHandler) Start(c *gin.Context) {
	var req service.StartRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	resp, err := h.registration.Start(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// Confirm godoc
// @Summary Confirm the verification code and activate the account
// @Tags Registro
// @Accept json
// @Produce json
// @Param payload body service.ConfirmRegistrationRequest true "Verification payload"
// @Success 200 {object} response.Envelope
// @Router /registro/confirmar [post]
func (h *RegistrationHandler) Confirm(c *gin.Context) {
	var req service.ConfirmRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.registration.Confirm(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"activado": true}, nil)
}

// Resend godoc
// @Summary Resend the verification code
// @Tags Registro
// @Accept json
// @Produce json
// @Param payload body resendRequest true "DNI payload"
// @Success 200 {object} response.Envelope
// @Router /registro/reenviar [post]
func (h *RegistrationHandler) Resend(c *gin.Context) {
	var req resendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.registration.ResendCode(c.Request.Context(), req.DNI); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"reenviado": true}, nil)
}
