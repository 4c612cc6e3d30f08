package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/internal/middleware"
	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/internal/models"
	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/internal/service"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func actionMeta(c *gin.Context) service.ActionMeta {
	meta := service.ActionMeta{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if claims := claimsFromContext(c); claims != nil {
		meta.ActorID = claims.UserID
	}
	return meta
}
