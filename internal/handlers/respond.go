package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/thereayou/livechat/internal/apperr"
	"github.com/thereayou/livechat/internal/logger"
	"github.com/thereayou/livechat/internal/middleware"
	"github.com/thereayou/livechat/internal/services"
)

// respondError отдает ошибку в виде {"error": {"code", "message"}}
func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= 500 {
		logger.Ctx(c.Request.Context()).Error().Err(err).Msg("request failed")
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"code":    apperr.KindOf(err),
			"message": apperr.PublicMessage(err),
		},
	})
}

func bindError(c *gin.Context, err error) {
	respondError(c, apperr.Validation(err.Error()))
}

func currentActor(c *gin.Context) services.Actor {
	return services.Actor{ID: middleware.UserID(c), IsAdmin: middleware.IsAdmin(c)}
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, apperr.Validation("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

func pageQuery(c *gin.Context) services.Page {
	p := services.Page{Before: c.Query("before")}
	if l, err := strconv.Atoi(c.Query("limit")); err == nil {
		p.Limit = l
	}
	return p
}
