package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/makkenzo/apiguard/internal/ierr"
	"github.com/makkenzo/apiguard/internal/service"
	"go.uber.org/zap"
)

type BrandHandler struct {
	service *service.BrandService
	logger  *zap.Logger
}

func NewBrandHandler(service *service.BrandService, logger *zap.Logger) *BrandHandler {
	return &BrandHandler{
		service: service,
		logger:  logger.Named("BrandHandler"),
	}
}

func (h *BrandHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	brands, err := h.service.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Service failed to list brands", zap.Error(err))
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, brands)
}

func (h *BrandHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		_ = c.Error(fmt.Errorf("%w: invalid brand id format", ierr.ErrValidation))
		return
	}

	b, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, b)
}
