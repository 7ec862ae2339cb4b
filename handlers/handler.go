package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/mmtelinfra/sitestock_backend/models"
	"github.com/mmtelinfra/sitestock_backend/utils"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("activitytype", func(fl validator.FieldLevel) bool {
			switch models.ActivityType(fl.Field().String()) {
			case models.ActivityTypeDismantling, models.ActivityTypeRelocation, models.ActivityTypeCow:
				return true
			}
			return false
		})
	}
}

// Success writes the uniform success envelope.
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"data": data})
}

// RespondError maps the engine's error taxonomy onto HTTP status codes.
func RespondError(c *gin.Context, err error) {
	var (
		validationErr *utils.ValidationError
		notFoundErr   *utils.NotFoundError
		conflictErr   *utils.ConflictError
		stateErr      *utils.StateError
		stockErr      *utils.InsufficientStockError
	)
	switch {
	case errors.As(err, &validationErr), errors.As(err, &stateErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &notFoundErr), errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &conflictErr):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &stockErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":     err.Error(),
			"available": stockErr.Available,
			"requested": stockErr.Requested,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// BadRequest reports malformed request payloads (binding failures).
func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
