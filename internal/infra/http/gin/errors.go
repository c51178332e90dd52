package ginserver

import (
	"errors"
	"net/http"

	gin "github.com/gin-gonic/gin"

	availabilityapp "storagepricing/internal/app/services/availability"
	pricingapp "storagepricing/internal/app/services/pricing"
	"storagepricing/internal/domain/availability"
	"storagepricing/internal/domain/pricing"
)

// respondError translates domain errors into HTTP statuses. Unknown
// errors surface as 500 without leaking internals to the client.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, availability.ErrSnapshotNotFound),
		errors.Is(err, pricing.ErrRuleNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, availability.ErrInvariantViolation),
		errors.Is(err, availability.ErrInvalidTransition),
		errors.Is(err, availability.ErrAlreadyTracked):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, availability.ErrInvalidTotal),
		errors.Is(err, pricing.ErrInvalidDuration),
		errors.Is(err, availabilityapp.ErrNoChanges),
		errors.Is(err, pricingapp.ErrInvalidForecastDays):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, pricing.ErrEngineNotReady):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
