package ginserver

import (
	"net/http"
	"strconv"
	"time"

	gin "github.com/gin-gonic/gin"

	"storagepricing/internal/app/dto"
	pricingapp "storagepricing/internal/app/services/pricing"
)

type PricingHandler struct {
	Service *pricingapp.Service
}

func (h PricingHandler) Calculate(c *gin.Context) {
	var req dto.PriceCalculationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.Service.Calculate(c.Request.Context(), req.ToDomain())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MapPriceResult(result))
}

func (h PricingHandler) Recommendations(c *gin.Context) {
	facilityID, ok := facilityIDParam(c)
	if !ok {
		return
	}
	recs, err := h.Service.Recommendations(c.Request.Context(), facilityID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"facility_id": facilityID, "recommendations": dto.MapRecommendations(recs)})
}

func (h PricingHandler) Forecast(c *gin.Context) {
	facilityID, ok := facilityIDParam(c)
	if !ok {
		return
	}
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid days"})
		return
	}
	points, err := h.Service.Forecast(c.Request.Context(), facilityID, days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"facility_id": facilityID, "forecast": dto.MapForecast(points)})
}

func (h PricingHandler) History(c *gin.Context) {
	facilityID, ok := facilityIDParam(c)
	if !ok {
		return
	}
	from, to, ok := timeRangeQuery(c)
	if !ok {
		return
	}
	points, err := h.Service.History(c.Request.Context(), facilityID, c.Query("unit_type"), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"facility_id": facilityID, "history": dto.MapPriceHistory(points)})
}

func facilityIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("facilityId"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid facility id"})
		return 0, false
	}
	return id, true
}

// timeRangeQuery parses optional RFC3339 from/to query params,
// defaulting to the last 30 days.
func timeRangeQuery(c *gin.Context) (time.Time, time.Time, bool) {
	now := time.Now().UTC()
	from, to := now.AddDate(0, 0, -30), now
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from timestamp"})
			return time.Time{}, time.Time{}, false
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to timestamp"})
			return time.Time{}, time.Time{}, false
		}
		to = parsed
	}
	return from, to, true
}

var _ PricingHTTP = PricingHandler{}
