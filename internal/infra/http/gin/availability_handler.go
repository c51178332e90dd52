package ginserver

import (
	"net/http"
	"strconv"
	"time"

	gin "github.com/gin-gonic/gin"

	"storagepricing/internal/app/dto"
	availabilityapp "storagepricing/internal/app/services/availability"
	"storagepricing/internal/domain/availability"
)

type AvailabilityHandler struct {
	Service *availabilityapp.Service
}

func (h AvailabilityHandler) Get(c *gin.Context) {
	facilityID, ok := facilityIDParam(c)
	if !ok {
		return
	}
	view, err := h.Service.Get(c.Request.Context(), facilityID, c.Query("unit_type"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MapAvailabilityView(view))
}

func (h AvailabilityHandler) Update(c *gin.Context) {
	var req dto.UpdateAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, err := h.Service.Update(c.Request.Context(), req.Key(), req.DomainChanges())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MapSnapshot(snap))
}

func (h AvailabilityHandler) Track(c *gin.Context) {
	var req dto.TrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, err := h.Service.Track(c.Request.Context(), req.Key(), req.TotalUnits)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.MapSnapshot(snap))
}

type retireRequest struct {
	FacilityID int64  `json:"facility_id" binding:"required"`
	UnitType   string `json:"unit_type" binding:"required"`
	UnitSize   string `json:"unit_size" binding:"required"`
}

func (h AvailabilityHandler) Retire(c *gin.Context) {
	var req retireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	key := availability.Key{FacilityID: req.FacilityID, UnitType: req.UnitType, UnitSize: req.UnitSize}
	if err := h.Service.Retire(c.Request.Context(), key); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h AvailabilityHandler) LowAvailability(c *gin.Context) {
	threshold, err := strconv.Atoi(c.DefaultQuery("threshold", "5"))
	if err != nil || threshold < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid threshold"})
		return
	}
	since := time.Now().UTC().Add(-24 * time.Hour)
	if raw := c.Query("since"); raw != "" {
		parsed, parseErr := time.Parse(time.RFC3339, raw)
		if parseErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since timestamp"})
			return
		}
		since = parsed
	}
	snaps, err := h.Service.LowAvailability(c.Request.Context(), threshold, since)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": dto.MapSnapshots(snaps)})
}

var _ AvailabilityHTTP = AvailabilityHandler{}
