package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storagepricing/internal/domain/availability"
	domainpricing "storagepricing/internal/domain/pricing"
	"storagepricing/internal/domain/shared/money"
	"storagepricing/internal/infra/storage/memory"
)

type flatRates struct{}

func (flatRates) BaseRate(ctx context.Context, facilityID int64, unitType string) (money.Money, error) {
	return money.Must(10_000, "USD"), nil
}

func testService(t *testing.T, clock *time.Time, rules ...domainpricing.Rule) (*Service, *memory.SnapshotStore) {
	t.Helper()
	now := func() time.Time { return *clock }

	ruleStore := memory.NewRuleStore()
	ruleStore.Now = now
	ctx := context.Background()
	for _, r := range rules {
		added, err := ruleStore.Add(ctx, r)
		require.NoError(t, err)
		require.NoError(t, ruleStore.Activate(ctx, added.ID))
	}

	snaps := memory.NewSnapshotStore()
	snaps.Now = now

	svc := &Service{
		Engine: &domainpricing.Engine{
			Rules:     ruleStore,
			Snapshots: snaps,
			BaseRates: flatRates{},
			Now:       now,
		},
		Snapshots: snaps,
		Demand:    availability.DefaultDemandPolicy(),
		Now:       now,
	}
	return svc, snaps
}

func TestRecommendationsPersistRecommendedPrice(t *testing.T) {
	clock := time.Date(2025, 6, 16, 8, 0, 0, 0, time.UTC)
	minOcc := 85.0
	svc, snaps := testService(t, &clock,
		domainpricing.Rule{Name: "near-full", Priority: 10, MinOccupancyRate: &minOcc,
			AdjustmentType: domainpricing.AdjustPercentage, AdjustmentValue: 10, Compoundable: true},
	)
	ctx := context.Background()

	key := availability.Key{FacilityID: 1, UnitType: "SMALL", UnitSize: "5x5"}
	_, err := snaps.Track(ctx, key, 10)
	require.NoError(t, err)
	_, err = snaps.ApplyChange(ctx, key, availability.Delta{Bookings: 9})
	require.NoError(t, err)

	recs, err := svc.Recommendations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, int64(10_000), rec.CurrentPrice.Amount)
	assert.Equal(t, int64(11_000), rec.RecommendedPrice.Amount)
	assert.Equal(t, "few units left at this size", rec.Reason)
	assert.Equal(t, 90, rec.Confidence)

	latest, err := snaps.GetLatest(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), latest.CurrentPrice.Amount)
	assert.Equal(t, int64(11_000), latest.RecommendedPrice.Amount)
	assert.Equal(t, int64(1_000), latest.PriceAdjustment.Amount)
}

func TestRecommendationsPenalizeContextSensitivePrices(t *testing.T) {
	clock := time.Date(2025, 6, 16, 8, 0, 0, 0, time.UTC)
	minOcc := 95.0
	svc, snaps := testService(t, &clock,
		domainpricing.Rule{Name: "knife-edge surge", Priority: 10, MinOccupancyRate: &minOcc,
			AdjustmentType: domainpricing.AdjustPercentage, AdjustmentValue: 50, Compoundable: true},
	)
	ctx := context.Background()

	key := availability.Key{FacilityID: 1, UnitType: "SMALL", UnitSize: "5x5"}
	_, err := snaps.Track(ctx, key, 10)
	require.NoError(t, err)
	_, err = snaps.ApplyChange(ctx, key, availability.Delta{Bookings: 9})
	require.NoError(t, err)

	// At 90% occupancy the surge rule is off, but a small shift upward
	// would add 50%. That spread costs confidence.
	recs, err := svc.Recommendations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(10_000), recs[0].RecommendedPrice.Amount)
	assert.Equal(t, 80, recs[0].Confidence)
}

func TestRecommendationsUnknownFacility(t *testing.T) {
	clock := time.Date(2025, 6, 16, 8, 0, 0, 0, time.UTC)
	svc, _ := testService(t, &clock)

	_, err := svc.Recommendations(context.Background(), 42)
	assert.ErrorIs(t, err, availability.ErrSnapshotNotFound)
}

func TestRecommendationReason(t *testing.T) {
	up := money.Must(500, "USD")
	down := money.Must(-500, "USD")
	zero := money.Money{Currency: "USD"}

	tests := []struct {
		name       string
		snap       availability.Snapshot
		adjustment money.Money
		want       string
	}{
		{"high demand and scarce", availability.Snapshot{DemandScore: 85, TotalUnits: 10, AvailableUnits: 1}, up, "high demand with little remaining inventory"},
		{"high demand only", availability.Snapshot{DemandScore: 85, TotalUnits: 10, AvailableUnits: 5}, up, "sustained booking pressure"},
		{"scarce only", availability.Snapshot{DemandScore: 40, TotalUnits: 10, AvailableUnits: 2}, up, "few units left at this size"},
		{"slack and discounting", availability.Snapshot{DemandScore: 20, OccupancyRate: 30, TotalUnits: 10, AvailableUnits: 7}, down, "slack occupancy, price to fill"},
		{"steady state", availability.Snapshot{DemandScore: 50, OccupancyRate: 60, TotalUnits: 10, AvailableUnits: 4}, zero, "current price matches market conditions"},
		{"generic adjustment", availability.Snapshot{DemandScore: 50, OccupancyRate: 60, TotalUnits: 10, AvailableUnits: 4}, up, "rule-driven adjustment to current conditions"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, recommendationReason(tc.snap, tc.adjustment))
		})
	}
}

func TestConfidenceDegradesWithAge(t *testing.T) {
	now := time.Date(2025, 6, 16, 8, 0, 0, 0, time.UTC)

	fresh := availability.Snapshot{Timestamp: now.Add(-time.Hour)}
	dayOld := availability.Snapshot{Timestamp: now.Add(-36 * time.Hour)}
	weekOld := availability.Snapshot{Timestamp: now.Add(-8 * 24 * time.Hour)}

	assert.Equal(t, 90, confidence(fresh, domainpricing.Result{}, now))
	assert.Equal(t, 70, confidence(dayOld, domainpricing.Result{}, now))
	assert.Equal(t, 50, confidence(weekOld, domainpricing.Result{}, now))
	assert.Equal(t, 75, confidence(fresh, domainpricing.Result{StaleData: true}, now))
	assert.Equal(t, 35, confidence(weekOld, domainpricing.Result{StaleData: true}, now))
}

func TestForecastProjectsLinearTrend(t *testing.T) {
	start := time.Date(2025, 6, 14, 8, 0, 0, 0, time.UTC)
	clock := start
	svc, snaps := testService(t, &clock)
	ctx := context.Background()

	key := availability.Key{FacilityID: 1, UnitType: "SMALL", UnitSize: "5x5"}
	_, err := snaps.Track(ctx, key, 10)
	require.NoError(t, err)
	clock = start.AddDate(0, 0, 2)
	_, err = snaps.ApplyChange(ctx, key, availability.Delta{Bookings: 2})
	require.NoError(t, err)

	// Occupancy went 0 -> 20 over two days; the trend adds 10 per day.
	points, err := svc.Forecast(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.InDelta(t, 30, points[0].ExpectedOccupancy, 0.001)
	assert.InDelta(t, 40, points[1].ExpectedOccupancy, 0.001)
	assert.InDelta(t, 50, points[2].ExpectedOccupancy, 0.001)
	assert.Equal(t, 21, points[0].DemandScore)
	assert.Equal(t, 35, points[2].DemandScore)
	for _, p := range points {
		assert.Equal(t, int64(10_000), p.RecommendedPrice.Amount)
	}
	assert.True(t, points[0].Date.After(clock.Add(-24*time.Hour)))
}

func TestForecastValidation(t *testing.T) {
	clock := time.Date(2025, 6, 16, 8, 0, 0, 0, time.UTC)
	svc, _ := testService(t, &clock)

	_, err := svc.Forecast(context.Background(), 1, 0)
	assert.ErrorIs(t, err, ErrInvalidForecastDays)

	_, err = svc.Forecast(context.Background(), 1, 7)
	assert.ErrorIs(t, err, availability.ErrSnapshotNotFound)
}

func TestHistoryMapsSnapshots(t *testing.T) {
	clock := time.Date(2025, 6, 16, 8, 0, 0, 0, time.UTC)
	svc, snaps := testService(t, &clock)
	ctx := context.Background()

	key := availability.Key{FacilityID: 1, UnitType: "SMALL", UnitSize: "5x5"}
	_, err := snaps.Track(ctx, key, 10)
	require.NoError(t, err)
	_, err = snaps.ApplyChange(ctx, key, availability.Delta{Bookings: 4})
	require.NoError(t, err)

	points, err := svc.History(ctx, 1, "SMALL", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, float64(0), points[0].OccupancyRate)
	assert.Equal(t, float64(40), points[1].OccupancyRate)
}

func TestLinearTrendEdgeCases(t *testing.T) {
	trend := LinearTrend{}

	assert.Nil(t, trend.Project(nil, 5))

	single := []availability.Snapshot{{OccupancyRate: 60, Timestamp: time.Now()}}
	flat := trend.Project(single, 3)
	require.Len(t, flat, 3)
	for _, occ := range flat {
		assert.Equal(t, float64(60), occ)
	}

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	steep := []availability.Snapshot{
		{OccupancyRate: 50, Timestamp: base},
		{OccupancyRate: 90, Timestamp: base.AddDate(0, 0, 1)},
	}
	capped := trend.Project(steep, 3)
	require.Len(t, capped, 3)
	assert.Equal(t, float64(100), capped[1])
	assert.Equal(t, float64(100), capped[2])
}
