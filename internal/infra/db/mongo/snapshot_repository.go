package mongo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storagepricing/internal/domain/availability"
	"storagepricing/internal/domain/shared/money"
)

const (
	latestCollection  = "availability_latest"
	historyCollection = "availability_history"

	applyRetries = 5
)

var ErrConcurrentUpdate = errors.New("mongo: concurrent update detected")

// SnapshotRepository is the Mongo-backed availability store. Per-key
// serialization uses a version field with compare-and-set updates
// instead of process-local locks, retried a bounded number of times.
type SnapshotRepository struct {
	Demand         availability.DemandPolicy
	VelocityWindow time.Duration
	Now            func() time.Time

	latest  *mongo.Collection
	history *mongo.Collection
}

func NewSnapshotRepository(db *mongo.Database) *SnapshotRepository {
	return &SnapshotRepository{
		Demand:         availability.DefaultDemandPolicy(),
		VelocityWindow: 24 * time.Hour,
		latest:         db.Collection(latestCollection),
		history:        db.Collection(historyCollection),
	}
}

type moneyDocument struct {
	Cents    int64  `bson:"cents"`
	Currency string `bson:"currency"`
}

func newMoneyDocument(m money.Money) moneyDocument {
	return moneyDocument{Cents: m.Amount, Currency: m.Currency}
}

func (d moneyDocument) toMoney() money.Money {
	return money.Money{Amount: d.Cents, Currency: d.Currency}
}

type snapshotDocument struct {
	ID               string        `bson:"_id"`
	FacilityID       int64         `bson:"facility_id"`
	UnitType         string        `bson:"unit_type"`
	UnitSize         string        `bson:"unit_size"`
	TotalUnits       int           `bson:"total_units"`
	AvailableUnits   int           `bson:"available_units"`
	ReservedUnits    int           `bson:"reserved_units"`
	OccupiedUnits    int           `bson:"occupied_units"`
	MaintenanceUnits int           `bson:"maintenance_units"`
	OccupancyRate    float64       `bson:"occupancy_rate"`
	DemandScore      int           `bson:"demand_score"`
	CurrentPrice     moneyDocument `bson:"current_price"`
	RecommendedPrice moneyDocument `bson:"recommended_price"`
	PriceAdjustment  moneyDocument `bson:"price_adjustment"`
	LastBookingAt    int64         `bson:"last_booking_at"`
	NextAvailableAt  int64         `bson:"next_available_at"`
	Timestamp        int64         `bson:"timestamp"`
	Active           bool          `bson:"active"`
	BookingMarks     []int64       `bson:"booking_marks,omitempty"`
	Version          int64         `bson:"version"`
}

type historyDocument struct {
	Key              string        `bson:"key"`
	FacilityID       int64         `bson:"facility_id"`
	UnitType         string        `bson:"unit_type"`
	UnitSize         string        `bson:"unit_size"`
	TotalUnits       int           `bson:"total_units"`
	AvailableUnits   int           `bson:"available_units"`
	ReservedUnits    int           `bson:"reserved_units"`
	OccupiedUnits    int           `bson:"occupied_units"`
	MaintenanceUnits int           `bson:"maintenance_units"`
	OccupancyRate    float64       `bson:"occupancy_rate"`
	DemandScore      int           `bson:"demand_score"`
	CurrentPrice     moneyDocument `bson:"current_price"`
	RecommendedPrice moneyDocument `bson:"recommended_price"`
	PriceAdjustment  moneyDocument `bson:"price_adjustment"`
	LastBookingAt    int64         `bson:"last_booking_at"`
	Timestamp        int64         `bson:"timestamp"`
}

func newSnapshotDocument(snap availability.Snapshot, marks []int64, version int64) snapshotDocument {
	return snapshotDocument{
		ID:               snap.Key().String(),
		FacilityID:       snap.FacilityID,
		UnitType:         snap.UnitType,
		UnitSize:         snap.UnitSize,
		TotalUnits:       snap.TotalUnits,
		AvailableUnits:   snap.AvailableUnits,
		ReservedUnits:    snap.ReservedUnits,
		OccupiedUnits:    snap.OccupiedUnits,
		MaintenanceUnits: snap.MaintenanceUnits,
		OccupancyRate:    snap.OccupancyRate,
		DemandScore:      snap.DemandScore,
		CurrentPrice:     newMoneyDocument(snap.CurrentPrice),
		RecommendedPrice: newMoneyDocument(snap.RecommendedPrice),
		PriceAdjustment:  newMoneyDocument(snap.PriceAdjustment),
		LastBookingAt:    timeToMillis(snap.LastBookingAt),
		NextAvailableAt:  timeToMillis(snap.NextAvailableAt),
		Timestamp:        timeToMillis(snap.Timestamp),
		Active:           snap.Active,
		BookingMarks:     marks,
		Version:          version,
	}
}

func (d snapshotDocument) toSnapshot() availability.Snapshot {
	return availability.Snapshot{
		FacilityID:       d.FacilityID,
		UnitType:         d.UnitType,
		UnitSize:         d.UnitSize,
		TotalUnits:       d.TotalUnits,
		AvailableUnits:   d.AvailableUnits,
		ReservedUnits:    d.ReservedUnits,
		OccupiedUnits:    d.OccupiedUnits,
		MaintenanceUnits: d.MaintenanceUnits,
		OccupancyRate:    d.OccupancyRate,
		DemandScore:      d.DemandScore,
		CurrentPrice:     d.CurrentPrice.toMoney(),
		RecommendedPrice: d.RecommendedPrice.toMoney(),
		PriceAdjustment:  d.PriceAdjustment.toMoney(),
		LastBookingAt:    millisToTime(d.LastBookingAt),
		NextAvailableAt:  millisToTime(d.NextAvailableAt),
		Timestamp:        millisToTime(d.Timestamp),
		Active:           d.Active,
	}
}

func newHistoryDocument(snap availability.Snapshot) historyDocument {
	return historyDocument{
		Key:              snap.Key().String(),
		FacilityID:       snap.FacilityID,
		UnitType:         snap.UnitType,
		UnitSize:         snap.UnitSize,
		TotalUnits:       snap.TotalUnits,
		AvailableUnits:   snap.AvailableUnits,
		ReservedUnits:    snap.ReservedUnits,
		OccupiedUnits:    snap.OccupiedUnits,
		MaintenanceUnits: snap.MaintenanceUnits,
		OccupancyRate:    snap.OccupancyRate,
		DemandScore:      snap.DemandScore,
		CurrentPrice:     newMoneyDocument(snap.CurrentPrice),
		RecommendedPrice: newMoneyDocument(snap.RecommendedPrice),
		PriceAdjustment:  newMoneyDocument(snap.PriceAdjustment),
		LastBookingAt:    timeToMillis(snap.LastBookingAt),
		Timestamp:        timeToMillis(snap.Timestamp),
	}
}

func (d historyDocument) toSnapshot() availability.Snapshot {
	return availability.Snapshot{
		FacilityID:       d.FacilityID,
		UnitType:         d.UnitType,
		UnitSize:         d.UnitSize,
		TotalUnits:       d.TotalUnits,
		AvailableUnits:   d.AvailableUnits,
		ReservedUnits:    d.ReservedUnits,
		OccupiedUnits:    d.OccupiedUnits,
		MaintenanceUnits: d.MaintenanceUnits,
		OccupancyRate:    d.OccupancyRate,
		DemandScore:      d.DemandScore,
		CurrentPrice:     d.CurrentPrice.toMoney(),
		RecommendedPrice: d.RecommendedPrice.toMoney(),
		PriceAdjustment:  d.PriceAdjustment.toMoney(),
		LastBookingAt:    millisToTime(d.LastBookingAt),
		Timestamp:        millisToTime(d.Timestamp),
		Active:           true,
	}
}

func (r *SnapshotRepository) Track(ctx context.Context, key availability.Key, totalUnits int) (availability.Snapshot, error) {
	if totalUnits <= 0 {
		return availability.Snapshot{}, fmt.Errorf("%w: %d for %s", availability.ErrInvalidTotal, totalUnits, key)
	}
	now := r.now()
	snap := availability.Snapshot{
		FacilityID:     key.FacilityID,
		UnitType:       key.UnitType,
		UnitSize:       key.UnitSize,
		TotalUnits:     totalUnits,
		AvailableUnits: totalUnits,
		Timestamp:      now,
		Active:         true,
	}
	snap.DemandScore = r.Demand.Score(0, 0)

	if _, err := r.latest.InsertOne(ctx, newSnapshotDocument(snap, nil, 1)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return availability.Snapshot{}, fmt.Errorf("%w: %s", availability.ErrAlreadyTracked, key)
		}
		return availability.Snapshot{}, err
	}
	if _, err := r.history.InsertOne(ctx, newHistoryDocument(snap)); err != nil {
		return availability.Snapshot{}, err
	}
	return snap, nil
}

func (r *SnapshotRepository) GetLatest(ctx context.Context, key availability.Key) (availability.Snapshot, error) {
	doc, err := r.findLatest(ctx, key)
	if err != nil {
		return availability.Snapshot{}, err
	}
	if !doc.Active {
		return availability.Snapshot{}, fmt.Errorf("%w: %s retired", availability.ErrSnapshotNotFound, key)
	}
	return doc.toSnapshot(), nil
}

func (r *SnapshotRepository) FacilityAggregate(ctx context.Context, facilityID int64, unitType string) (availability.Snapshot, error) {
	filter := bson.M{"facility_id": facilityID, "active": true}
	if unitType != "" {
		filter["unit_type"] = unitType
	}
	snaps, err := r.findSnapshots(ctx, r.latest, filter, nil)
	if err != nil {
		return availability.Snapshot{}, err
	}
	if len(snaps) == 0 {
		return availability.Snapshot{}, fmt.Errorf("%w: facility %d unit %q", availability.ErrSnapshotNotFound, facilityID, unitType)
	}

	agg := availability.Snapshot{FacilityID: facilityID, UnitType: unitType, Active: true}
	var weightedDemand float64
	for _, snap := range snaps {
		agg.TotalUnits += snap.TotalUnits
		agg.AvailableUnits += snap.AvailableUnits
		agg.ReservedUnits += snap.ReservedUnits
		agg.OccupiedUnits += snap.OccupiedUnits
		agg.MaintenanceUnits += snap.MaintenanceUnits
		weightedDemand += float64(snap.DemandScore) * float64(snap.TotalUnits)
		if snap.Timestamp.After(agg.Timestamp) {
			agg.Timestamp = snap.Timestamp
		}
		if snap.LastBookingAt.After(agg.LastBookingAt) {
			agg.LastBookingAt = snap.LastBookingAt
		}
	}
	agg.OccupancyRate = agg.OccupancyOf()
	if agg.TotalUnits > 0 {
		agg.DemandScore = int(math.Round(weightedDemand / float64(agg.TotalUnits)))
	}
	return agg, nil
}

func (r *SnapshotRepository) LatestByFacility(ctx context.Context, facilityID int64) ([]availability.Snapshot, error) {
	filter := bson.M{"facility_id": facilityID, "active": true}
	sortSpec := bson.D{{Key: "unit_type", Value: 1}, {Key: "unit_size", Value: 1}}
	return r.findSnapshots(ctx, r.latest, filter, sortSpec)
}

// ApplyChange performs an optimistic read-modify-write on the latest
// document. A lost race re-reads fresh counts and retries, so invariant
// checks always run against the committed state.
func (r *SnapshotRepository) ApplyChange(ctx context.Context, key availability.Key, delta availability.Delta) (availability.Snapshot, error) {
	for attempt := 0; attempt < applyRetries; attempt++ {
		doc, err := r.findLatest(ctx, key)
		if err != nil {
			return availability.Snapshot{}, err
		}
		now := r.now()
		next, err := availability.Apply(doc.toSnapshot(), delta, now)
		if err != nil {
			return availability.Snapshot{}, err
		}

		marks := trimMarks(doc.BookingMarks, now, r.velocityWindow())
		for i := 0; i < delta.Bookings; i++ {
			marks = append(marks, timeToMillis(now))
		}
		next.DemandScore = r.Demand.Score(next.OccupancyRate, marksPerHour(marks, r.velocityWindow()))

		updated := newSnapshotDocument(next, marks, doc.Version+1)
		res, err := r.latest.UpdateOne(ctx,
			bson.M{"_id": doc.ID, "version": doc.Version},
			bson.M{"$set": updated})
		if err != nil {
			return availability.Snapshot{}, err
		}
		if res.MatchedCount == 0 {
			continue
		}
		if _, err := r.history.InsertOne(ctx, newHistoryDocument(next)); err != nil {
			return availability.Snapshot{}, err
		}
		return next, nil
	}
	return availability.Snapshot{}, fmt.Errorf("%w: %s", ErrConcurrentUpdate, key)
}

func (r *SnapshotRepository) History(ctx context.Context, facilityID int64, unitType string, from, to time.Time) ([]availability.Snapshot, error) {
	filter := bson.M{"facility_id": facilityID}
	if unitType != "" {
		filter["unit_type"] = unitType
	}
	window := bson.M{}
	if !from.IsZero() {
		window["$gte"] = timeToMillis(from)
	}
	if !to.IsZero() {
		window["$lte"] = timeToMillis(to)
	}
	if len(window) > 0 {
		filter["timestamp"] = window
	}
	cursor, err := r.history.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []historyDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]availability.Snapshot, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toSnapshot())
	}
	return out, nil
}

func (r *SnapshotRepository) FindLowAvailability(ctx context.Context, thresholdUnits int, since time.Time) ([]availability.Snapshot, error) {
	filter := bson.M{
		"active":          true,
		"available_units": bson.M{"$lt": thresholdUnits},
		"timestamp":       bson.M{"$gte": timeToMillis(since)},
	}
	return r.findSnapshots(ctx, r.latest, filter, bson.D{{Key: "available_units", Value: 1}})
}

func (r *SnapshotRepository) SetPrices(ctx context.Context, key availability.Key, current, recommended, adjustment money.Money) error {
	res, err := r.latest.UpdateOne(ctx, bson.M{"_id": key.String()}, bson.M{"$set": bson.M{
		"current_price":     newMoneyDocument(current),
		"recommended_price": newMoneyDocument(recommended),
		"price_adjustment":  newMoneyDocument(adjustment),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", availability.ErrSnapshotNotFound, key)
	}
	return nil
}

func (r *SnapshotRepository) PruneHistory(ctx context.Context, before time.Time) ([]availability.Snapshot, error) {
	filter := bson.M{"timestamp": bson.M{"$lt": timeToMillis(before)}}
	cursor, err := r.history.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []historyDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	if _, err := r.history.DeleteMany(ctx, filter); err != nil {
		return nil, err
	}
	out := make([]availability.Snapshot, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toSnapshot())
	}
	return out, nil
}

func (r *SnapshotRepository) Retire(ctx context.Context, key availability.Key) error {
	res, err := r.latest.UpdateOne(ctx, bson.M{"_id": key.String()}, bson.M{"$set": bson.M{"active": false}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", availability.ErrSnapshotNotFound, key)
	}
	return nil
}

func (r *SnapshotRepository) findLatest(ctx context.Context, key availability.Key) (snapshotDocument, error) {
	var doc snapshotDocument
	err := r.latest.FindOne(ctx, bson.M{"_id": key.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return snapshotDocument{}, fmt.Errorf("%w: %s", availability.ErrSnapshotNotFound, key)
	}
	if err != nil {
		return snapshotDocument{}, err
	}
	return doc, nil
}

func (r *SnapshotRepository) findSnapshots(ctx context.Context, col *mongo.Collection, filter bson.M, sortSpec bson.D) ([]availability.Snapshot, error) {
	opts := options.Find()
	if sortSpec != nil {
		opts.SetSort(sortSpec)
	}
	cursor, err := col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []snapshotDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]availability.Snapshot, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toSnapshot())
	}
	return out, nil
}

func (r *SnapshotRepository) velocityWindow() time.Duration {
	if r.VelocityWindow <= 0 {
		return 24 * time.Hour
	}
	return r.VelocityWindow
}

func (r *SnapshotRepository) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func trimMarks(marks []int64, now time.Time, window time.Duration) []int64 {
	cutoff := timeToMillis(now.Add(-window))
	idx := 0
	for idx < len(marks) && marks[idx] < cutoff {
		idx++
	}
	return append([]int64(nil), marks[idx:]...)
}

func marksPerHour(marks []int64, window time.Duration) float64 {
	hours := window.Hours()
	if hours <= 0 {
		return 0
	}
	return float64(len(marks)) / hours
}

func timeToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func millisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

var _ availability.Store = (*SnapshotRepository)(nil)
