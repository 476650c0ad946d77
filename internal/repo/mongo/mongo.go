// Package mongo stores monitors, check results and incidents in MongoDB
// using the collection layout of the original deployment.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/repo"
)

var _ repo.Store = (*Store)(nil)

const DefaultDatabase = "uptime_monitor"

type Store struct {
	client    *mongo.Client
	monitors  *mongo.Collection
	results   *mongo.Collection
	incidents *mongo.Collection
	log       *zap.Logger
}

// New connects to uri, pings the primary and ensures indexes.
func New(ctx context.Context, uri, database string, log *zap.Logger) (*Store, error) {
	if database == "" {
		database = DefaultDatabase
	}
	opts := options.Client().
		ApplyURI(uri).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctxPing, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:    client,
		monitors:  db.Collection("monitors"),
		results:   db.Collection("check_results"),
		incidents: db.Collection("incidents"),
		log:       log,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err1 := s.monitors.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
	})
	_, err2 := s.results.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "monitor_id", Value: 1}, {Key: "timestamp", Value: -1}},
	})
	_, err3 := s.incidents.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "monitor_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{
			Keys: bson.D{{Key: "monitor_id", Value: 1}},
			Options: options.Index().
				SetName("one_ongoing_per_monitor").
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "status", Value: string(domain.IncidentOngoing)}}),
		},
	})
	return multierr.Combine(err1, err2, err3)
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func newID() string { return primitive.NewObjectID().Hex() }

// ---- MonitorStore ----

func (s *Store) CreateMonitor(ctx context.Context, m *domain.Monitor) error {
	if m.ID == "" {
		m.ID = newID()
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	m.Status = domain.StatusPending
	m.UptimePercentage = 100
	m.LastCheck = nil
	m.LastResponseTimeMS = nil
	if _, err := s.monitors.InsertOne(ctx, m); err != nil {
		return fmt.Errorf("insert monitor: %w", err)
	}
	return nil
}

func (s *Store) GetMonitor(ctx context.Context, id string) (*domain.Monitor, error) {
	var m domain.Monitor
	err := s.monitors.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get monitor: %w", err)
	}
	return &m, nil
}

func (s *Store) ListMonitors(ctx context.Context, f repo.MonitorFilter) ([]*domain.Monitor, error) {
	filter := bson.M{}
	if f.Group != "" {
		filter["group"] = f.Group
	}
	if f.ActiveOnly {
		filter["is_paused"] = bson.M{"$ne": true}
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.monitors.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	var out []*domain.Monitor
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode monitors: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateMonitor(ctx context.Context, m *domain.Monitor) error {
	m.UpdatedAt = time.Now().UTC()
	res, err := s.monitors.UpdateOne(ctx, bson.M{"_id": m.ID}, bson.M{"$set": bson.M{
		"name":       m.Name,
		"user_id":    m.OwnerID,
		"type":       m.Type,
		"url":        m.Target,
		"interval":   m.Interval,
		"timeout":    m.Timeout,
		"params":     m.Params,
		"is_paused":  m.Paused,
		"group":      m.Group,
		"tags":       m.Tags,
		"notes":      m.Notes,
		"updated_at": m.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("update monitor: %w", err)
	}
	if res.MatchedCount == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) RecordCheck(ctx context.Context, id string, u domain.CheckUpdate) error {
	res, err := s.monitors.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"status":             u.Status,
		"last_check":         u.LastCheck,
		"last_response_time": u.LastResponseTimeMS,
		"uptime_percentage":  u.UptimePercentage,
	}})
	if err != nil {
		return fmt.Errorf("record check: %w", err)
	}
	if res.MatchedCount == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// DeleteMonitor removes the monitor document and then its history. A
// failure in either history collection is reported after both are tried.
func (s *Store) DeleteMonitor(ctx context.Context, id string) error {
	res, err := s.monitors.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete monitor: %w", err)
	}
	if res.DeletedCount == 0 {
		return repo.ErrNotFound
	}
	_, errResults := s.results.DeleteMany(ctx, bson.M{"monitor_id": id})
	_, errIncidents := s.incidents.DeleteMany(ctx, bson.M{"monitor_id": id})
	if err := multierr.Combine(errResults, errIncidents); err != nil {
		return fmt.Errorf("delete monitor history: %w", err)
	}
	return nil
}

func (s *Store) Groups(ctx context.Context) ([]string, error) {
	vals, err := s.monitors.Distinct(ctx, "group", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("distinct groups: %w", err)
	}
	var out []string
	for _, v := range vals {
		if g, ok := v.(string); ok && g != "" {
			out = append(out, g)
		}
	}
	if len(out) == 0 {
		return repo.DefaultGroups(), nil
	}
	slices.Sort(out)
	return out, nil
}

// ---- ResultStore ----

func (s *Store) AppendResult(ctx context.Context, r *domain.CheckResult) error {
	if r.ID == "" {
		r.ID = newID()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	if _, err := s.results.InsertOne(ctx, r); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *Store) CountResults(ctx context.Context, monitorID string, since time.Time) (int, int, error) {
	window := bson.M{"monitor_id": monitorID, "timestamp": bson.M{"$gte": since}}
	total, err := s.results.CountDocuments(ctx, window)
	if err != nil {
		return 0, 0, fmt.Errorf("count results: %w", err)
	}
	window["status"] = string(domain.StatusUp)
	up, err := s.results.CountDocuments(ctx, window)
	if err != nil {
		return 0, 0, fmt.Errorf("count up results: %w", err)
	}
	return int(up), int(total), nil
}

func (s *Store) RecentResults(ctx context.Context, monitorID string, limit int) ([]domain.CheckResult, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.results.Find(ctx, bson.M{"monitor_id": monitorID}, opts)
	if err != nil {
		return nil, fmt.Errorf("recent results: %w", err)
	}
	var out []domain.CheckResult
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	return out, nil
}

// ---- IncidentStore ----

func (s *Store) OpenIncident(ctx context.Context, inc *domain.Incident) (bool, error) {
	if inc.ID == "" {
		inc.ID = newID()
	}
	_, err := s.incidents.InsertOne(ctx, inc)
	if mongo.IsDuplicateKeyError(err) {
		s.log.Debug("incident_already_ongoing", zap.String("monitor_id", inc.MonitorID))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert incident: %w", err)
	}
	return true, nil
}

func (s *Store) OngoingIncidents(ctx context.Context, monitorID string) ([]domain.Incident, error) {
	return s.findIncidents(ctx,
		bson.M{"monitor_id": monitorID, "status": string(domain.IncidentOngoing)},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
}

// ResolveIncident reads the incident to compute its duration, then updates
// it only if it is still ongoing.
func (s *Store) ResolveIncident(ctx context.Context, id string, at time.Time) (bool, error) {
	ongoing := bson.M{"_id": id, "status": string(domain.IncidentOngoing)}
	var inc domain.Incident
	err := s.incidents.FindOne(ctx, ongoing).Decode(&inc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find incident: %w", err)
	}
	if !inc.Resolve(at) {
		return false, nil
	}
	res, err := s.incidents.UpdateOne(ctx, ongoing, bson.M{"$set": bson.M{
		"status":      inc.Status,
		"resolved_at": inc.ResolvedAt,
		"duration":    inc.DurationSeconds,
	}})
	if err != nil {
		return false, fmt.Errorf("resolve incident: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (s *Store) RecentIncidents(ctx context.Context, monitorID string, limit int) ([]domain.Incident, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.findIncidents(ctx, bson.M{"monitor_id": monitorID}, opts)
}

func (s *Store) findIncidents(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.Incident, error) {
	cur, err := s.incidents.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find incidents: %w", err)
	}
	var out []domain.Incident
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode incidents: %w", err)
	}
	return out, nil
}
