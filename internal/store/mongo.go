package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"taskping/pkg/logx"
)

const mongoOpTimeout = 5 * time.Second

type mongoStore struct {
	client   *mongo.Client
	tasks    *mongo.Collection
	settings *mongo.Collection
	links    *mongo.Collection
	log      logx.Logger
}

func openMongo(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, errors.New("mongo uri is required")
	}
	dbName := strings.TrimSpace(cfg.Database)
	if dbName == "" {
		dbName = "taskping"
	}

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(cctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(cctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(dbName)
	st := &mongoStore{
		client:   client,
		tasks:    db.Collection("tasks"),
		settings: db.Collection("user_settings"),
		links:    db.Collection("recipient_links"),
		log:      log,
	}
	if err := st.ensureIndexes(ctx); err != nil {
		log.Warn("mongo index creation failed", logx.Err(err))
	}
	return st, nil
}

func (s *mongoStore) ensureIndexes(ctx context.Context) error {
	ictx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()
	_, err := s.tasks.Indexes().CreateMany(ictx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "completed", Value: 1}, {Key: "due_date", Value: 1}}},
		{Keys: bson.D{{Key: "owner_id", Value: 1}}},
	})
	return err
}

func (s *mongoStore) QueryTasks(ctx context.Context, f TaskFilter) ([]Task, error) {
	filter := bson.M{}
	if f.Completed != nil {
		filter["completed"] = *f.Completed
	}
	if f.OwnerID != "" {
		filter["owner_id"] = f.OwnerID
	}
	if f.DueFrom != nil || f.DueTo != nil {
		rng := bson.M{}
		if f.DueFrom != nil {
			rng["$gte"] = *f.DueFrom
		}
		if f.DueTo != nil {
			rng["$lte"] = *f.DueTo
		}
		filter["due_date"] = rng
	}

	qctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()
	cur, err := s.tasks.Find(qctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(qctx)

	var out []Task
	if err := cur.All(qctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *mongoStore) GetTask(ctx context.Context, id string) (Task, error) {
	qctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()
	var t Task
	err := s.tasks.FindOne(qctx, bson.M{"_id": id}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, err
	}
	return t, nil
}

// ClaimNotification uses a conditional FindOneAndUpdate: the filter only
// matches while the marker is absent or stale, and MongoDB applies the
// per-document update atomically, so of two racing claims exactly one
// matches and the other sees no document.
func (s *mongoStore) ClaimNotification(ctx context.Context, taskID string, cat Category, now time.Time, minInterval time.Duration) (bool, error) {
	field, ok := markerField(cat)
	if !ok {
		return false, nil
	}
	cutoff := now.Add(-minInterval)
	filter := bson.M{
		"_id": taskID,
		"$or": bson.A{
			bson.M{field: bson.M{"$exists": false}},
			bson.M{field: nil},
			bson.M{field: bson.M{"$lte": cutoff}},
		},
	}
	update := bson.M{"$set": bson.M{field: now}}

	qctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()
	err := s.tasks.FindOneAndUpdate(qctx, filter, update).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		// Task missing or already notified inside the window. Either way:
		// do not send.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *mongoStore) GetUserSettings(ctx context.Context, ownerID string) (UserSettings, error) {
	qctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()
	var us UserSettings
	err := s.settings.FindOne(qctx, bson.M{"_id": ownerID}).Decode(&us)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return UserSettings{OwnerID: ownerID}, nil
	}
	if err != nil {
		return UserSettings{}, err
	}
	return us, nil
}

func (s *mongoStore) SetUserSettings(ctx context.Context, ownerID string, patch SettingsPatch) error {
	set := bson.M{}
	if patch.Timezone != nil {
		set["timezone"] = patch.Timezone.Zone
		set["timezone_offset"] = patch.Timezone.Offset
		set["timezone_display"] = patch.Timezone.Display
		set["timezone_abbreviation"] = patch.Timezone.Abbreviation
	}
	if patch.Watchers != nil {
		set["task_watchers"] = *patch.Watchers
	}
	if patch.Pending != nil {
		set["pending_watcher_requests"] = *patch.Pending
	}
	if patch.LastSummaryDate != nil {
		set["last_summary_date"] = *patch.LastSummaryDate
	}
	if len(set) == 0 {
		return nil
	}

	qctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()
	_, err := s.settings.UpdateByID(qctx, ownerID, bson.M{"$set": set}, options.Update().SetUpsert(true))
	return err
}

func (s *mongoStore) ListUserSettings(ctx context.Context) ([]UserSettings, error) {
	qctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()
	cur, err := s.settings.Find(qctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(qctx)
	var out []UserSettings
	if err := cur.All(qctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *mongoStore) ResolveRecipient(ctx context.Context, accountID string) (int64, bool, error) {
	qctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()
	var link RecipientLink
	err := s.links.FindOne(qctx, bson.M{"_id": accountID}).Decode(&link)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return link.ChatID, true, nil
}

func (s *mongoStore) ListRecipients(ctx context.Context) ([]RecipientLink, error) {
	qctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()
	cur, err := s.links.Find(qctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(qctx)
	var out []RecipientLink
	if err := cur.All(qctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *mongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
