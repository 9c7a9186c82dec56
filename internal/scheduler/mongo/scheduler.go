// Package mongo is the MongoDB-backed Scheduler client, for deployments
// that keep scheduler data in Mongo rather than Postgres. Same contract:
// stable lister identities, opaque state blob, idempotent origin upsert.
package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/originwatch/originwatch/pkg/lister"
)

type Scheduler struct {
	client  *mongo.Client
	listers *mongo.Collection
	origins *mongo.Collection
	logger  *zap.Logger
}

type listerDoc struct {
	ID           string `bson:"lister_id"`
	Name         string `bson:"name"`
	Instance     string `bson:"instance"`
	CurrentState []byte `bson:"current_state,omitempty"`
}

func New(ctx context.Context, uri, database string, logger *zap.Logger) (*Scheduler, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to scheduler database: %w", err)
	}
	db := client.Database(database)
	return &Scheduler{
		client:  client,
		listers: db.Collection("listers"),
		origins: db.Collection("listed_origins"),
		logger:  logger,
	}, nil
}

func (s *Scheduler) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Scheduler) GetOrCreateLister(ctx context.Context, name, instance string) (lister.ListerInfo, error) {
	filter := bson.M{"name": name, "instance": instance}
	update := bson.M{
		"$setOnInsert": bson.M{
			"lister_id": uuid.NewString(),
			"name":      name,
			"instance":  instance,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc listerDoc
	if err := s.listers.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return lister.ListerInfo{}, fmt.Errorf("getting or creating lister %s/%s: %w", name, instance, err)
	}

	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return lister.ListerInfo{}, fmt.Errorf("invalid lister id %q: %w", doc.ID, err)
	}
	return lister.ListerInfo{
		ID:           id,
		Name:         doc.Name,
		Instance:     doc.Instance,
		CurrentState: doc.CurrentState,
	}, nil
}

func (s *Scheduler) UpdateListerState(ctx context.Context, id uuid.UUID, state []byte) error {
	res, err := s.listers.UpdateOne(ctx,
		bson.M{"lister_id": id.String()},
		bson.M{"$set": bson.M{"current_state": state, "updated_at": time.Now()}})
	if err != nil {
		return fmt.Errorf("updating state for lister %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("no lister with id %s", id)
	}
	return nil
}

func (s *Scheduler) RecordListedOrigins(ctx context.Context, origins []lister.Origin) (int, error) {
	if len(origins) == 0 {
		return 0, nil
	}

	now := time.Now()
	models := make([]mongo.WriteModel, 0, len(origins))
	for _, o := range origins {
		filter := bson.M{
			"lister_id":  o.ListerID.String(),
			"visit_type": o.VisitType,
			"url":        o.URL,
		}
		set := bson.M{"last_seen": now}
		if o.LastUpdate != nil {
			set["last_update"] = *o.LastUpdate
		}
		if o.ExtraLoaderArguments != nil {
			set["extra_loader_arguments"] = o.ExtraLoaderArguments
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(filter).
			SetUpdate(bson.M{
				"$set":         set,
				"$setOnInsert": bson.M{"first_seen": now},
			}).
			SetUpsert(true))
	}

	res, err := s.origins.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, fmt.Errorf("upserting origins: %w", err)
	}
	return int(res.UpsertedCount + res.MatchedCount), nil
}
