package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
	"go.uber.org/zap"

	"github.com/originwatch/originwatch/pkg/lister"
)

func newMockScheduler(mt *mtest.T) *Scheduler {
	return &Scheduler{
		client:  mt.Client,
		listers: mt.DB.Collection("listers"),
		origins: mt.DB.Collection("listed_origins"),
		logger:  zap.NewNop(),
	}
}

func TestGetOrCreateLister(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("upserts by name and instance", func(mt *mtest.T) {
		s := newMockScheduler(mt)
		id := uuid.New()

		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "value", Value: bson.D{
				{Key: "lister_id", Value: id.String()},
				{Key: "name", Value: "gitea"},
				{Key: "instance", Value: "codeberg"},
			}},
		))

		info, err := s.GetOrCreateLister(context.Background(), "gitea", "codeberg")
		require.NoError(mt, err)
		assert.Equal(mt, id, info.ID)
		assert.Equal(mt, "gitea", info.Name)
		assert.Equal(mt, "codeberg", info.Instance)
		assert.Nil(mt, info.CurrentState)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "findAndModify", evt.CommandName)
		assert.Equal(mt, "listers", evt.Command.Lookup("findAndModify").StringValue())
		assert.True(mt, evt.Command.Lookup("upsert").Boolean())
		assert.True(mt, evt.Command.Lookup("new").Boolean())
		assert.Equal(mt, "gitea", evt.Command.Lookup("query", "name").StringValue())
		assert.Equal(mt, "codeberg", evt.Command.Lookup("query", "instance").StringValue())

		// The identity is assigned only on insert, as a fresh uuid.
		fresh := evt.Command.Lookup("update", "$setOnInsert", "lister_id").StringValue()
		_, err = uuid.Parse(fresh)
		assert.NoError(mt, err)
	})

	mt.Run("rejects a malformed stored id", func(mt *mtest.T) {
		s := newMockScheduler(mt)

		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "value", Value: bson.D{
				{Key: "lister_id", Value: "not-a-uuid"},
				{Key: "name", Value: "gitea"},
				{Key: "instance", Value: "codeberg"},
			}},
		))

		_, err := s.GetOrCreateLister(context.Background(), "gitea", "codeberg")
		assert.Error(mt, err)
	})
}

func TestUpdateListerState(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("stores the blob by lister id", func(mt *mtest.T) {
		s := newMockScheduler(mt)
		id := uuid.New()
		state := []byte(`{"cursor":"5"}`)

		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		require.NoError(mt, s.UpdateListerState(context.Background(), id, state))

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "update", evt.CommandName)
		assert.Equal(mt, "listers", evt.Command.Lookup("update").StringValue())
		assert.Equal(mt, id.String(), evt.Command.Lookup("updates", "0", "q", "lister_id").StringValue())

		_, blob := evt.Command.Lookup("updates", "0", "u", "$set", "current_state").Binary()
		assert.Equal(mt, state, blob)
	})

	mt.Run("unknown lister is an error", func(mt *mtest.T) {
		s := newMockScheduler(mt)

		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		err := s.UpdateListerState(context.Background(), uuid.New(), []byte(`{}`))
		assert.Error(mt, err)
	})
}

func TestRecordListedOrigins(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("unordered upsert per origin", func(mt *mtest.T) {
		s := newMockScheduler(mt)
		listerID := uuid.New()
		lastUpdate := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

		mt.AddMockResponses(bson.D{
			{Key: "ok", Value: 1},
			{Key: "n", Value: 2},
			{Key: "nModified", Value: 0},
			{Key: "upserted", Value: bson.A{
				bson.D{{Key: "index", Value: 0}, {Key: "_id", Value: primitive.NewObjectID()}},
				bson.D{{Key: "index", Value: 1}, {Key: "_id", Value: primitive.NewObjectID()}},
			}},
		})

		count, err := s.RecordListedOrigins(context.Background(), []lister.Origin{
			{ListerID: listerID, VisitType: "git", URL: "https://forge.example/a.git"},
			{ListerID: listerID, VisitType: "git", URL: "https://forge.example/b.git", LastUpdate: &lastUpdate},
		})
		require.NoError(mt, err)
		assert.Equal(mt, 2, count)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "update", evt.CommandName)
		assert.Equal(mt, "listed_origins", evt.Command.Lookup("update").StringValue())
		assert.False(mt, evt.Command.Lookup("ordered").Boolean())

		// Each statement upserts by the full dedup key.
		assert.True(mt, evt.Command.Lookup("updates", "0", "upsert").Boolean())
		assert.Equal(mt, listerID.String(), evt.Command.Lookup("updates", "0", "q", "lister_id").StringValue())
		assert.Equal(mt, "git", evt.Command.Lookup("updates", "0", "q", "visit_type").StringValue())
		assert.Equal(mt, "https://forge.example/a.git", evt.Command.Lookup("updates", "0", "q", "url").StringValue())

		// first_seen lands only on insert; last_seen on every report.
		assert.Equal(mt, bsontype.DateTime, evt.Command.Lookup("updates", "0", "u", "$setOnInsert", "first_seen").Type)
		assert.Equal(mt, bsontype.DateTime, evt.Command.Lookup("updates", "0", "u", "$set", "last_seen").Type)
		assert.Equal(mt, bsontype.DateTime, evt.Command.Lookup("updates", "1", "u", "$set", "last_update").Type)
	})

	mt.Run("empty batch is a no-op", func(mt *mtest.T) {
		s := newMockScheduler(mt)

		count, err := s.RecordListedOrigins(context.Background(), nil)
		require.NoError(mt, err)
		assert.Zero(mt, count)
		assert.Nil(mt, mt.GetStartedEvent())
	})
}
