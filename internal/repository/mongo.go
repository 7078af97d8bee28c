package repository

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"valorant-rolesync/internal/constants"
	"valorant-rolesync/internal/domain"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoPlayerStore reads the leaderboard collection the registration backend and the
// Riot refresh pipeline write to.
type MongoPlayerStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     zerolog.Logger
}

// playerDocument mirrors the stored shape. discord_id has been written as int64, double
// and string over time, so it is decoded raw.
type playerDocument struct {
	ID              bson.RawValue       `bson:"_id"`
	Puuid           string              `bson:"puuid"`
	Name            string              `bson:"name"`
	Tag             string              `bson:"tag"`
	Region          string              `bson:"region"`
	DiscordID       bson.RawValue       `bson:"discord_id"`
	DiscordUsername string              `bson:"discord_username"`
	RankDetails     *domain.RankPayload `bson:"rank_details"`
	UpdatedAt       bson.RawValue       `bson:"updated_at"`
}

func NewMongoPlayerStore(ctx context.Context, uri, database, collection string, logger zerolog.Logger) (*MongoPlayerStore, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	logger.Info().
		Str("database", database).
		Str("collection", collection).
		Msg("connected to mongodb")

	return &MongoPlayerStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
		logger:     logger,
	}, nil
}

var playerProjection = bson.D{
	{Key: "_id", Value: 1},
	{Key: "puuid", Value: 1},
	{Key: "name", Value: 1},
	{Key: "tag", Value: 1},
	{Key: "region", Value: 1},
	{Key: "discord_id", Value: 1},
	{Key: "discord_username", Value: 1},
	{Key: "rank_details.currenttierpatched", Value: 1},
	{Key: "rank_details.data.currenttierpatched", Value: 1},
	{Key: "updated_at", Value: 1},
}

func (s *MongoPlayerStore) ListPlayerRecords(ctx context.Context) ([]domain.PlayerRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	cur, err := s.collection.Find(ctx, bson.D{}, options.Find().SetProjection(playerProjection))
	if err != nil {
		return nil, fmt.Errorf("failed to query players: %w", err)
	}
	defer cur.Close(ctx)

	var records []domain.PlayerRecord
	for cur.Next(ctx) {
		var doc playerDocument
		if err := cur.Decode(&doc); err != nil {
			s.logger.Warn().Err(err).Msg("skipping undecodable player document")
			continue
		}
		records = append(records, doc.record())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate players: %w", err)
	}

	s.logger.Debug().Int("count", len(records)).Msg("loaded player records")
	return records, nil
}

func (s *MongoPlayerStore) UpdateIdentityFields(ctx context.Context, recordID, discordID, discordUsername string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	var storedID any = discordID
	if n, err := strconv.ParseInt(discordID, 10, 64); err == nil {
		storedID = n
	}

	filter := identityFilter(recordID)
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "discord_id", Value: storedID},
		{Key: "discord_username", Value: discordUsername},
		{Key: "updated_at", Value: time.Now().UTC()},
	}}}

	res, err := s.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update identity fields: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("player %s: %w", recordID, mongo.ErrNoDocuments)
	}
	return nil
}

func (s *MongoPlayerStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (d playerDocument) record() domain.PlayerRecord {
	id := d.Puuid
	if id == "" {
		id = rawString(d.ID)
	}

	return domain.PlayerRecord{
		ID:              id,
		Name:            d.Name,
		Tag:             d.Tag,
		Region:          d.Region,
		DiscordID:       rawString(d.DiscordID),
		DiscordUsername: d.DiscordUsername,
		RawTierName:     d.RankDetails.TierName(),
		UpdatedAt:       rawTime(d.UpdatedAt),
	}
}

func rawString(v bson.RawValue) string {
	switch v.Type {
	case bsontype.String:
		return v.StringValue()
	case bsontype.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	case bsontype.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10)
	case bsontype.Double:
		f := v.Double()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ""
		}
		return strconv.FormatFloat(f, 'f', 0, 64)
	case bsontype.ObjectID:
		return v.ObjectID().Hex()
	default:
		return ""
	}
}

func rawTime(v bson.RawValue) time.Time {
	switch v.Type {
	case bsontype.DateTime:
		return time.UnixMilli(v.DateTime()).UTC()
	case bsontype.String:
		if t, err := time.Parse(time.RFC3339Nano, v.StringValue()); err == nil {
			return t.UTC()
		}
	case bsontype.Timestamp:
		sec, _ := v.Timestamp()
		return time.Unix(int64(sec), 0).UTC()
	}
	return time.Time{}
}

// identityFilter selects a record by the id record() reported for it: a string _id,
// the hex form of an ObjectID _id, or the puuid.
func identityFilter(recordID string) bson.D {
	clauses := bson.A{
		bson.D{{Key: "_id", Value: recordID}},
		bson.D{{Key: "puuid", Value: recordID}},
	}
	if oid, err := primitive.ObjectIDFromHex(recordID); err == nil {
		clauses = append(clauses, bson.D{{Key: "_id", Value: oid}})
	}
	return bson.D{{Key: "$or", Value: clauses}}
}
