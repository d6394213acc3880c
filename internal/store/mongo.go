package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Mongo is the MongoDB-backed Store.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database

	users       *mongoUsers
	pools       *mongoPools
	memberships *mongoMemberships
	seasons     *mongoSeasons
	picks       *mongoPicks
}

// ConnectMongo dials the server and wraps the named database.
func ConnectMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	db := client.Database(database)
	return &Mongo{
		client:      client,
		db:          db,
		users:       &mongoUsers{c: db.Collection("users")},
		pools:       &mongoPools{c: db.Collection("pools")},
		memberships: &mongoMemberships{c: db.Collection("pool_memberships")},
		seasons:     &mongoSeasons{c: db.Collection("seasons")},
		picks:       &mongoPicks{c: db.Collection("picks")},
	}, nil
}

func (m *Mongo) Users() UserStore              { return m.users }
func (m *Mongo) Pools() PoolStore              { return m.pools }
func (m *Mongo) Memberships() MembershipStore  { return m.memberships }
func (m *Mongo) Seasons() SeasonStore          { return m.seasons }
func (m *Mongo) Picks() PickStore              { return m.picks }
func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the underlying client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// EnsureIndexes creates the unique indexes the concurrency model relies on.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := m.users.c.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "verification_token", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "reset_token", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
	if err != nil {
		return fmt.Errorf("users indexes: %w", err)
	}
	_, err = m.memberships.c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "pool_id", Value: 1}, {Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("membership index: %w", err)
	}
	_, err = m.picks.c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "pool_id", Value: 1}, {Key: "user_id", Value: 1}, {Key: "week", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("picks index: %w", err)
	}
	return nil
}

func mapMongoErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return ErrDuplicate
	default:
		return err
	}
}

func findOne[T any](ctx context.Context, c *mongo.Collection, filter bson.M) (*T, error) {
	var doc T
	if err := c.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mapMongoErr(err)
	}
	return &doc, nil
}

func findAll[T any](ctx context.Context, c *mongo.Collection, filter bson.M, opts ...*options.FindOptions) ([]*T, error) {
	cur, err := c.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*T
	for cur.Next(ctx) {
		var doc T
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, &doc)
	}
	return out, cur.Err()
}

// ------------------------------------------------------------------
// Users
// ------------------------------------------------------------------

type mongoUsers struct {
	c *mongo.Collection
}

func (s *mongoUsers) Insert(ctx context.Context, u *User) (primitive.ObjectID, error) {
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	if _, err := s.c.InsertOne(ctx, u); err != nil {
		return primitive.NilObjectID, mapMongoErr(err)
	}
	return u.ID, nil
}

func (s *mongoUsers) FindByID(ctx context.Context, id primitive.ObjectID) (*User, error) {
	return findOne[User](ctx, s.c, bson.M{"_id": id})
}

func (s *mongoUsers) FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*User, error) {
	docs, err := findAll[User](ctx, s.c, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	out := make(map[primitive.ObjectID]*User, len(docs))
	for _, u := range docs {
		out[u.ID] = u
	}
	return out, nil
}

func (s *mongoUsers) FindByUsername(ctx context.Context, username string) (*User, error) {
	return findOne[User](ctx, s.c, bson.M{"username": username})
}

func (s *mongoUsers) FindByEmail(ctx context.Context, email string) (*User, error) {
	return findOne[User](ctx, s.c, bson.M{"email": email})
}

func (s *mongoUsers) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	return findOne[User](ctx, s.c, bson.M{"$or": bson.A{
		bson.M{"email": identifier},
		bson.M{"username": identifier},
	}})
}

func (s *mongoUsers) FindByVerificationToken(ctx context.Context, token string) (*User, error) {
	return findOne[User](ctx, s.c, bson.M{"verification_token": token})
}

func (s *mongoUsers) FindByResetToken(ctx context.Context, token string) (*User, error) {
	return findOne[User](ctx, s.c, bson.M{"reset_token": token})
}

func (s *mongoUsers) SearchActiveByUsername(ctx context.Context, query string, limit int) ([]*User, error) {
	pattern := primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}
	return findAll[User](ctx, s.c,
		bson.M{"username": pattern, "account_status": AccountStatusActive},
		options.Find().SetLimit(int64(limit)),
	)
}

func (s *mongoUsers) IncrementFailedLogins(ctx context.Context, id primitive.ObjectID) (int, error) {
	var updated User
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"failed_login_attempts": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		return 0, mapMongoErr(err)
	}
	return updated.FailedLoginAttempts, nil
}

func (s *mongoUsers) SetLockout(ctx context.Context, id primitive.ObjectID, until time.Time) error {
	return s.updateOne(ctx, id, bson.M{"$set": bson.M{"locked_until": until}})
}

func (s *mongoUsers) ClearLockout(ctx context.Context, id primitive.ObjectID) error {
	return s.updateOne(ctx, id, bson.M{"$set": bson.M{
		"failed_login_attempts": 0,
		"locked_until":          nil,
	}})
}

func (s *mongoUsers) SetPasswordHash(ctx context.Context, id primitive.ObjectID, hash string, invalidatedAt time.Time) error {
	return s.updateOne(ctx, id, bson.M{"$set": bson.M{
		"password_hash":          hash,
		"token_invalidated_at":   invalidatedAt,
		"reset_token":            nil,
		"reset_token_expires_at": nil,
	}})
}

func (s *mongoUsers) SetResetToken(ctx context.Context, id primitive.ObjectID, token string, expiresAt time.Time) error {
	return s.updateOne(ctx, id, bson.M{"$set": bson.M{
		"reset_token":            token,
		"reset_token_expires_at": expiresAt,
	}})
}

func (s *mongoUsers) PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int, error) {
	res, err := s.c.UpdateMany(ctx,
		bson.M{"reset_token": bson.M{"$ne": nil}, "reset_token_expires_at": bson.M{"$lt": now}},
		bson.M{"$set": bson.M{"reset_token": nil, "reset_token_expires_at": nil}},
	)
	if err != nil {
		return 0, err
	}
	return int(res.ModifiedCount), nil
}

func (s *mongoUsers) MarkEmailVerified(ctx context.Context, id primitive.ObjectID) error {
	return s.updateOne(ctx, id, bson.M{"$set": bson.M{
		"email_verified":     true,
		"verification_token": nil,
	}})
}

func (s *mongoUsers) SetDefaultPool(ctx context.Context, id primitive.ObjectID, poolID *primitive.ObjectID) error {
	return s.updateOne(ctx, id, bson.M{"$set": bson.M{"default_pool": poolID}})
}

func (s *mongoUsers) ClearDefaultPoolForPool(ctx context.Context, poolID primitive.ObjectID) error {
	_, err := s.c.UpdateMany(ctx,
		bson.M{"default_pool": poolID},
		bson.M{"$set": bson.M{"default_pool": nil}},
	)
	return err
}

func (s *mongoUsers) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoUsers) updateOne(ctx context.Context, id primitive.ObjectID, update bson.M) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return mapMongoErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ------------------------------------------------------------------
// Pools
// ------------------------------------------------------------------

type mongoPools struct {
	c *mongo.Collection
}

func (s *mongoPools) Insert(ctx context.Context, p *Pool) (primitive.ObjectID, error) {
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if _, err := s.c.InsertOne(ctx, p); err != nil {
		return primitive.NilObjectID, mapMongoErr(err)
	}
	return p.ID, nil
}

func (s *mongoPools) FindByID(ctx context.Context, id primitive.ObjectID) (*Pool, error) {
	return findOne[Pool](ctx, s.c, bson.M{"_id": id})
}

func (s *mongoPools) FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*Pool, error) {
	docs, err := findAll[Pool](ctx, s.c, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	out := make(map[primitive.ObjectID]*Pool, len(docs))
	for _, p := range docs {
		out[p.ID] = p
	}
	return out, nil
}

func (s *mongoPools) IncrementWeek(ctx context.Context, id primitive.ObjectID, fromWeek int) (*Pool, error) {
	var updated Pool
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "current_week": fromWeek},
		bson.M{"$inc": bson.M{"current_week": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		return nil, mapMongoErr(err)
	}
	return &updated, nil
}

func (s *mongoPools) MarkCompleted(ctx context.Context, id primitive.ObjectID, week int, at time.Time, winners []primitive.ObjectID) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"status":         PoolStatusCompleted,
		"completed_week": week,
		"completed_at":   at,
		"winners":        winners,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoPools) MarkCompetitive(ctx context.Context, id primitive.ObjectID, sinceWeek int) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "is_competitive": false},
		bson.M{"$set": bson.M{"is_competitive": true, "competitive_since_week": sinceWeek}},
	)
	return err
}

func (s *mongoPools) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ------------------------------------------------------------------
// Memberships
// ------------------------------------------------------------------

type mongoMemberships struct {
	c *mongo.Collection
}

func (s *mongoMemberships) Insert(ctx context.Context, m *Membership) error {
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	_, err := s.c.InsertOne(ctx, m)
	return mapMongoErr(err)
}

func (s *mongoMemberships) Find(ctx context.Context, poolID, userID primitive.ObjectID) (*Membership, error) {
	return findOne[Membership](ctx, s.c, bson.M{"pool_id": poolID, "user_id": userID})
}

func (s *mongoMemberships) ListByPool(ctx context.Context, poolID primitive.ObjectID) ([]*Membership, error) {
	return findAll[Membership](ctx, s.c, bson.M{"pool_id": poolID})
}

func (s *mongoMemberships) ListByPoolAndStatus(ctx context.Context, poolID primitive.ObjectID, status string) ([]*Membership, error) {
	return findAll[Membership](ctx, s.c, bson.M{"pool_id": poolID, "status": status})
}

func (s *mongoMemberships) CountByPoolAndStatus(ctx context.Context, poolID primitive.ObjectID, status string) (int, error) {
	n, err := s.c.CountDocuments(ctx, bson.M{"pool_id": poolID, "status": status})
	return int(n), err
}

func (s *mongoMemberships) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]*Membership, error) {
	return findAll[Membership](ctx, s.c, bson.M{"user_id": userID})
}

func (s *mongoMemberships) ListByUserAndStatus(ctx context.Context, userID primitive.ObjectID, status string) ([]*Membership, error) {
	return findAll[Membership](ctx, s.c, bson.M{"user_id": userID, "status": status})
}

func (s *mongoMemberships) UpsertInvited(ctx context.Context, poolID, userID primitive.ObjectID, at time.Time) (*Membership, error) {
	var updated Membership
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"pool_id": poolID, "user_id": userID},
		bson.M{
			"$set": bson.M{
				"role":               RoleMember,
				"status":             MembershipStatusInvited,
				"invited_at":         at,
				"joined_at":          nil,
				"elimination_reason": nil,
				"eliminated_week":    nil,
				"eliminated_date":    nil,
				"final_rank":         nil,
				"finished_week":      nil,
				"finished_date":      nil,
			},
			"$setOnInsert": bson.M{
				"score":                 0,
				"available_contestants": []string{},
			},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		return nil, mapMongoErr(err)
	}
	return &updated, nil
}

func (s *mongoMemberships) ResolveInvite(ctx context.Context, poolID, userID primitive.ObjectID, accept bool, now time.Time) (*Membership, error) {
	set := bson.M{
		"elimination_reason": nil,
		"final_rank":         nil,
		"finished_week":      nil,
		"finished_date":      nil,
	}
	if accept {
		set["status"] = MembershipStatusActive
		set["joined_at"] = now
		set["eliminated_week"] = nil
		set["eliminated_date"] = nil
	} else {
		set["status"] = MembershipStatusDeclined
		set["joined_at"] = nil
		set["score"] = 0
		set["available_contestants"] = []string{}
	}

	var updated Membership
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"pool_id": poolID, "user_id": userID, "status": MembershipStatusInvited},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		return nil, mapMongoErr(err)
	}
	return &updated, nil
}

func (s *mongoMemberships) EliminateActive(ctx context.Context, poolID primitive.ObjectID, userIDs []primitive.ObjectID, reason string, week int, at time.Time) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := s.c.UpdateMany(ctx,
		bson.M{
			"pool_id": poolID,
			"user_id": bson.M{"$in": userIDs},
			"status":  MembershipStatusActive,
		},
		bson.M{"$set": bson.M{
			"status":                MembershipStatusEliminated,
			"elimination_reason":    reason,
			"eliminated_week":       week,
			"eliminated_date":       at,
			"score":                 0,
			"available_contestants": []string{},
		}},
	)
	return err
}

func (s *mongoMemberships) PromoteWinners(ctx context.Context, poolID primitive.ObjectID, userIDs []primitive.ObjectID, week int, at time.Time) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := s.c.UpdateMany(ctx,
		bson.M{"pool_id": poolID, "user_id": bson.M{"$in": userIDs}},
		bson.M{"$set": bson.M{
			"status":                MembershipStatusWinner,
			"elimination_reason":    nil,
			"eliminated_week":       nil,
			"eliminated_date":       nil,
			"finished_week":         week,
			"finished_date":         at,
			"final_rank":            1,
			"score":                 0,
			"available_contestants": []string{},
		}},
	)
	return err
}

func (s *mongoMemberships) SetAvailability(ctx context.Context, id primitive.ObjectID, contestants []string, score int) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"available_contestants": contestants, "score": score}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoMemberships) ZeroNonActive(ctx context.Context, poolID primitive.ObjectID) error {
	_, err := s.c.UpdateMany(ctx,
		bson.M{"pool_id": poolID, "status": bson.M{"$ne": MembershipStatusActive}},
		bson.M{"$set": bson.M{"available_contestants": []string{}, "score": 0}},
	)
	return err
}

func (s *mongoMemberships) DeleteByPool(ctx context.Context, poolID primitive.ObjectID) error {
	_, err := s.c.DeleteMany(ctx, bson.M{"pool_id": poolID})
	return err
}

func (s *mongoMemberships) DeleteByUser(ctx context.Context, userID primitive.ObjectID) error {
	_, err := s.c.DeleteMany(ctx, bson.M{"user_id": userID})
	return err
}

// ------------------------------------------------------------------
// Seasons
// ------------------------------------------------------------------

type mongoSeasons struct {
	c *mongo.Collection
}

func (s *mongoSeasons) FindByID(ctx context.Context, id primitive.ObjectID) (*Season, error) {
	return findOne[Season](ctx, s.c, bson.M{"_id": id})
}

func (s *mongoSeasons) FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*Season, error) {
	docs, err := findAll[Season](ctx, s.c, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	out := make(map[primitive.ObjectID]*Season, len(docs))
	for _, doc := range docs {
		out[doc.ID] = doc
	}
	return out, nil
}

func (s *mongoSeasons) List(ctx context.Context) ([]*Season, error) {
	return findAll[Season](ctx, s.c, bson.M{}, options.Find().SetSort(bson.D{{Key: "season_number", Value: -1}}))
}

// ------------------------------------------------------------------
// Picks
// ------------------------------------------------------------------

type mongoPicks struct {
	c *mongo.Collection
}

func (s *mongoPicks) Insert(ctx context.Context, p *Pick) (primitive.ObjectID, error) {
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if _, err := s.c.InsertOne(ctx, p); err != nil {
		return primitive.NilObjectID, mapMongoErr(err)
	}
	return p.ID, nil
}

func (s *mongoPicks) FindForWeek(ctx context.Context, poolID, userID primitive.ObjectID, week int) (*Pick, error) {
	return findOne[Pick](ctx, s.c, bson.M{"pool_id": poolID, "user_id": userID, "week": week})
}

func (s *mongoPicks) FindByContestant(ctx context.Context, poolID, userID primitive.ObjectID, contestantID string) (*Pick, error) {
	return findOne[Pick](ctx, s.c, bson.M{"pool_id": poolID, "user_id": userID, "contestant_id": contestantID})
}

func (s *mongoPicks) UserIDsWithPickForWeek(ctx context.Context, poolID primitive.ObjectID, week int) (map[primitive.ObjectID]struct{}, error) {
	docs, err := findAll[Pick](ctx, s.c, bson.M{"pool_id": poolID, "week": week})
	if err != nil {
		return nil, err
	}
	out := make(map[primitive.ObjectID]struct{}, len(docs))
	for _, p := range docs {
		out[p.UserID] = struct{}{}
	}
	return out, nil
}

func (s *mongoPicks) ListForWeekByContestants(ctx context.Context, poolID primitive.ObjectID, week int, contestantIDs []string) ([]*Pick, error) {
	if len(contestantIDs) == 0 {
		return nil, nil
	}
	return findAll[Pick](ctx, s.c, bson.M{
		"pool_id":       poolID,
		"week":          week,
		"contestant_id": bson.M{"$in": contestantIDs},
	})
}

func (s *mongoPicks) UsedContestantsBefore(ctx context.Context, poolID primitive.ObjectID, week int) (map[primitive.ObjectID]map[string]struct{}, error) {
	docs, err := findAll[Pick](ctx, s.c, bson.M{"pool_id": poolID, "week": bson.M{"$lt": week}})
	if err != nil {
		return nil, err
	}
	used := make(map[primitive.ObjectID]map[string]struct{})
	for _, p := range docs {
		set, ok := used[p.UserID]
		if !ok {
			set = make(map[string]struct{})
			used[p.UserID] = set
		}
		set[p.ContestantID] = struct{}{}
	}
	return used, nil
}

func (s *mongoPicks) DeleteByPool(ctx context.Context, poolID primitive.ObjectID) error {
	_, err := s.c.DeleteMany(ctx, bson.M{"pool_id": poolID})
	return err
}

func (s *mongoPicks) DeleteByUser(ctx context.Context, userID primitive.ObjectID) error {
	_, err := s.c.DeleteMany(ctx, bson.M{"user_id": userID})
	return err
}
