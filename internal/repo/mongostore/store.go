// Package mongostore implements the repositories on MongoDB. Token
// collections carry a TTL index on createdAt, so the server purges expired
// tokens on its own in addition to the service-side expiry checks.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/signalix/emailauth/internal/model"
	"github.com/signalix/emailauth/internal/repo"
)

const (
	usersCollection       = "users"
	loginTokensCollection = "login_tokens"
	emailTokensCollection = "email_tokens"

	connectTimeout = 5 * time.Second
)

// Open connects to MongoDB, ensures indexes and returns the repository bundle.
// tokenTTL is applied as expireAfterSeconds on both token collections.
func Open(ctx context.Context, uri, dbName string, tokenTTL time.Duration) (*repo.Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(dbName)
	if err := EnsureIndexes(ctx, db, tokenTTL); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	store := New(db)
	store.Close = client.Disconnect
	return store, nil
}

// New returns repositories bound to db without touching indexes
func New(db *mongo.Database) *repo.Store {
	return &repo.Store{
		Users:       &userRepo{c: db.Collection(usersCollection)},
		LoginTokens: &loginTokenRepo{c: db.Collection(loginTokensCollection)},
		EmailTokens: &emailTokenRepo{c: db.Collection(emailTokensCollection)},
	}
}

// EnsureIndexes creates the unique and TTL indexes the repositories rely on
func EnsureIndexes(ctx context.Context, db *mongo.Database, tokenTTL time.Duration) error {
	ttlSeconds := int32(tokenTTL / time.Second)
	unique := func(key string) mongo.IndexModel {
		return mongo.IndexModel{Keys: bson.D{{Key: key, Value: 1}}, Options: options.Index().SetUnique(true)}
	}
	expiry := mongo.IndexModel{
		Keys:    bson.D{{Key: "createdAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(ttlSeconds),
	}

	indexes := map[string][]mongo.IndexModel{
		usersCollection:       {unique("email")},
		loginTokensCollection: {unique("email"), expiry},
		emailTokensCollection: {unique("email"), unique("newEmail"), expiry},
	}
	for name, models := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}

type userDoc struct {
	ID          string    `bson:"_id"`
	Email       string    `bson:"email"`
	DisplayName string    `bson:"displayName"`
	NonceHashes []string  `bson:"nonceHashes"`
	CreatedAt   time.Time `bson:"createdAt"`
}

func (d userDoc) toModel() (model.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return model.User{}, fmt.Errorf("parse user ID: %w", err)
	}
	return model.User{
		ID:          id,
		Email:       d.Email,
		DisplayName: d.DisplayName,
		NonceHashes: d.NonceHashes,
		CreatedAt:   d.CreatedAt,
	}, nil
}

type userRepo struct {
	c *mongo.Collection
}

func (r *userRepo) Create(ctx context.Context, user model.User) (model.User, error) {
	user.ID = uuid.New()
	user.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	if user.NonceHashes == nil {
		user.NonceHashes = []string{}
	}
	_, err := r.c.InsertOne(ctx, userDoc{
		ID:          user.ID.String(),
		Email:       user.Email,
		DisplayName: user.DisplayName,
		NonceHashes: user.NonceHashes,
		CreatedAt:   user.CreatedAt,
	})
	if err != nil {
		return model.User{}, wrapWriteErr("insert user", err)
	}
	return user, nil
}

func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	return r.findOne(ctx, bson.M{"_id": id.String()})
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *userRepo) findOne(ctx context.Context, filter bson.M) (model.User, error) {
	var doc userDoc
	if err := r.c.FindOne(ctx, filter).Decode(&doc); err != nil {
		return model.User{}, wrapReadErr("user", err)
	}
	return doc.toModel()
}

func (r *userRepo) Update(ctx context.Context, user model.User) error {
	res, err := r.c.UpdateOne(ctx, bson.M{"_id": user.ID.String()}, bson.M{"$set": bson.M{
		"email":       user.Email,
		"displayName": user.DisplayName,
	}})
	if err != nil {
		return wrapWriteErr("update user", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("update user %s: %w", user.ID, repo.ErrNotFound)
	}
	return nil
}

func (r *userRepo) AddNonceHash(ctx context.Context, id uuid.UUID, hash string) error {
	return r.updateNonces(ctx, "add nonce hash", id, bson.M{"$push": bson.M{"nonceHashes": hash}})
}

func (r *userRepo) RemoveNonceHash(ctx context.Context, id uuid.UUID, hash string) error {
	return r.updateNonces(ctx, "remove nonce hash", id, bson.M{"$pull": bson.M{"nonceHashes": hash}})
}

func (r *userRepo) ClearNonceHashes(ctx context.Context, id uuid.UUID) error {
	return r.updateNonces(ctx, "clear nonce hashes", id, bson.M{"$set": bson.M{"nonceHashes": []string{}}})
}

func (r *userRepo) updateNonces(ctx context.Context, op string, id uuid.UUID, update bson.M) error {
	res, err := r.c.UpdateOne(ctx, bson.M{"_id": id.String()}, update)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s %s: %w", op, id, repo.ErrNotFound)
	}
	return nil
}

type loginTokenDoc struct {
	ID            string    `bson:"_id"`
	Email         string    `bson:"email"`
	PassCodeHash  string    `bson:"passCodeHash"`
	NonceCodeHash string    `bson:"nonceCodeHash"`
	CreatedAt     time.Time `bson:"createdAt"`
}

type loginTokenRepo struct {
	c *mongo.Collection
}

func (r *loginTokenRepo) Create(ctx context.Context, t model.LoginToken) error {
	_, err := r.c.InsertOne(ctx, loginTokenDoc{
		ID:            t.ID.String(),
		Email:         t.Email,
		PassCodeHash:  t.PassCodeHash,
		NonceCodeHash: t.NonceCodeHash,
		CreatedAt:     t.CreatedAt,
	})
	return wrapWriteErr("insert login token", err)
}

func (r *loginTokenRepo) FindByEmail(ctx context.Context, email string) (model.LoginToken, error) {
	var doc loginTokenDoc
	if err := r.c.FindOne(ctx, bson.M{"email": email}).Decode(&doc); err != nil {
		return model.LoginToken{}, wrapReadErr("login token", err)
	}
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return model.LoginToken{}, fmt.Errorf("parse login token ID: %w", err)
	}
	return model.LoginToken{
		ID:            id,
		Email:         doc.Email,
		PassCodeHash:  doc.PassCodeHash,
		NonceCodeHash: doc.NonceCodeHash,
		CreatedAt:     doc.CreatedAt,
	}, nil
}

func (r *loginTokenRepo) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	return deleteByID(ctx, r.c, "delete login token", id)
}

func (r *loginTokenRepo) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return deleteBefore(ctx, r.c, cutoff)
}

type emailTokenDoc struct {
	ID            string    `bson:"_id"`
	Email         string    `bson:"email"`
	NewEmail      string    `bson:"newEmail"`
	PassCodeHash  string    `bson:"passCodeHash"`
	NonceCodeHash string    `bson:"nonceCodeHash"`
	CreatedAt     time.Time `bson:"createdAt"`
}

type emailTokenRepo struct {
	c *mongo.Collection
}

func (r *emailTokenRepo) Create(ctx context.Context, t model.EmailChangeToken) error {
	_, err := r.c.InsertOne(ctx, emailTokenDoc{
		ID:            t.ID.String(),
		Email:         t.Email,
		NewEmail:      t.NewEmail,
		PassCodeHash:  t.PassCodeHash,
		NonceCodeHash: t.NonceCodeHash,
		CreatedAt:     t.CreatedAt,
	})
	return wrapWriteErr("insert email token", err)
}

func (r *emailTokenRepo) FindByEmail(ctx context.Context, email string) (model.EmailChangeToken, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *emailTokenRepo) FindByNewEmail(ctx context.Context, newEmail string) (model.EmailChangeToken, error) {
	return r.findOne(ctx, bson.M{"newEmail": newEmail})
}

func (r *emailTokenRepo) findOne(ctx context.Context, filter bson.M) (model.EmailChangeToken, error) {
	var doc emailTokenDoc
	if err := r.c.FindOne(ctx, filter).Decode(&doc); err != nil {
		return model.EmailChangeToken{}, wrapReadErr("email token", err)
	}
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return model.EmailChangeToken{}, fmt.Errorf("parse email token ID: %w", err)
	}
	return model.EmailChangeToken{
		ID:            id,
		Email:         doc.Email,
		NewEmail:      doc.NewEmail,
		PassCodeHash:  doc.PassCodeHash,
		NonceCodeHash: doc.NonceCodeHash,
		CreatedAt:     doc.CreatedAt,
	}, nil
}

func (r *emailTokenRepo) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	return deleteByID(ctx, r.c, "delete email token", id)
}

func (r *emailTokenRepo) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return deleteBefore(ctx, r.c, cutoff)
}

func deleteByID(ctx context.Context, c *mongo.Collection, op string, id uuid.UUID) (bool, error) {
	res, err := c.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return res.DeletedCount > 0, nil
}

func deleteBefore(ctx context.Context, c *mongo.Collection, cutoff time.Time) (int64, error) {
	res, err := c.DeleteMany(ctx, bson.M{"createdAt": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("delete expired from %s: %w", c.Name(), err)
	}
	return res.DeletedCount, nil
}

func wrapWriteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w", op, repo.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func wrapReadErr(what string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", what, repo.ErrNotFound)
	}
	return fmt.Errorf("query %s: %w", what, err)
}
