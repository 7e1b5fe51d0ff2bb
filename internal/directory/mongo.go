// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

package directory

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	rderr "github.com/relaydesk/relaydesk/pkg/errors"
)

// userDoc mirrors the fields of a user document this adapter reads. The
// documents carry many more fields owned by the CRM side; everything else
// is ignored.
type userDoc struct {
	MemberID       string `bson:"member_id"`
	Name           string `bson:"name"`
	Email          string `bson:"email"`
	Avatar         string `bson:"avatar,omitempty"`
	OrgAffiliation string `bson:"org_affiliation,omitempty"`
}

// Mongo is a Directory backed by a MongoDB users collection.
type Mongo struct {
	client *mongo.Client
	users  *mongo.Collection

	// queryTimeout bounds every lookup so a slow document store cannot
	// stall a membership mutation.
	queryTimeout time.Duration
}

var _ Directory = (*Mongo)(nil)

// MongoConfig holds connection settings for the document store.
type MongoConfig struct {
	URI          string
	Database     string
	Collection   string
	QueryTimeout time.Duration
}

// NewMongo connects to the document store and verifies reachability.
func NewMongo(ctx context.Context, cfg MongoConfig) (*Mongo, error) {
	if cfg.Database == "" {
		cfg.Database = "relaydesk"
	}
	if cfg.Collection == "" {
		cfg.Collection = "users"
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 3 * time.Second
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, rderr.Wrap(err, rderr.CodeDirectoryBackendFailure, "connecting to document store")
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, rderr.Wrap(err, rderr.CodeDirectoryBackendFailure, "pinging document store")
	}

	return &Mongo{
		client:       client,
		users:        client.Database(cfg.Database).Collection(cfg.Collection),
		queryTimeout: cfg.QueryTimeout,
	}, nil
}

func (m *Mongo) GetProfile(ctx context.Context, memberID string) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, m.queryTimeout)
	defer cancel()

	var doc userDoc
	err := m.users.FindOne(ctx, bson.M{"member_id": memberID}).Decode(&doc)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return nil, rderr.New(rderr.CodeDirectoryProfileNotFound, "profile not found", rderr.FieldMemberID(memberID))
	case errors.Is(err, context.DeadlineExceeded):
		return nil, rderr.New(rderr.CodeDirectoryTimeout, "document store did not respond in time", rderr.FieldMemberID(memberID))
	case err != nil:
		return nil, rderr.Wrap(err, rderr.CodeDirectoryBackendFailure, "querying profile", rderr.FieldMemberID(memberID))
	}

	return &Profile{
		MemberID:       doc.MemberID,
		Name:           doc.Name,
		Email:          doc.Email,
		Avatar:         doc.Avatar,
		OrgAffiliation: doc.OrgAffiliation,
	}, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	if err := m.client.Disconnect(ctx); err != nil {
		return rderr.Wrap(err, rderr.CodeDirectoryBackendFailure, "disconnecting from document store")
	}
	return nil
}
