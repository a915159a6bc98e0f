// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/olegiv/dwc-go/internal/model"
)

const (
	// EventsCollection holds event documents.
	EventsCollection = "events"

	DefaultConnectionTimeout = 10 * time.Second
)

// MongoConfig holds MongoDB connection settings.
type MongoConfig struct {
	URI               string
	Database          string
	ConnectionTimeout time.Duration
}

// Provider owns the process-wide MongoDB connection. Connect is idempotent:
// the first successful call dials and pings, later calls reuse the handle.
// A failed attempt is not cached, so a later call may succeed.
type Provider struct {
	cfg    MongoConfig
	mu     sync.Mutex
	client *mongo.Client
	db     *mongo.Database
}

// NewProvider creates a provider. No connection is made until Connect.
func NewProvider(cfg MongoConfig) *Provider {
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = DefaultConnectionTimeout
	}
	return &Provider{cfg: cfg}
}

// Connect returns the database handle, dialing on first use.
func (p *Provider) Connect(ctx context.Context) (*mongo.Database, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db != nil {
		return p.db, nil
	}
	if p.cfg.URI == "" {
		return nil, &ConnectionError{Err: ErrNoConnectionString}
	}

	connectCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectionTimeout)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(p.cfg.URI).
		SetServerSelectionTimeout(p.cfg.ConnectionTimeout).
		SetConnectTimeout(p.cfg.ConnectionTimeout)

	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, &ConnectionError{Err: fmt.Errorf("connecting to mongodb: %w", err)}
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, &ConnectionError{Err: fmt.Errorf("pinging mongodb: %w", err)}
	}

	p.client = client
	p.db = client.Database(p.cfg.Database)
	slog.Info("connected to mongodb", "database", p.cfg.Database)

	return p.db, nil
}

// Close disconnects the client if one was opened.
func (p *Provider) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil {
		return nil
	}
	err := p.client.Disconnect(ctx)
	p.client = nil
	p.db = nil
	return err
}

// eventDocument is the BSON shape of an event. The gallery is stored as the
// two parallel arrays existing documents use.
type eventDocument struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"`
	Slug              string             `bson:"slug"`
	Title             string             `bson:"title"`
	Excerpt           string             `bson:"excerpt,omitempty"`
	ContentHTML       string             `bson:"contentHtml"`
	CoverImage        string             `bson:"coverImage"`
	CoverImageAssetID string             `bson:"coverImageAssetId,omitempty"`
	Images            []string           `bson:"images"`
	ImagesAssetIDs    []string           `bson:"imagesAssetIds"`
	Videos            []string           `bson:"videos"`
	Tags              []string           `bson:"tags"`
	PublishedAt       time.Time          `bson:"publishedAt"`
	CreatedAt         time.Time          `bson:"createdAt"`
	UpdatedAt         time.Time          `bson:"updatedAt"`
}

// summaryProjection limits list queries to the summary fields.
var summaryProjection = bson.D{
	{Key: "title", Value: 1},
	{Key: "slug", Value: 1},
	{Key: "excerpt", Value: 1},
	{Key: "coverImage", Value: 1},
	{Key: "publishedAt", Value: 1},
}

// MongoEventStore implements EventStore on a MongoDB collection.
type MongoEventStore struct {
	provider *Provider
	timeout  time.Duration

	indexMu sync.Mutex
	indexed bool
}

// NewMongoEventStore creates a store that connects through provider on first
// use. timeout bounds every individual database call.
func NewMongoEventStore(provider *Provider, timeout time.Duration) *MongoEventStore {
	if timeout <= 0 {
		timeout = DefaultConnectionTimeout
	}
	return &MongoEventStore{provider: provider, timeout: timeout}
}

// collection connects if needed and makes sure the indexes exist.
func (s *MongoEventStore) collection(ctx context.Context) (*mongo.Collection, error) {
	db, err := s.provider.Connect(ctx)
	if err != nil {
		return nil, err
	}
	coll := db.Collection(EventsCollection)

	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	if !s.indexed {
		if err := s.ensureIndexes(ctx, coll); err != nil {
			slog.Error("failed to create event indexes", "category", "store", "error", err)
		} else {
			s.indexed = true
		}
	}
	return coll, nil
}

func (s *MongoEventStore) ensureIndexes(ctx context.Context, coll *mongo.Collection) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "slug", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("slug_unique"),
		},
		{
			Keys:    bson.D{{Key: "publishedAt", Value: -1}},
			Options: options.Index().SetName("published_at_desc"),
		},
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}

// Ping checks that the backend is reachable.
func (s *MongoEventStore) Ping(ctx context.Context) error {
	db, err := s.provider.Connect(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return db.Client().Ping(ctx, readpref.Primary())
}

// SlugExists reports whether slug is used by a record other than excludeID.
func (s *MongoEventStore) SlugExists(ctx context.Context, slug, excludeID string) (bool, error) {
	coll, err := s.collection(ctx)
	if err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	filter := bson.M{"slug": slug}
	if oid, err := primitive.ObjectIDFromHex(excludeID); err == nil {
		filter["_id"] = bson.M{"$ne": oid}
	}

	n, err := coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("checking slug: %w", err)
	}
	return n > 0, nil
}

// Insert stores a new record.
func (s *MongoEventStore) Insert(ctx context.Context, e *model.Event) (*model.Event, error) {
	coll, err := s.collection(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc := toDocument(e)
	doc.ID = primitive.NewObjectID()

	if _, err := coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("inserting event %q: %w", e.Slug, ErrDuplicateSlug)
		}
		return nil, fmt.Errorf("inserting event: %w", err)
	}

	return fromDocument(doc), nil
}

// Replace overwrites an existing record.
func (s *MongoEventStore) Replace(ctx context.Context, e *model.Event) error {
	oid, err := primitive.ObjectIDFromHex(e.ID)
	if err != nil {
		return notFoundf("id %q", e.ID)
	}
	coll, err := s.collection(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc := toDocument(e)
	doc.ID = oid

	res, err := coll.ReplaceOne(ctx, bson.M{"_id": oid}, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("updating event %q: %w", e.Slug, ErrDuplicateSlug)
		}
		return fmt.Errorf("updating event: %w", err)
	}
	if res.MatchedCount == 0 {
		return notFoundf("id %q", e.ID)
	}
	return nil
}

// Delete removes a record.
func (s *MongoEventStore) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return notFoundf("id %q", id)
	}
	coll, err := s.collection(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("deleting event: %w", err)
	}
	if res.DeletedCount == 0 {
		return notFoundf("id %q", id)
	}
	return nil
}

// FindByID loads a record by id. Malformed ids are reported as not found.
func (s *MongoEventStore) FindByID(ctx context.Context, id string) (*model.Event, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, notFoundf("id %q", id)
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

// FindBySlug loads a record by slug.
func (s *MongoEventStore) FindBySlug(ctx context.Context, slug string) (*model.Event, error) {
	return s.findOne(ctx, bson.M{"slug": slug})
}

func (s *MongoEventStore) findOne(ctx context.Context, filter bson.M) (*model.Event, error) {
	coll, err := s.collection(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var doc eventDocument
	if err := coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFoundf("%v", filter)
		}
		return nil, fmt.Errorf("finding event: %w", err)
	}
	return fromDocument(&doc), nil
}

// List returns a page of summaries and the total match count.
func (s *MongoEventStore) List(ctx context.Context, q model.ListQuery) ([]model.EventSummary, int64, error) {
	coll, err := s.collection(ctx)
	if err != nil {
		return nil, 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	q = q.Normalize()
	filter := searchFilter(q.Query)

	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("counting events: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "publishedAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(q.Skip()).
		SetLimit(int64(q.Limit)).
		SetProjection(summaryProjection)

	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("listing events: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var docs []eventDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("decoding events: %w", err)
	}

	items := make([]model.EventSummary, 0, len(docs))
	for _, d := range docs {
		items = append(items, model.EventSummary{
			ID:          d.ID.Hex(),
			Title:       d.Title,
			Slug:        d.Slug,
			Excerpt:     d.Excerpt,
			CoverImage:  d.CoverImage,
			PublishedAt: d.PublishedAt,
		})
	}
	return items, total, nil
}

// searchFilter matches query as a literal, case-insensitive substring.
func searchFilter(query string) bson.M {
	if query == "" {
		return bson.M{}
	}
	re := primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}
	return bson.M{"$or": bson.A{
		bson.M{"title": re},
		bson.M{"slug": re},
		bson.M{"tags": re},
	}}
}

func toDocument(e *model.Event) *eventDocument {
	doc := &eventDocument{
		Slug:              e.Slug,
		Title:             e.Title,
		Excerpt:           e.Excerpt,
		ContentHTML:       e.ContentHTML,
		CoverImage:        e.CoverImage,
		CoverImageAssetID: e.CoverImageAssetID,
		Images:            make([]string, len(e.Gallery)),
		ImagesAssetIDs:    make([]string, len(e.Gallery)),
		Videos:            orEmpty(e.Videos),
		Tags:              orEmpty(e.Tags),
		PublishedAt:       e.PublishedAt.UTC(),
		CreatedAt:         e.CreatedAt.UTC(),
		UpdatedAt:         e.UpdatedAt.UTC(),
	}
	for i, m := range e.Gallery {
		doc.Images[i] = m.URL
		doc.ImagesAssetIDs[i] = m.AssetID
	}
	return doc
}

func fromDocument(doc *eventDocument) *model.Event {
	return &model.Event{
		ID:                doc.ID.Hex(),
		Slug:              doc.Slug,
		Title:             doc.Title,
		Excerpt:           doc.Excerpt,
		ContentHTML:       doc.ContentHTML,
		CoverImage:        doc.CoverImage,
		CoverImageAssetID: doc.CoverImageAssetID,
		Gallery:           model.PairGallery(doc.Images, doc.ImagesAssetIDs),
		Videos:            doc.Videos,
		Tags:              doc.Tags,
		PublishedAt:       doc.PublishedAt,
		CreatedAt:         doc.CreatedAt,
		UpdatedAt:         doc.UpdatedAt,
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ EventStore = (*MongoEventStore)(nil)
