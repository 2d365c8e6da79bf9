// Package mongostore is the MongoDB document-store gateway. Every document
// keeps its hierarchical path as _id plus flat scope fields for queries, so
// the collection layout mirrors the path layout the engine is specified
// against. Multi-document mutations run in causally-consistent transactions;
// committed changes reach the trigger bus through change streams (watch.go).
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/venuepos/dispatch/internal/observability"
	"github.com/venuepos/dispatch/internal/store"
)

// Collection names, one per document kind of the path layout.
const (
	collEvents        = "events"
	collServingPoints = "serving_points"
	collCatalogItems  = "catalog_items"
	collPointsOfSale  = "points_of_sale"
	collPOSItems      = "pos_items"
	collPOSOrders     = "pos_orders"
	collPOSOrderItems = "pos_order_items"
	collPurchases     = "purchases"
	collPurchaseItems = "purchase_items"
	collNotifications = "notifications"
)

const connectTimeout = 10 * time.Second

// Config carries the connection settings the store needs.
type Config struct {
	URI      string
	Database string
	// CacheTTL bounds the read-through cache for event and serving-point
	// documents. Zero disables the cache.
	CacheTTL time.Duration
}

// Store implements store.Gateway on a MongoDB database.
type Store struct {
	client  *mongo.Client
	db      *mongo.Database
	paths   store.Paths
	metrics *observability.Metrics
	log     *zap.Logger
	clock   func() time.Time

	// statics caches event and serving-point documents, which external
	// systems mutate rarely. Availability flags and open-order counts are
	// never cached here.
	statics *cache.Cache
}

// Connect dials MongoDB, verifies the connection and prepares indexes and
// change-stream pre-images.
func Connect(ctx context.Context, cfg Config, paths store.Paths, metrics *observability.Metrics, logger *zap.Logger) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(connectTimeout))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}

	var statics *cache.Cache
	if cfg.CacheTTL > 0 {
		statics = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}

	s := &Store{
		client:  client,
		db:      client.Database(cfg.Database),
		paths:   paths,
		metrics: metrics,
		log:     logger.With(zap.String("component", "mongostore")),
		clock:   func() time.Time { return time.Now().UTC() },
		statics: statics,
	}
	s.prepareCollections(ctx)
	return s, nil
}

// WithClock replaces the server-timestamp source. Test hook.
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping implements store.Gateway.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongostore: ping: %w", translate(err))
	}
	return nil
}

// prepareCollections creates the query indexes and enables change-stream
// pre-images on the watched collections. Failures are logged, not fatal:
// older servers reject collMod options and still serve everything except
// before-images.
func (s *Store) prepareCollections(ctx context.Context) {
	indexes := map[string][]mongo.IndexModel{
		collServingPoints: {scopeIndex("eventId")},
		collCatalogItems:  {scopeIndex("eventId")},
		collPointsOfSale:  {scopeIndex("eventId")},
		collPOSItems:      {scopeIndex("eventId", "posId")},
		collPOSOrders:     {scopeIndex("eventId", "posId", "orderStatus")},
		collPOSOrderItems: {scopeIndex("eventId", "posId", "orderId"), scopeIndex("eventId", "posId", "orderId", "itemId")},
		collPurchases:     {scopeIndex("eventId")},
		collPurchaseItems: {scopeIndex("eventId", "purchaseId", "itemId")},
		collNotifications: {scopeIndex("eventId", "orderId", "action", "status")},
	}
	for name, models := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			s.log.Warn("index_create_failed", zap.String("collection", name), zap.Error(err))
		}
	}

	for _, name := range []string{collPurchases, collPOSItems, collNotifications} {
		err := s.db.RunCommand(ctx, bson.D{
			{Key: "collMod", Value: name},
			{Key: "changeStreamPreAndPostImages", Value: bson.D{{Key: "enabled", Value: true}}},
		}).Err()
		if err != nil {
			s.log.Warn("preimages_not_enabled", zap.String("collection", name), zap.Error(err))
		}
	}
}

func scopeIndex(fields ...string) mongo.IndexModel {
	keys := make(bson.D, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, bson.E{Key: f, Value: 1})
	}
	return mongo.IndexModel{Keys: keys}
}

// observe records one gateway round trip on the store metrics.
func (s *Store) observe(op string, err error) {
	outcome := observability.OutcomeSuccess
	switch {
	case err == nil:
	case store.IsNotFound(err):
		outcome = observability.OutcomeNotFound
	default:
		outcome = observability.OutcomeError
	}
	s.metrics.StoreRequests.WithLabelValues(op, outcome).Inc()
}

// translate buckets driver errors into the store sentinels. Not-found is
// left to callers: only they know which domain sentinel applies.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	case mongo.IsTimeout(err),
		mongo.IsNetworkError(err),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", store.ErrTransient, err)
	default:
		var cmdErr mongo.CommandError
		if errors.As(err, &cmdErr) && cmdErr.HasErrorLabel("TransientTransactionError") {
			return fmt.Errorf("%w: %v", store.ErrTransient, err)
		}
		return fmt.Errorf("%w: %v", store.ErrPermanent, err)
	}
}

// inTxn runs fn inside one MongoDB transaction. The driver retries fn on
// transient transaction errors, so fn must be idempotent and reach the
// database only through the provided session context.
func (s *Store) inTxn(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return translate(err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if err != nil {
		return translate(err)
	}
	return nil
}

func (s *Store) collection(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// byID is the filter matching one document by its path id.
func byID(path string) bson.M { return bson.M{"_id": path} }

// ascending sorts a cursor by document id, the enumeration order every
// tie-break in the engine builds on.
func ascending() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
}
