package mongostore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/venuepos/dispatch/internal/store"
)

const (
	openAttempts = 5
	openDelay    = 500 * time.Millisecond
	reopenDelay  = 5 * time.Second
)

// Watcher tails the change streams of the trigger-bearing collections and
// republishes every committed write on the in-process feed. It is the
// MongoDB counterpart of the in-memory store's publish-after-commit hook.
type Watcher struct {
	store *Store
	pub   store.Publisher
	log   *zap.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewWatcher builds a watcher publishing s's committed changes to pub.
func NewWatcher(s *Store, pub store.Publisher, logger *zap.Logger) *Watcher {
	return &Watcher{
		store: s,
		pub:   pub,
		log:   logger.With(zap.String("component", "mongostore.watcher")),
	}
}

// Start opens one change stream per watched collection. Streams reopen on
// errors and resume from the last seen token, so delivery is at-least-once.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
		w.cancel = cancel

		streams := []struct {
			coll string
			mapp func(store.Paths, bson.Raw) (store.Event, error)
		}{
			{collPurchases, mapPurchaseChange},
			{collPOSItems, mapPOSItemChange},
			{collNotifications, mapNotificationChange},
		}
		for _, st := range streams {
			w.wg.Add(1)
			go func() {
				defer w.wg.Done()
				w.watchLoop(bg, st.coll, st.mapp)
			}()
		}
		w.log.Info("watcher_started")
	})
}

// Stop closes all streams and waits for the loops to exit.
func (w *Watcher) Stop(ctx context.Context) {
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
		done := make(chan struct{})
		go func() {
			w.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
		}
		w.log.Info("watcher_stopped")
	})
}

// watchLoop keeps one collection's change stream open until ctx ends.
func (w *Watcher) watchLoop(ctx context.Context, coll string, mapp func(store.Paths, bson.Raw) (store.Event, error)) {
	log := w.log.With(zap.String("collection", coll))
	var resumeToken bson.Raw

	for ctx.Err() == nil {
		cs, err := w.openStream(ctx, coll, resumeToken)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if resumeToken != nil {
				// The oplog window may have passed the token by. Drop it and
				// take the stream from now; handlers tolerate missed changes.
				log.Warn("stream_resume_lost", zap.Error(err))
				resumeToken = nil
			} else {
				log.Error("stream_open_failed", zap.Error(err))
			}
			select {
			case <-time.After(reopenDelay):
			case <-ctx.Done():
				return
			}
			continue
		}

		for cs.Next(ctx) {
			change, err := mapp(w.store.paths, cs.Current)
			if err != nil {
				log.Error("stream_event_undecodable", zap.Error(err))
				continue
			}
			if change != nil {
				if err := w.pub.Publish(ctx, change); err != nil {
					log.Warn("stream_publish_failed", zap.Error(err))
				}
			}
			resumeToken = cs.ResumeToken()
		}
		if err := cs.Err(); err != nil && ctx.Err() == nil {
			log.Warn("stream_interrupted", zap.Error(err))
		}
		_ = cs.Close(context.WithoutCancel(ctx))
	}
}

func (w *Watcher) openStream(ctx context.Context, coll string, resumeToken bson.Raw) (*mongo.ChangeStream, error) {
	pipeline := mongo.Pipeline{bson.D{{Key: "$match", Value: bson.M{
		"operationType": bson.M{"$in": bson.A{"insert", "update", "replace", "delete"}},
	}}}}
	opts := options.ChangeStream().
		SetFullDocument(options.UpdateLookup).
		SetFullDocumentBeforeChange(options.WhenAvailable)
	if resumeToken != nil {
		opts.SetResumeAfter(resumeToken)
	}

	var cs *mongo.ChangeStream
	err := retry.Do(
		func() error {
			var err error
			cs, err = w.store.collection(coll).Watch(ctx, pipeline, opts)
			return err
		},
		retry.Attempts(openAttempts),
		retry.Delay(openDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return nil, err
	}
	return cs, nil
}

// changeEvent is the decoded shape of one change-stream document. Before is
// only present on collections with pre-images enabled.
type changeEvent[T any] struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument *T `bson:"fullDocument"`
	Before       *T `bson:"fullDocumentBeforeChange"`
}

func decodeChange[T any](raw bson.Raw) (changeEvent[T], store.ChangeKind, bool, error) {
	var ev changeEvent[T]
	if err := bson.Unmarshal(raw, &ev); err != nil {
		return ev, "", false, err
	}
	kind, ok := changeKind(ev.OperationType)
	return ev, kind, ok, nil
}

func changeKind(operationType string) (store.ChangeKind, bool) {
	switch operationType {
	case "insert":
		return store.ChangeCreate, true
	case "update", "replace":
		return store.ChangeUpdate, true
	case "delete":
		return store.ChangeDelete, true
	default:
		return "", false
	}
}

func mapPurchaseChange(paths store.Paths, raw bson.Raw) (store.Event, error) {
	ev, kind, ok, err := decodeChange[purchaseDoc](raw)
	if err != nil || !ok {
		return nil, err
	}
	change := store.PurchaseChange{Kind: kind}
	if ev.FullDocument != nil {
		change.EventID = ev.FullDocument.EventID
		change.PurchaseID = ev.FullDocument.PurchaseID
		after := ev.FullDocument.toDomain()
		change.After = &after
	}
	if ev.Before != nil {
		before := ev.Before.toDomain()
		change.Before = &before
		if change.EventID == "" {
			change.EventID = ev.Before.EventID
			change.PurchaseID = ev.Before.PurchaseID
		}
	}
	if change.EventID == "" {
		parts, ok := pathParts(paths, ev.DocumentKey.ID, 4)
		if !ok {
			return nil, nil
		}
		change.EventID, change.PurchaseID = parts[1], parts[3]
	}
	return change, nil
}

func mapPOSItemChange(paths store.Paths, raw bson.Raw) (store.Event, error) {
	ev, kind, ok, err := decodeChange[posItemDoc](raw)
	if err != nil || !ok {
		return nil, err
	}
	change := store.POSItemChange{Kind: kind}
	if ev.FullDocument != nil {
		change.EventID = ev.FullDocument.EventID
		change.POSID = ev.FullDocument.POSID
		change.ItemID = ev.FullDocument.ItemID
		after := ev.FullDocument.toDomain()
		change.After = &after
	}
	if ev.Before != nil {
		before := ev.Before.toDomain()
		change.Before = &before
		if change.EventID == "" {
			change.EventID = ev.Before.EventID
			change.POSID = ev.Before.POSID
			change.ItemID = ev.Before.ItemID
		}
	}
	if change.EventID == "" {
		parts, ok := pathParts(paths, ev.DocumentKey.ID, 6)
		if !ok {
			return nil, nil
		}
		change.EventID, change.POSID, change.ItemID = parts[1], parts[3], parts[5]
	}
	return change, nil
}

func mapNotificationChange(paths store.Paths, raw bson.Raw) (store.Event, error) {
	ev, kind, ok, err := decodeChange[notificationDoc](raw)
	if err != nil || !ok {
		return nil, err
	}
	change := store.NotificationChange{Kind: kind}
	if ev.FullDocument != nil {
		change.EventID = ev.FullDocument.EventID
		change.NotificationID = ev.FullDocument.NotificationID
		after := ev.FullDocument.toDomain()
		change.After = &after
	}
	if ev.Before != nil {
		before := ev.Before.toDomain()
		change.Before = &before
		if change.EventID == "" {
			change.EventID = ev.Before.EventID
			change.NotificationID = ev.Before.NotificationID
		}
	}
	if change.EventID == "" {
		parts, ok := pathParts(paths, ev.DocumentKey.ID, 4)
		if !ok {
			return nil, nil
		}
		change.EventID, change.NotificationID = parts[1], parts[3]
	}
	return change, nil
}

// pathParts splits a document path into its segments and checks both the
// configured root and the expected depth. Delete events carry no document
// body, so scope comes from the path alone.
func pathParts(paths store.Paths, path string, n int) ([]string, bool) {
	parts := strings.Split(path, "/")
	if len(parts) != n || parts[0] != paths.Root() {
		return nil, false
	}
	return parts, true
}
