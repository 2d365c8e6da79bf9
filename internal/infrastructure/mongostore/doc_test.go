package mongostore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/venuepos/dispatch/internal/domain/dispatch"
	"github.com/venuepos/dispatch/internal/domain/notification"
	"github.com/venuepos/dispatch/internal/domain/purchase"
	"github.com/venuepos/dispatch/internal/store"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	paths, err := store.NewPaths(store.RootEvents)
	require.NoError(t, err)
	return &Store{paths: paths}
}

func TestPurchaseItemDocRoundTrip(t *testing.T) {
	s := testStore(t)

	it := purchase.Item{
		DocID:      "beer-doc",
		ItemID:     "beer",
		Quantity:   purchase.Float(2),
		Status:     "open",
		Calculated: 1,
		Name:       "Beer",
		Price:      4.5,
		Entries: []purchase.Entry{
			{Quantity: purchase.Float(1), SelectedExtras: []string{"lime"}},
			{Quantity: purchase.Float(1), ExcludedIngredients: []string{"ice"}},
		},
	}
	doc := s.purchaseItemDoc("ev", "p-1", it)
	assert.Equal(t, "Events/ev/Orders/p-1/Items/beer-doc", doc.Path)
	assert.Equal(t, "ev", doc.EventID)
	assert.Equal(t, "p-1", doc.PurchaseID)
	assert.Equal(t, 1, doc.Calculated)

	// The wire field for the idempotence marker is the double-underscore
	// name legacy writers use.
	raw, err := bson.Marshal(doc)
	require.NoError(t, err)
	var m bson.M
	require.NoError(t, bson.Unmarshal(raw, &m))
	assert.Equal(t, int32(1), m["__calculated"])

	assert.Equal(t, it, doc.toDomain())
}

func TestPOSOrderDocStampsPathAndScope(t *testing.T) {
	s := testStore(t)

	o := dispatch.Order{ID: "ord-1", Status: dispatch.OrderOpen, Note: "table 4"}
	doc := s.posOrderDoc("ev", "pos-1", o)
	assert.Equal(t, "Events/ev/Points-of-Sale/pos-1/Orders/ord-1", doc.Path)
	assert.Equal(t, "ev", doc.EventID)
	assert.Equal(t, "pos-1", doc.POSID)
	assert.Equal(t, "open", doc.OrderStatus)
	assert.Equal(t, o, doc.toDomain())

	it := dispatch.Item{Key: "beer__", ItemID: "beer", Count: dispatch.Int(3), Status: "open"}
	itemDoc := s.posOrderItemDoc("ev", "pos-1", "ord-1", it)
	assert.Equal(t, "Events/ev/Points-of-Sale/pos-1/Orders/ord-1/Items/beer__", itemDoc.Path)
	assert.Equal(t, it, itemDoc.toDomain())
}

func TestNotificationDocRoundTrip(t *testing.T) {
	s := testStore(t)

	n := notification.Notification{
		ID:      "n-1",
		Title:   "Artikel nicht mehr verfügbar",
		Message: "Bitte erstatten",
		OrderID: "ord-1",
		ItemIDs: []string{"beer"},
		Action:  notification.ActionRefund,
		Status:  notification.StatusCreated,
	}
	doc := s.notificationDoc("ev", n)
	assert.Equal(t, "Events/ev/Notifications/n-1", doc.Path)
	assert.Equal(t, "created", doc.Status)
	assert.Equal(t, n, doc.toDomain())
}

func TestChangeKindMapsOperationTypes(t *testing.T) {
	for op, want := range map[string]store.ChangeKind{
		"insert":  store.ChangeCreate,
		"update":  store.ChangeUpdate,
		"replace": store.ChangeUpdate,
		"delete":  store.ChangeDelete,
	} {
		kind, ok := changeKind(op)
		require.True(t, ok, op)
		assert.Equal(t, want, kind, op)
	}
	_, ok := changeKind("invalidate")
	assert.False(t, ok)
}

func TestMapPurchaseChangeReadsImages(t *testing.T) {
	s := testStore(t)

	before := s.purchaseDoc("ev", purchase.Purchase{ID: "p-1"})
	after := s.purchaseDoc("ev", purchase.Purchase{ID: "p-1", IsPaid: true})
	raw, err := bson.Marshal(bson.M{
		"operationType":            "update",
		"documentKey":              bson.M{"_id": after.Path},
		"fullDocument":             after,
		"fullDocumentBeforeChange": before,
	})
	require.NoError(t, err)

	e, err := mapPurchaseChange(s.paths, raw)
	require.NoError(t, err)
	change, ok := e.(store.PurchaseChange)
	require.True(t, ok)
	assert.Equal(t, store.ChangeUpdate, change.Kind)
	assert.Equal(t, "ev", change.EventID)
	assert.Equal(t, "p-1", change.PurchaseID)
	require.NotNil(t, change.Before)
	require.NotNil(t, change.After)
	assert.False(t, change.Before.IsPaid)
	assert.True(t, change.After.IsPaid)
}

func TestMapPurchaseChangeDeleteFallsBackToPath(t *testing.T) {
	s := testStore(t)

	raw, err := bson.Marshal(bson.M{
		"operationType": "delete",
		"documentKey":   bson.M{"_id": s.paths.Purchase("ev", "p-9")},
	})
	require.NoError(t, err)

	e, err := mapPurchaseChange(s.paths, raw)
	require.NoError(t, err)
	change, ok := e.(store.PurchaseChange)
	require.True(t, ok)
	assert.Equal(t, store.ChangeDelete, change.Kind)
	assert.Equal(t, "ev", change.EventID)
	assert.Equal(t, "p-9", change.PurchaseID)
	assert.Nil(t, change.Before)
	assert.Nil(t, change.After)
}

func TestMapPOSItemChangeScopesFromDocument(t *testing.T) {
	s := testStore(t)

	doc := posItemDoc{
		Path:        s.paths.POSItem("ev", "pos-1", "beer"),
		EventID:     "ev",
		POSID:       "pos-1",
		ItemID:      "beer",
		IsAvailable: boolPtr(false),
	}
	raw, err := bson.Marshal(bson.M{
		"operationType": "update",
		"documentKey":   bson.M{"_id": doc.Path},
		"fullDocument":  doc,
	})
	require.NoError(t, err)

	e, err := mapPOSItemChange(s.paths, raw)
	require.NoError(t, err)
	change, ok := e.(store.POSItemChange)
	require.True(t, ok)
	assert.Equal(t, "pos-1", change.POSID)
	assert.Equal(t, "beer", change.ItemID)
	require.NotNil(t, change.After)
	assert.False(t, change.After.Available())
}

func TestPathPartsRejectsForeignRoots(t *testing.T) {
	paths, err := store.NewPaths(store.RootEvents)
	require.NoError(t, err)

	_, ok := pathParts(paths, "PosEvents/ev/Orders/p-1", 4)
	assert.False(t, ok)
	_, ok = pathParts(paths, "Events/ev/Orders", 4)
	assert.False(t, ok)
	parts, ok := pathParts(paths, "Events/ev/Orders/p-1", 4)
	require.True(t, ok)
	assert.Equal(t, "ev", parts[1])
}

func TestTranslateBucketsDriverErrors(t *testing.T) {
	dup := mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000}}}
	assert.ErrorIs(t, translate(dup), store.ErrConflict)

	assert.NoError(t, translate(nil))
	assert.ErrorIs(t, translate(context.DeadlineExceeded), store.ErrTransient)
	assert.ErrorIs(t, translate(context.Canceled), store.ErrTransient)

	transient := mongo.CommandError{Labels: []string{"TransientTransactionError"}}
	assert.ErrorIs(t, translate(transient), store.ErrTransient)

	assert.ErrorIs(t, translate(assert.AnError), store.ErrPermanent)
}

func boolPtr(v bool) *bool { return &v }
