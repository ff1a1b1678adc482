package mongoconv

import (
	"testing"
	"time"

	"github.com/convergedb/sync/pkg/utm"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// TestObjectIDAndDecimal128RoundTrip checks that an ObjectId converts to
// a Text carrying its hex string and a Decimal128 preserves its
// textual literal rather than becoming a float.
func TestObjectIDAndDecimal128RoundTrip(t *testing.T) {
	oid, err := bson.ObjectIDFromHex("507f1f77bcf86cd799439011")
	if err != nil {
		t.Fatal(err)
	}
	dec, err := bson.ParseDecimal128("19.99")
	if err != nil {
		t.Fatal(err)
	}

	doc := bson.M{
		"_id":   oid,
		"price": dec,
	}
	tv, err := ConvertDocument(doc)
	if err != nil {
		t.Fatal(err)
	}
	obj, ok := tv.Value.AsObject()
	if !ok {
		t.Fatal("expected object")
	}
	if obj["_id"].Kind() != utm.KindText {
		t.Fatalf("expected _id to convert to hex Text, got %v", obj["_id"].Kind())
	}
	idStr, _ := obj["_id"].AsString()
	if idStr != "507f1f77bcf86cd799439011" {
		t.Fatalf("unexpected hex id: %q", idStr)
	}
	if obj["price"].Kind() != utm.KindDecimal {
		t.Fatalf("expected price to stay Decimal, got %v", obj["price"].Kind())
	}
	lit, _ := obj["price"].AsDecimal()
	if lit.Text != "19.99" {
		t.Fatalf("expected literal 19.99 preserved, got %q", lit.Text)
	}
}

func TestDateTimeConvertsToZonedDateTimeUTC(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	tv, err := Convert(bson.NewDateTimeFromTime(now))
	if err != nil {
		t.Fatal(err)
	}
	if tv.Type.Kind != utm.KindZonedDateTime {
		t.Fatalf("expected ZonedDateTime, got %v", tv.Type.Kind)
	}
}

func TestEmbeddedDocumentConvertsRecursively(t *testing.T) {
	doc := bson.M{
		"address": bson.M{
			"city": "Springfield",
			"zip":  "00000",
		},
	}
	tv, err := ConvertDocument(doc)
	if err != nil {
		t.Fatal(err)
	}
	obj, _ := tv.Value.AsObject()
	if obj["address"].Kind() != utm.KindObject {
		t.Fatalf("expected nested object, got %v", obj["address"].Kind())
	}
	nested, _ := obj["address"].AsObject()
	if nested["city"].Kind() != utm.KindText {
		t.Fatalf("expected nested city to be text, got %v", nested["city"].Kind())
	}
}
