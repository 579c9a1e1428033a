package mongodb

import (
	"reflect"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestNormalizeDocument(t *testing.T) {
	oid := primitive.NewObjectID()
	when := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	doc := bson.M{
		"_id":     oid,
		"name":    "widget",
		"price":   12.5,
		"qty":     int32(3),
		"created": primitive.NewDateTimeFromTime(when),
		"tags":    bson.A{"a", bson.M{"nested": oid}},
	}

	got := NormalizeDocument(doc)
	if got["_id"] != oid.Hex() {
		t.Fatalf("_id = %v, want %s", got["_id"], oid.Hex())
	}
	if got["created"] != "2024-06-01T12:00:00Z" {
		t.Fatalf("created = %v", got["created"])
	}
	if got["qty"] != 3 {
		t.Fatalf("qty = %#v, want int 3", got["qty"])
	}
	tags, ok := got["tags"].([]any)
	if !ok || len(tags) != 2 {
		t.Fatalf("tags = %#v", got["tags"])
	}
	nested, ok := tags[1].(map[string]any)
	if !ok || nested["nested"] != oid.Hex() {
		t.Fatalf("nested ObjectID not normalized: %#v", tags[1])
	}
}

func TestNormalizeOrderedDocument(t *testing.T) {
	d := bson.D{{Key: "a", Value: int64(1)}, {Key: "b", Value: bson.D{{Key: "c", Value: "x"}}}}
	got := Normalize(d)
	want := map[string]any{"a": int64(1), "b": map[string]any{"c": "x"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Normalize = %#v, want %#v", got, want)
	}
}

func TestTypeName(t *testing.T) {
	cases := map[string]any{
		"string":   "x",
		"int":      int32(1),
		"double":   1.5,
		"bool":     true,
		"date":     primitive.NewDateTimeFromTime(time.Now()),
		"objectId": primitive.NewObjectID(),
		"array":    bson.A{},
		"object":   bson.M{},
		"null":     nil,
	}
	for want, value := range cases {
		if got := typeName(value); got != want {
			t.Fatalf("typeName(%#v) = %q, want %q", value, got, want)
		}
	}
}
