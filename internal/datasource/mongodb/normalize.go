package mongodb

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Normalize converts driver-specific BSON values into plain JSON-compatible
// ones: ObjectIDs become hex strings, timestamps RFC 3339 strings, and
// nested documents/arrays are converted recursively.
func Normalize(v any) any {
	switch x := v.(type) {
	case primitive.ObjectID:
		return x.Hex()
	case primitive.DateTime:
		return x.Time().UTC().Format(time.RFC3339)
	case primitive.Timestamp:
		return time.Unix(int64(x.T), 0).UTC().Format(time.RFC3339)
	case primitive.Decimal128:
		return x.String()
	case primitive.Binary:
		return fmt.Sprintf("binary(%d bytes)", len(x.Data))
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case bson.M:
		return NormalizeDocument(x)
	case map[string]any:
		return NormalizeDocument(x)
	case bson.D:
		out := make(map[string]any, len(x))
		for _, e := range x {
			out[e.Key] = Normalize(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = Normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = Normalize(item)
		}
		return out
	case int32:
		return int(x)
	case int64:
		return x
	default:
		return v
	}
}

// NormalizeDocument applies Normalize to every value of a document.
func NormalizeDocument(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = Normalize(v)
	}
	return out
}

// toDocument converts a JSON-style map into a bson.M the driver accepts.
func toDocument(m map[string]any) bson.M {
	out := bson.M{}
	for k, v := range m {
		out[k] = v
	}
	return out
}

func typeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case int32, int64, int:
		return "int"
	case float64, float32:
		return "double"
	case bool:
		return "bool"
	case primitive.DateTime, time.Time:
		return "date"
	case primitive.ObjectID:
		return "objectId"
	case bson.A, []any:
		return "array"
	case bson.M, bson.D, map[string]any:
		return "object"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}
