package vectorstore

import (
	"context"
	"encoding/json"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// SanitizeMetadata coerces metadata into what the wire format supports:
// scalars pass through, string arrays pass through, everything else is
// JSON-encoded into a string. Fields that cannot be encoded are dropped,
// never the whole record.
func SanitizeMetadata(ctx context.Context, meta map[string]interface{}) map[string]interface{} {
	if meta == nil {
		return nil
	}
	out := make(map[string]interface{}, len(meta))
	for key, value := range meta {
		switch v := value.(type) {
		case nil:
			continue
		case string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
			out[key] = v
		case []string:
			out[key] = v
		default:
			if ss, ok := toStringSlice(value); ok {
				out[key] = ss
				continue
			}
			data, err := json.Marshal(value)
			if err != nil {
				logutil.GetLogger(ctx).Warn("dropping metadata field",
					zap.String("field", key), zap.Error(err))
				continue
			}
			out[key] = string(data)
		}
	}
	return out
}

func toStringSlice(value interface{}) ([]string, bool) {
	items, ok := value.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
