package fax

import (
	"fmt"
	"strings"
)

// Normalize maps a raw backend record onto a Job. The backend exposes the
// same logical field under different names across versions (created_at vs
// createdAt, page_count vs pageCount); each lookup is a fallback chain so
// the rest of the code never sees the variants.
func Normalize(raw map[string]any) Job {
	return Job{
		ID:            pickString(raw, "id", "fax_id", "faxId"),
		Direction:     pickString(raw, "direction"),
		Status:        Status(strings.ToLower(pickString(raw, "status", "state"))),
		From:          pickString(raw, "from", "from_number", "fromNumber"),
		To:            pickString(raw, "to", "to_number", "toNumber"),
		PageCount:     pickInt(raw, "page_count", "pageCount", "pages"),
		FailureReason: pickString(raw, "failure_reason", "failureReason"),
		MediaURL:      pickString(raw, "media_url", "mediaUrl", "original_media_url"),
		PreviewURL:    pickString(raw, "preview_url", "previewUrl"),
		CreatedAt:     pickString(raw, "created_at", "createdAt"),
		UpdatedAt:     pickString(raw, "updated_at", "updatedAt"),
	}
}

func pickString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			switch s := v.(type) {
			case string:
				if s != "" {
					return s
				}
			case float64:
				return fmt.Sprintf("%v", s)
			}
		}
	}
	return ""
}

func pickInt(raw map[string]any, keys ...string) int {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			switch n := v.(type) {
			case float64:
				return int(n)
			case int:
				return n
			}
		}
	}
	return 0
}
