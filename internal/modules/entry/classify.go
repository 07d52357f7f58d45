package entry

import "github.com/tanzawa/core/internal/models"

// Classify determines the entry kind from normalized properties. Precedence
// is fixed: checkin beats bookmark_of beats in_reply_to beats a title;
// anything else is a plain note. "like" exists as a kind but has no
// dedicated creation path here.
func Classify(props map[string][]interface{}) models.EntryKind {
	switch {
	case len(props["checkin"]) > 0:
		return models.KindCheckin
	case hasStringValue(props, "bookmark_of"):
		return models.KindBookmark
	case hasStringValue(props, "in_reply_to"):
		return models.KindReply
	case hasStringValue(props, "name"):
		return models.KindArticle
	default:
		return models.KindNote
	}
}

func hasStringValue(props map[string][]interface{}, key string) bool {
	for _, v := range props[key] {
		if s, ok := v.(string); ok && s != "" {
			return true
		}
	}
	return false
}
