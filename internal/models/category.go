package models

// Category identifies an independent correction track. All drift state is
// partitioned by this key; categories never interact.
type Category uint8

const (
	CategoryVideo Category = iota
	CategoryAudio
	CategoryText

	categoryCount
)

// Categories lists every known category in a stable order.
func Categories() []Category {
	return []Category{CategoryVideo, CategoryAudio, CategoryText}
}

func (c Category) String() string {
	switch c {
	case CategoryVideo:
		return "video"
	case CategoryAudio:
		return "audio"
	case CategoryText:
		return "text"
	}
	return "unknown"
}

// ParseCategory maps a DASH AdaptationSet contentType to a Category.
// The boolean is false for content types that carry no timeline (e.g. image).
func ParseCategory(contentType string) (Category, bool) {
	switch contentType {
	case "video":
		return CategoryVideo, true
	case "audio":
		return CategoryAudio, true
	case "text":
		return CategoryText, true
	}
	return 0, false
}
