package core

import (
	"fmt"
	"net/url"
	"strings"
)

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaFlash MediaKind = "flash"
	MediaMP3   MediaKind = "mp3"
)

// Activity is what the application asks the user to share.
type Activity struct {
	ID          string
	Action      string
	URL         string
	Title       string
	Description string
	UserContent string
	ActionLinks []ActionLink
	Media       []MediaItem
	Properties  Dictionary
	// Audience holds targeting hints such as "friends" or a list name. The
	// provider decides how, or whether, to honor them.
	Audience []string
}

type ActionLink struct {
	Text string
	Href string
}

type MediaItem struct {
	Kind   MediaKind
	Src    string
	Href   string
	Title  string
	Artist string
	Album  string
	Width  int
	Height int
}

func (a Activity) Validate() error {
	if strings.TrimSpace(a.Action) == "" {
		return fmt.Errorf("core: activity action is required")
	}
	if err := validateOptionalURL("activity url", a.URL); err != nil {
		return err
	}
	for i, link := range a.ActionLinks {
		if strings.TrimSpace(link.Text) == "" {
			return fmt.Errorf("core: activity action link %d text is required", i)
		}
		if strings.TrimSpace(link.Href) == "" {
			return fmt.Errorf("core: activity action link %d href is required", i)
		}
		if err := validateOptionalURL("activity action link href", link.Href); err != nil {
			return err
		}
	}
	imageCount := 0
	for i, media := range a.Media {
		switch media.Kind {
		case MediaImage:
			imageCount++
		case MediaFlash, MediaMP3:
		default:
			return fmt.Errorf("core: activity media %d has unsupported kind %q", i, media.Kind)
		}
		if strings.TrimSpace(media.Src) == "" {
			return fmt.Errorf("core: activity media %d src is required", i)
		}
	}
	if imageCount > 0 && imageCount != len(a.Media) {
		return fmt.Errorf("core: activity media cannot mix images with flash or mp3")
	}
	return nil
}

func (a Activity) Clone() Activity {
	out := a
	out.ActionLinks = append([]ActionLink(nil), a.ActionLinks...)
	out.Media = append([]MediaItem(nil), a.Media...)
	out.Properties = a.Properties.Clone()
	out.Audience = append([]string(nil), a.Audience...)
	return out
}

func validateOptionalURL(field string, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("core: %s is invalid: %w", field, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("core: %s must be absolute", field)
	}
	return nil
}
