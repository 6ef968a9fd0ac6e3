package core

import (
	"fmt"
	"strings"
	"time"
)

// Provider names the identity or social network involved in an outcome. The
// set is open: names outside the known catalog are accepted.
type Provider string

const (
	ProviderFacebook   Provider = "facebook"
	ProviderTwitter    Provider = "twitter"
	ProviderLinkedIn   Provider = "linkedin"
	ProviderGoogle     Provider = "google"
	ProviderYahoo      Provider = "yahoo"
	ProviderMySpace    Provider = "myspace"
	ProviderLiveID     Provider = "live_id"
	ProviderAOL        Provider = "aol"
	ProviderOpenID     Provider = "openid"
	ProviderMyOpenID   Provider = "myopenid"
	ProviderWordPress  Provider = "wordpress"
	ProviderBlogger    Provider = "blogger"
	ProviderFlickr     Provider = "flickr"
	ProviderHyves      Provider = "hyves"
	ProviderPayPal     Provider = "paypal"
	ProviderSalesforce Provider = "salesforce"
	ProviderYammer     Provider = "yammer"
	ProviderOther      Provider = "other"
)

// NormalizeProvider returns the lookup key for name. Notifications keep the
// driver's spelling; only registry, config and filter matching use the key.
func NormalizeProvider(name string) Provider {
	return Provider(strings.ToLower(strings.TrimSpace(name)))
}

// SameProvider compares provider names case-insensitively.
func SameProvider(a Provider, b Provider) bool {
	return NormalizeProvider(string(a)) == NormalizeProvider(string(b))
}

func trimProvider(provider Provider) Provider {
	return Provider(strings.TrimSpace(string(provider)))
}

func (p Provider) String() string { return string(p) }

type Scope string

const (
	ScopeConfiguration  Scope = "configuration"
	ScopeAuthentication Scope = "authentication"
	ScopePublishing     Scope = "publishing"
)

type NotificationKind string

const (
	NotificationDialogFailedToShow         NotificationKind = "dialog.failed_to_show"
	NotificationAuthenticationNotCompleted NotificationKind = "authentication.not_completed"
	NotificationAuthenticationSucceeded    NotificationKind = "authentication.succeeded"
	NotificationAuthenticationFailed       NotificationKind = "authentication.failed"
	NotificationTokenURLReached            NotificationKind = "authentication.token_url_reached"
	NotificationTokenURLCallFailed         NotificationKind = "authentication.token_url_call_failed"
	NotificationPublishingNotCompleted     NotificationKind = "publishing.not_completed"
	NotificationPublishingCompleted        NotificationKind = "publishing.completed"
	NotificationActivityPublished          NotificationKind = "publishing.activity_published"
	NotificationActivityPublishFailed      NotificationKind = "publishing.activity_publish_failed"
)

func (k NotificationKind) Scope() Scope {
	switch k {
	case NotificationDialogFailedToShow:
		return ScopeConfiguration
	case NotificationAuthenticationNotCompleted,
		NotificationAuthenticationSucceeded,
		NotificationAuthenticationFailed,
		NotificationTokenURLReached,
		NotificationTokenURLCallFailed:
		return ScopeAuthentication
	default:
		return ScopePublishing
	}
}

// Terminal reports whether the kind closes its attempt or session. Token URL
// notifications close the token sub-chain only and are not terminal here.
func (k NotificationKind) Terminal() bool {
	switch k {
	case NotificationDialogFailedToShow,
		NotificationAuthenticationNotCompleted,
		NotificationAuthenticationSucceeded,
		NotificationAuthenticationFailed,
		NotificationPublishingNotCompleted,
		NotificationPublishingCompleted:
		return true
	default:
		return false
	}
}

func (k NotificationKind) Valid() bool {
	switch k {
	case NotificationDialogFailedToShow,
		NotificationAuthenticationNotCompleted,
		NotificationAuthenticationSucceeded,
		NotificationAuthenticationFailed,
		NotificationTokenURLReached,
		NotificationTokenURLCallFailed,
		NotificationPublishingNotCompleted,
		NotificationPublishingCompleted,
		NotificationActivityPublished,
		NotificationActivityPublishFailed:
		return true
	default:
		return false
	}
}

// Notification is the recorded form of one delivered event.
type Notification struct {
	ID         string
	Kind       NotificationKind
	ScopeID    string
	Sequence   uint64
	Provider   Provider
	AuthInfo   *AuthInfo
	Activity   *Activity
	TokenURL   *TokenURLResult
	Error      *EngageError
	OccurredAt time.Time
}

func (n Notification) Scope() Scope {
	return n.Kind.Scope()
}

func (n Notification) clone() Notification {
	out := n
	if n.AuthInfo != nil {
		info := n.AuthInfo.Clone()
		out.AuthInfo = &info
	}
	if n.Activity != nil {
		activity := n.Activity.Clone()
		out.Activity = &activity
	}
	if n.TokenURL != nil {
		result := n.TokenURL.clone()
		out.TokenURL = &result
	}
	return out
}

// Fields returns a log friendly view of the notification. Auth payloads are
// redacted.
func (n Notification) Fields() map[string]any {
	fields := map[string]any{
		"notification_id": n.ID,
		"kind":            string(n.Kind),
		"scope":           string(n.Scope()),
		"scope_id":        n.ScopeID,
		"sequence":        n.Sequence,
	}
	if n.Provider != "" {
		fields["provider"] = string(n.Provider)
	}
	if n.Activity != nil {
		fields["activity_action"] = n.Activity.Action
	}
	if n.TokenURL != nil {
		fields["token_url"] = n.TokenURL.URL
	}
	if n.AuthInfo != nil {
		fields["auth_info"] = RedactSensitiveMap(n.AuthInfo.Dictionary().ToMap())
	}
	if n.Error != nil {
		fields["error_kind"] = string(n.Error.Kind)
		fields["error_code"] = n.Error.Code
		fields["error"] = n.Error.Error()
	}
	return fields
}

type NotificationFilter struct {
	ScopeID  string
	Kinds    []NotificationKind
	Provider Provider
	From     *time.Time
	To       *time.Time
	Page     int
	PerPage  int
}

type NotificationPage struct {
	Items   []Notification
	Page    int
	PerPage int
	Total   int
	HasNext bool
}

type AttemptState string

const (
	AttemptStatePending      AttemptState = "pending"
	AttemptStateSucceeded    AttemptState = "succeeded"
	AttemptStateFailed       AttemptState = "failed"
	AttemptStateNotCompleted AttemptState = "not_completed"
)

type TokenState string

const (
	TokenStateNone       TokenState = ""
	TokenStatePending    TokenState = "pending"
	TokenStateReached    TokenState = "reached"
	TokenStateCallFailed TokenState = "call_failed"
)

type SessionState string

const (
	SessionStatePending      SessionState = "pending"
	SessionStateClosing      SessionState = "closing"
	SessionStateCompleted    SessionState = "completed"
	SessionStateNotCompleted SessionState = "not_completed"
)

type DialogKind string

const (
	DialogAuthentication   DialogKind = "authentication"
	DialogSocialPublishing DialogKind = "social_publishing"
)

type AuthenticationRequest struct {
	// Provider skips the provider list and starts on this provider when set.
	Provider Provider
	// TokenURL overrides Config.Authentication.TokenURL for this attempt.
	TokenURL string
}

type PublishingRequest struct {
	Activity *Activity
}

type DialogRequest struct {
	Kind DialogKind
}

func (r DialogRequest) Validate() error {
	switch r.Kind {
	case DialogAuthentication, DialogSocialPublishing:
		return nil
	default:
		return fmt.Errorf("core: unsupported dialog kind %q", r.Kind)
	}
}
