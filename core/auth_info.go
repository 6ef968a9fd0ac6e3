package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	AuthInfoKeyProfile = "profile"

	ProfileKeyDisplayName       = "displayName"
	ProfileKeyPreferredUsername = "preferredUsername"
	ProfileKeyURL               = "url"
	ProfileKeyProviderName      = "providerName"
	ProfileKeyIdentifier        = "identifier"
	ProfileKeyEmail             = "email"
	ProfileKeyVerifiedEmail     = "verifiedEmail"
	ProfileKeyPhoto             = "photo"
)

// AuthInfo is everything the identity service knows about an authenticated
// user. It always contains a "profile" dictionary with an identifier.
type AuthInfo struct {
	dict Dictionary
}

type Profile struct {
	DisplayName       string
	PreferredUsername string
	URL               string
	ProviderName      string
	Identifier        string
	Email             string
	VerifiedEmail     string
	Photo             string
}

func NewAuthInfo(dict Dictionary) (AuthInfo, error) {
	info := AuthInfo{dict: dict.Clone()}
	if err := info.Validate(); err != nil {
		return AuthInfo{}, err
	}
	return info, nil
}

// ParseAuthInfo decodes an auth_info response. Both the bare object and the
// {"auth_info": {...}} envelope are accepted.
func ParseAuthInfo(raw []byte) (AuthInfo, error) {
	dict, err := ParseDictionary(raw)
	if err != nil {
		return AuthInfo{}, fmt.Errorf("core: decode auth info: %w", err)
	}
	if nested, ok := dict.Dictionary("auth_info"); ok {
		dict = nested
	}
	return NewAuthInfo(dict)
}

func (a AuthInfo) Validate() error {
	profile, ok := a.dict.Dictionary(AuthInfoKeyProfile)
	if !ok {
		return fmt.Errorf("core: auth info profile is required")
	}
	if strings.TrimSpace(profile.String(ProfileKeyIdentifier)) == "" {
		return fmt.Errorf("core: auth info profile identifier is required")
	}
	return nil
}

func (a AuthInfo) Profile() Profile {
	profile, _ := a.dict.Dictionary(AuthInfoKeyProfile)
	return Profile{
		DisplayName:       profile.String(ProfileKeyDisplayName),
		PreferredUsername: profile.String(ProfileKeyPreferredUsername),
		URL:               profile.String(ProfileKeyURL),
		ProviderName:      profile.String(ProfileKeyProviderName),
		Identifier:        profile.String(ProfileKeyIdentifier),
		Email:             profile.String(ProfileKeyEmail),
		VerifiedEmail:     profile.String(ProfileKeyVerifiedEmail),
		Photo:             profile.String(ProfileKeyPhoto),
	}
}

// Dictionary returns a copy of the underlying data.
func (a AuthInfo) Dictionary() Dictionary {
	return a.dict.Clone()
}

func (a AuthInfo) Get(key string) (any, bool) {
	value, ok := a.dict.Get(key)
	if !ok {
		return nil, false
	}
	return cloneDictionaryValue(value), true
}

func (a AuthInfo) IsZero() bool {
	return a.dict.Len() == 0
}

func (a AuthInfo) Clone() AuthInfo {
	return AuthInfo{dict: a.dict.Clone()}
}

func (a AuthInfo) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.dict)
}

func (a *AuthInfo) UnmarshalJSON(raw []byte) error {
	var dict Dictionary
	if err := json.Unmarshal(raw, &dict); err != nil {
		return err
	}
	a.dict = dict
	return nil
}
