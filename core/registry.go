package core

import (
	"fmt"
	"sort"
	"sync"
)

// ProviderDescriptor describes what a provider can be used for.
type ProviderDescriptor struct {
	Name             Provider
	DisplayName      string
	Authentication   bool
	SocialPublishing bool
}

// ProviderRegistry is the provider catalog. Names missing from the catalog
// are still valid: the set of providers is open.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[Provider]ProviderDescriptor
}

func NewProviderRegistry() *ProviderRegistry {
	registry := &ProviderRegistry{providers: make(map[Provider]ProviderDescriptor)}
	for _, descriptor := range DefaultProviderDescriptors() {
		registry.providers[descriptor.Name] = descriptor
	}
	return registry
}

// NewEmptyProviderRegistry returns a catalog with no known providers.
func NewEmptyProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[Provider]ProviderDescriptor)}
}

func DefaultProviderDescriptors() []ProviderDescriptor {
	return []ProviderDescriptor{
		{Name: ProviderAOL, DisplayName: "AOL", Authentication: true},
		{Name: ProviderBlogger, DisplayName: "Blogger", Authentication: true},
		{Name: ProviderFacebook, DisplayName: "Facebook", Authentication: true, SocialPublishing: true},
		{Name: ProviderFlickr, DisplayName: "Flickr", Authentication: true},
		{Name: ProviderGoogle, DisplayName: "Google", Authentication: true},
		{Name: ProviderHyves, DisplayName: "Hyves", Authentication: true, SocialPublishing: true},
		{Name: ProviderLinkedIn, DisplayName: "LinkedIn", Authentication: true, SocialPublishing: true},
		{Name: ProviderLiveID, DisplayName: "Windows Live", Authentication: true, SocialPublishing: true},
		{Name: ProviderMyOpenID, DisplayName: "MyOpenID", Authentication: true},
		{Name: ProviderMySpace, DisplayName: "MySpace", Authentication: true, SocialPublishing: true},
		{Name: ProviderOpenID, DisplayName: "OpenID", Authentication: true},
		{Name: ProviderOther, DisplayName: "Other", Authentication: true},
		{Name: ProviderPayPal, DisplayName: "PayPal", Authentication: true},
		{Name: ProviderSalesforce, DisplayName: "Salesforce", Authentication: true, SocialPublishing: true},
		{Name: ProviderTwitter, DisplayName: "Twitter", Authentication: true, SocialPublishing: true},
		{Name: ProviderWordPress, DisplayName: "WordPress", Authentication: true},
		{Name: ProviderYahoo, DisplayName: "Yahoo!", Authentication: true, SocialPublishing: true},
		{Name: ProviderYammer, DisplayName: "Yammer", Authentication: true, SocialPublishing: true},
	}
}

func (r *ProviderRegistry) Register(descriptor ProviderDescriptor) error {
	descriptor.Name = NormalizeProvider(string(descriptor.Name))
	if descriptor.Name == "" {
		return fmt.Errorf("core: provider name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[descriptor.Name]; exists {
		return fmt.Errorf("core: provider already registered: %s", descriptor.Name)
	}
	r.providers[descriptor.Name] = descriptor
	return nil
}

func (r *ProviderRegistry) Get(name Provider) (ProviderDescriptor, bool) {
	name = NormalizeProvider(string(name))
	if name == "" {
		return ProviderDescriptor{}, false
	}
	r.mu.RLock()
	descriptor, ok := r.providers[name]
	r.mu.RUnlock()
	return descriptor, ok
}

// SupportsAuthentication is true for unknown providers.
func (r *ProviderRegistry) SupportsAuthentication(name Provider) bool {
	descriptor, ok := r.Get(name)
	return !ok || descriptor.Authentication
}

// SupportsSocialPublishing is true for unknown providers.
func (r *ProviderRegistry) SupportsSocialPublishing(name Provider) bool {
	descriptor, ok := r.Get(name)
	return !ok || descriptor.SocialPublishing
}

func (r *ProviderRegistry) List() []ProviderDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProviderDescriptor, 0, len(r.providers))
	for _, descriptor := range r.providers {
		out = append(out, descriptor)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}
