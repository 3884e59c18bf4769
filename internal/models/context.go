package models

// DefaultPersonality is used until a session picks another one
const DefaultPersonality = "casual_friend"

// ContextRecord is the per-session profile used to personalize prompts
type ContextRecord struct {
	UserName    *string        `json:"userName"`
	Preferences map[string]any `json:"preferences"`
	Personality string         `json:"personality"`
	Topics      []string       `json:"topics"`
	LastUpdated int64          `json:"lastUpdated,omitempty"`
}

// DefaultContext returns the record of a session that never stored one
func DefaultContext() ContextRecord {
	return ContextRecord{
		UserName:    nil,
		Preferences: map[string]any{},
		Personality: DefaultPersonality,
		Topics:      []string{},
	}
}

// ContextPatch is a partial update. Nil fields are left untouched.
type ContextPatch struct {
	UserName    *string        `json:"userName,omitempty"`
	Preferences map[string]any `json:"preferences,omitempty"`
	Personality *string        `json:"personality,omitempty"`
	Topics      []string       `json:"topics,omitempty"`
}

// Apply shallow-merges p onto r and returns the result. r is not modified.
func (p ContextPatch) Apply(r ContextRecord) ContextRecord {
	merged := r
	if p.UserName != nil {
		name := *p.UserName
		merged.UserName = &name
	}
	if p.Preferences != nil {
		prefs := make(map[string]any, len(p.Preferences))
		for k, v := range p.Preferences {
			prefs[k] = v
		}
		merged.Preferences = prefs
	}
	if p.Personality != nil {
		merged.Personality = *p.Personality
	}
	if p.Topics != nil {
		merged.Topics = append([]string{}, p.Topics...)
	}
	return merged
}

// Normalize fills fields a stored record may lack
func (r ContextRecord) Normalize() ContextRecord {
	if r.Preferences == nil {
		r.Preferences = map[string]any{}
	}
	if r.Topics == nil {
		r.Topics = []string{}
	}
	if r.Personality == "" {
		r.Personality = DefaultPersonality
	}
	return r
}

// Clone returns a copy of r that shares no map, slice or pointer with it
func (r ContextRecord) Clone() ContextRecord {
	c := r
	if r.UserName != nil {
		name := *r.UserName
		c.UserName = &name
	}
	if r.Preferences != nil {
		c.Preferences = make(map[string]any, len(r.Preferences))
		for k, v := range r.Preferences {
			c.Preferences[k] = v
		}
	}
	if r.Topics != nil {
		c.Topics = append([]string{}, r.Topics...)
	}
	return c
}

// DisplayName returns the user's name or the fallback
func (r ContextRecord) DisplayName(fallback string) string {
	if r.UserName == nil || *r.UserName == "" {
		return fallback
	}
	return *r.UserName
}
