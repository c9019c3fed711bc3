// Package content assembles notification payloads.
//
// Optional fields use Optional[T]: an absent value leaves the payload's
// default untouched, a present value (even an empty one) overwrites it.
package content

import (
	"maps"
	"slices"
)

// Optional holds a value that may be absent.
type Optional[T any] struct {
	value T
	set   bool
}

func Some[T any](v T) Optional[T] { return Optional[T]{value: v, set: true} }

// Maybe returns Some(*v) for a non-nil pointer and an absent value otherwise.
func Maybe[T any](v *T) Optional[T] {
	if v == nil {
		return Optional[T]{}
	}
	return Some(*v)
}

func (o Optional[T]) Get() (T, bool) { return o.value, o.set }
func (o Optional[T]) IsSet() bool    { return o.set }

// OrElse returns the value when present and def otherwise.
func (o Optional[T]) OrElse(def T) T {
	if o.set {
		return o.value
	}
	return def
}

// Attachment references media shown with a notification.
type Attachment struct {
	Identifier string `json:"identifier"`
	URL        string `json:"url"`
	Type       string `json:"type,omitempty"`
}

// Payload is the content handed to the notification center.
type Payload struct {
	Title       string         `json:"title"`
	Subtitle    string         `json:"subtitle,omitempty"`
	Body        string         `json:"body,omitempty"`
	Badge       int            `json:"badge,omitempty"`
	Sound       string         `json:"sound,omitempty"`
	Category    string         `json:"category,omitempty"`
	Thread      string         `json:"thread,omitempty"`
	LaunchImage string         `json:"launch_image,omitempty"`
	UserInfo    map[string]any `json:"user_info,omitempty"`
	Attachments []Attachment   `json:"attachments,omitempty"`
}

// Fields are the caller-supplied parts of a payload besides the title.
// The zero value means: empty subtitle and body, badge 0, nothing else.
type Fields struct {
	Subtitle string
	Body     string
	Badge    int

	Category    Optional[string]
	Thread      Optional[string]
	LaunchImage Optional[string]
	Sound       Optional[string]
	UserInfo    Optional[map[string]any]
	Attachments Optional[[]Attachment]
}

// DefaultPayload is the platform's blank content.
func DefaultPayload() Payload { return Payload{} }

// Builder merges Fields onto a set of defaults.
type Builder struct {
	defaults Payload
}

func NewBuilder(defaults Payload) *Builder {
	return &Builder{defaults: clonePayload(defaults)}
}

var defaultBuilder = NewBuilder(DefaultPayload())

// Build assembles a payload on top of DefaultPayload.
func Build(title string, f Fields) Payload { return defaultBuilder.Build(title, f) }

func (b *Builder) Build(title string, f Fields) Payload {
	p := clonePayload(b.defaults)
	p.Title = title
	p.Subtitle = f.Subtitle
	p.Body = f.Body
	p.Badge = f.Badge

	p.Category = f.Category.OrElse(p.Category)
	p.Thread = f.Thread.OrElse(p.Thread)
	p.LaunchImage = f.LaunchImage.OrElse(p.LaunchImage)
	p.Sound = f.Sound.OrElse(p.Sound)
	if v, ok := f.UserInfo.Get(); ok {
		p.UserInfo = maps.Clone(v)
	}
	if v, ok := f.Attachments.Get(); ok {
		p.Attachments = slices.Clone(v)
	}
	return p
}

func clonePayload(p Payload) Payload {
	p.UserInfo = maps.Clone(p.UserInfo)
	p.Attachments = slices.Clone(p.Attachments)
	return p
}
