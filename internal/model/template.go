package model

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// NotificationTemplate is a named, versionable content definition. Templates
// are referenced by name (not foreign key) so they can evolve independently
// of the notifications rendered from them.
type NotificationTemplate struct {
	ID              uuid.UUID      `db:"id" json:"id"`
	Name            string         `db:"name" json:"name"`
	Category        Category       `db:"category" json:"category"`
	DefaultPriority Priority       `db:"default_priority" json:"default_priority"`
	TitleTemplate   string         `db:"title_template" json:"title_template"`
	MessageTemplate string         `db:"message_template" json:"message_template"`
	EmailSubject    string         `db:"email_subject" json:"email_subject"`
	EmailBody       string         `db:"email_body" json:"email_body"`
	SMSBody         string         `db:"sms_body" json:"sms_body"`
	RequiredContext pq.StringArray `db:"required_context" json:"required_context"`
	Active          bool           `db:"active" json:"active"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

type ContextKind int

const (
	ContextString ContextKind = iota
	ContextNumber
	ContextTimestamp
	ContextEntity
)

// ContextValue is one renderable value in a template context. The closed set
// of kinds keeps template input validated up front instead of failing at
// send time with whatever an arbitrary interface{} stringifies to.
type ContextValue struct {
	Kind   ContextKind
	Str    string
	Num    float64
	Time   time.Time
	Entity map[string]string
}

func StringValue(s string) ContextValue {
	return ContextValue{Kind: ContextString, Str: s}
}

func NumberValue(n float64) ContextValue {
	return ContextValue{Kind: ContextNumber, Num: n}
}

func TimestampValue(t time.Time) ContextValue {
	return ContextValue{Kind: ContextTimestamp, Time: t}
}

// EntityValue snapshots a related entity's display fields, e.g.
// {"id": "...", "device": "iPhone 12"} for a repair.
func EntityValue(fields map[string]string) ContextValue {
	return ContextValue{Kind: ContextEntity, Entity: fields}
}

// Render produces the template-facing representation of the value.
// Rendering is deterministic: identical values always produce identical text.
func (v ContextValue) Render() string {
	switch v.Kind {
	case ContextNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case ContextTimestamp:
		return v.Time.Format(time.RFC3339)
	case ContextEntity:
		if name, ok := v.Entity["name"]; ok {
			return name
		}
		return fmt.Sprintf("%v", v.Entity)
	default:
		return v.Str
	}
}

// TemplateContext is the validated key/value input to template rendering.
type TemplateContext map[string]ContextValue

// MissingKeys returns required keys absent from the context, in the order
// they appear in required.
func (c TemplateContext) MissingKeys(required []string) []string {
	var missing []string
	for _, key := range required {
		if _, ok := c[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}
