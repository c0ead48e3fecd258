package template

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/repairhub/notify/internal/model"
	"github.com/repairhub/notify/internal/repository"
	apperrors "github.com/repairhub/notify/pkg/errors"
)

const (
	cacheTTL     = 5 * time.Minute
	cacheCleanup = 10 * time.Minute
)

// Resolver looks up templates by name and renders notification content from
// a validated context. Lookups go through an in-process cache so the hot
// path stays O(1); rendering is pure, identical input always renders
// identical output.
type Resolver struct {
	repo  repository.TemplateRepository
	cache *gocache.Cache
}

func NewResolver(repo repository.TemplateRepository) *Resolver {
	return &Resolver{
		repo:  repo,
		cache: gocache.New(cacheTTL, cacheCleanup),
	}
}

// Rendered holds the always-rendered title/message plus everything needed to
// render per-channel content lazily, only for channels actually selected.
type Rendered struct {
	Template *model.NotificationTemplate
	Title    string
	Message  string

	vars map[string]string
}

// Resolve fetches the named template, validates the context against its
// required keys and renders title and message. It fails closed: any error
// here means no notification is created.
func (r *Resolver) Resolve(ctx context.Context, name string, tctx model.TemplateContext) (*Rendered, error) {
	tmpl, err := r.lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, apperrors.NewTemplateNotFound(name)
	}
	if !tmpl.Active {
		return nil, apperrors.NewTemplateInactive(name)
	}

	if missing := tctx.MissingKeys(tmpl.RequiredContext); len(missing) > 0 {
		return nil, apperrors.NewMissingContext(name, missing)
	}

	vars := make(map[string]string, len(tctx))
	for key, value := range tctx {
		vars[key] = value.Render()
	}

	title, err := render(name+":title", tmpl.TitleTemplate, vars)
	if err != nil {
		return nil, err
	}
	message, err := render(name+":message", tmpl.MessageTemplate, vars)
	if err != nil {
		return nil, err
	}

	return &Rendered{
		Template: tmpl,
		Title:    title,
		Message:  message,
		vars:     vars,
	}, nil
}

// EmailContent renders the email subject and body for an already-resolved
// template. Falls back to title/message when the template defines none.
func (rd *Rendered) EmailContent() (subject, body string, err error) {
	subject = rd.Title
	if rd.Template.EmailSubject != "" {
		subject, err = render(rd.Template.Name+":email_subject", rd.Template.EmailSubject, rd.vars)
		if err != nil {
			return "", "", err
		}
	}
	body = rd.Message
	if rd.Template.EmailBody != "" {
		body, err = render(rd.Template.Name+":email_body", rd.Template.EmailBody, rd.vars)
		if err != nil {
			return "", "", err
		}
	}
	return subject, body, nil
}

// SMSContent renders the SMS text, falling back to the message. Length
// truncation belongs to the SMS transport, not here.
func (rd *Rendered) SMSContent() (string, error) {
	if rd.Template.SMSBody == "" {
		return rd.Message, nil
	}
	return render(rd.Template.Name+":sms_body", rd.Template.SMSBody, rd.vars)
}

func (r *Resolver) lookup(ctx context.Context, name string) (*model.NotificationTemplate, error) {
	if cached, ok := r.cache.Get(name); ok {
		return cached.(*model.NotificationTemplate), nil
	}

	tmpl, err := r.repo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if tmpl != nil {
		r.cache.Set(name, tmpl, gocache.DefaultExpiration)
	}
	return tmpl, nil
}

// Invalidate drops a template from the cache, for when operators update
// template content and want it picked up before the TTL.
func (r *Resolver) Invalidate(name string) {
	r.cache.Delete(name)
}

func render(name, text string, vars map[string]string) (string, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.String(), nil
}
