// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package mail

import (
	"bytes"
	"embed"
	"html"
	"html/template"
	"io/fs"
	"path"
	"strings"

	"github.com/samber/oops"
)

//go:embed templates
var templateFS embed.FS

// Template names, one per notification.
const (
	TemplatePasswordRecoverCode = "password_recover_code"
	TemplatePasswordChanged     = "password_changed"
	TemplateAccountCreated      = "account_created"
	TemplateAccountConfirmed    = "account_confirmed"
)

// templateData is the value every message template renders against.
type templateData struct {
	SiteName  string
	Email     string
	Code      string
	Link      string
	ValidDays int
}

type templates map[string]*template.Template

// loadTemplates parses every messages/*.tmpl.html on top of base.tmpl.html.
func loadTemplates(fsys fs.FS) (templates, error) {
	messages, err := fs.Glob(fsys, "messages/*.tmpl.html")
	if err != nil {
		return nil, oops.Code("MAIL_TEMPLATE_INVALID").Wrap(err)
	}

	out := make(templates, len(messages))
	for _, msg := range messages {
		name := strings.TrimSuffix(path.Base(msg), ".tmpl.html")
		t, err := template.New(name).ParseFS(fsys, "base.tmpl.html", msg)
		if err != nil {
			return nil, oops.Code("MAIL_TEMPLATE_INVALID").With("template", name).Wrap(err)
		}
		out[name] = t
	}
	return out, nil
}

// render returns the plain subject line and HTML body of a message.
func (ts templates) render(name string, data templateData) (subject string, body []byte, err error) {
	t, ok := ts[name]
	if !ok {
		return "", nil, oops.Code("MAIL_TEMPLATE_UNKNOWN").With("template", name).Errorf("no such mail template")
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "subject", data); err != nil {
		return "", nil, oops.Code("MAIL_RENDER_FAILED").With("template", name).Wrap(err)
	}
	subject = strings.TrimSpace(html.UnescapeString(buf.String()))

	buf.Reset()
	if err := t.ExecuteTemplate(&buf, "base", data); err != nil {
		return "", nil, oops.Code("MAIL_RENDER_FAILED").With("template", name).Wrap(err)
	}
	return subject, buf.Bytes(), nil
}

func defaultTemplates() (templates, error) {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, oops.Code("MAIL_TEMPLATE_INVALID").Wrap(err)
	}
	return loadTemplates(sub)
}
