// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package mail

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neighborly/neighborly/pkg/errutil"
)

func TestDefaultTemplates_CoverEveryNotification(t *testing.T) {
	ts, err := defaultTemplates()
	require.NoError(t, err)

	for _, name := range []string{
		TemplatePasswordRecoverCode,
		TemplatePasswordChanged,
		TemplateAccountCreated,
		TemplateAccountConfirmed,
	} {
		t.Run(name, func(t *testing.T) {
			subject, body, err := ts.render(name, templateData{SiteName: "Neighborly", Email: "a@example.com"})
			require.NoError(t, err)
			assert.NotEmpty(t, subject)
			assert.NotContains(t, subject, "\n")
			assert.Contains(t, string(body), "Hello a@example.com")
		})
	}
}

func TestRender_EscapesUserInput(t *testing.T) {
	ts, err := defaultTemplates()
	require.NoError(t, err)

	_, body, err := ts.render(TemplatePasswordRecoverCode, templateData{
		SiteName: "Neighborly",
		Email:    "<script>@example.com",
		Code:     "<b>x</b>",
	})
	require.NoError(t, err)
	assert.NotContains(t, string(body), "<script>")
	assert.NotContains(t, string(body), "<b>x</b>")
}

func TestRender_SubjectIsUnescaped(t *testing.T) {
	ts, err := defaultTemplates()
	require.NoError(t, err)

	subject, _, err := ts.render(TemplateAccountConfirmed, templateData{SiteName: "Tom & Jerry"})
	require.NoError(t, err)
	assert.Equal(t, "Your Tom & Jerry email address is confirmed", subject)
}

func TestRender_UnknownTemplate(t *testing.T) {
	ts, err := defaultTemplates()
	require.NoError(t, err)

	_, _, err = ts.render("nope", templateData{})
	errutil.AssertErrorCode(t, err, "MAIL_TEMPLATE_UNKNOWN")
}

func TestLoadTemplates_RejectsBrokenMessage(t *testing.T) {
	fsys := fstest.MapFS{
		"base.tmpl.html":            {Data: []byte(`{{define "base"}}{{template "body" .}}{{end}}`)},
		"messages/broken.tmpl.html": {Data: []byte(`{{define "body"}}{{.Code{{end}}`)},
	}
	_, err := loadTemplates(fsys)
	require.Error(t, err)
	errutil.AssertErrorContext(t, err, "template", "broken")
}
