package mailer

import (
	"bytes"
	"fmt"
	"html/template"
)

var welcomeHTML = template.Must(template.New(TemplateWelcome).Parse(`
<html><body>
<h2>Welcome to Codex</h2>
<p>An account was created for <strong>{{.Email}}</strong>.</p>
<p>You can now sign in with your email and password.</p>
</body></html>`))

var loginNotificationHTML = template.Must(template.New(TemplateLoginNotification).Parse(`
<html><body>
<h2>New login to your account</h2>
<p>Your account <strong>{{.Email}}</strong> was used to sign in at {{.Time}}.</p>
<p>If this was not you, change your password immediately.</p>
</body></html>`))

// Render produces subject and HTML body for a named template.
func Render(name string, data map[string]any) (subject, html string, err error) {
	var tpl *template.Template
	switch name {
	case TemplateWelcome:
		tpl = welcomeHTML
		subject = "Welcome to Codex"
	case TemplateLoginNotification:
		tpl = loginNotificationHTML
		subject = "New login to your account"
	default:
		return "", "", fmt.Errorf("unknown email template %q", name)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", "", err
	}
	return subject, buf.String(), nil
}
