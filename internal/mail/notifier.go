package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	texttemplate "text/template"
)

const (
	resetSubject = "Redefinição de senha"
	resetPath    = "/redefinir-senha"
)

// Notifier delivers out-of-band messages to users.
type Notifier interface {
	SendPasswordReset(ctx context.Context, to string, resetURL string) error
}

// ResetLink builds the frontend link carrying the raw reset token.
func ResetLink(frontendURL string, rawToken string) string {
	return strings.TrimRight(frontendURL, "/") + resetPath + "?token=" + url.QueryEscape(rawToken)
}

type resetData struct {
	ResetURL string
}

var resetHTML = template.Must(template.New("reset.html").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h1 style="color: #333;">Redefinição de Senha</h1>
  <p>Você solicitou a redefinição da sua senha.</p>
  <p>Clique no botão abaixo para criar uma nova senha:</p>
  <a href="{{.ResetURL}}" style="display: inline-block; background-color: #007bff; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; margin: 20px 0;">Redefinir Senha</a>
  <p style="color: #666;">Se você não solicitou esta redefinição, ignore este e-mail.</p>
  <p style="color: #666;">Este link expira em 1 hora.</p>
  <hr style="border: none; border-top: 1px solid #eee; margin: 20px 0;">
  <p style="color: #666; font-size: 12px;">
    Se o botão não funcionar, copie e cole este link no navegador:<br>
    <a href="{{.ResetURL}}">{{.ResetURL}}</a>
  </p>
</div>
`))

var resetText = texttemplate.Must(texttemplate.New("reset.txt").Parse(`Redefinição de Senha

Você solicitou a redefinição da sua senha.
Abra o link abaixo para criar uma nova senha (expira em 1 hora):

{{.ResetURL}}

Se você não solicitou esta redefinição, ignore este e-mail.
`))

func renderPasswordReset(resetURL string) (html string, text string, err error) {
	data := resetData{ResetURL: resetURL}

	var htmlBuf, textBuf bytes.Buffer
	if err := resetHTML.Execute(&htmlBuf, data); err != nil {
		return "", "", fmt.Errorf("render reset html: %w", err)
	}
	if err := resetText.Execute(&textBuf, data); err != nil {
		return "", "", fmt.Errorf("render reset text: %w", err)
	}

	return htmlBuf.String(), textBuf.String(), nil
}

// maskLink hides the token query value so the link can be logged.
func maskLink(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return "[unparseable link]"
	}

	q := u.Query()
	if token := q.Get("token"); token != "" {
		keep := min(4, len(token))
		q.Set("token", token[:keep]+"...")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
