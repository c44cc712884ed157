// Package relay renders the popup page that hands an OAuth outcome to the CMS window
// through window.postMessage and then closes itself.
package relay

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"io"

	"github.com/cmsrelay/internal/constants"
	"github.com/cmsrelay/internal/domain"
)

// TemplateName is the name the page is registered under in the gin engine
const TemplateName = "relay.html"

// handshakeMessage is the legacy ping the opener answers before it accepts a result
const handshakeMessage = "authorizing:github"

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="referrer" content="no-referrer">
<title>{{.Title}}</title>
</head>
<body>
<p id="status">{{.Status}}</p>
<script nonce="{{.Nonce}}">
(function () {
  var message = {{.Message}};
  var targetOrigin = {{.TargetOrigin}};
  if (!window.opener) {
    return;
  }
  function send() {
    window.opener.postMessage(message, targetOrigin);
    setTimeout(function () { window.close(); }, 100);
  }
{{- if .Handshake}}
  window.addEventListener("message", function (event) {
    if (event.source !== window.opener || event.data !== {{.HandshakeMessage}}) {
      return;
    }
    if (targetOrigin !== "*" && event.origin !== targetOrigin) {
      return;
    }
    send();
  }, false);
  window.opener.postMessage({{.HandshakeMessage}}, targetOrigin);
{{- else}}
  send();
{{- end}}
})();
</script>
</body>
</html>
`

var pageTmpl = template.Must(template.New(TemplateName).Parse(pageTemplate))

// Template returns the parsed page template for gin's SetHTMLTemplate
func Template() *template.Template {
	return pageTmpl
}

// Page is the template data of one relay page
type Page struct {
	Title            string
	Status           string
	Nonce            string
	Message          any
	TargetOrigin     string
	Handshake        bool
	HandshakeMessage string
}

type successMessage struct {
	Type     string                `json:"type"`
	Provider string                `json:"provider"`
	Response *domain.TokenResponse `json:"response"`
}

type legacyPayload struct {
	Token    string `json:"token"`
	Provider string `json:"provider"`
}

type errorMessage struct {
	Source           string `json:"source"`
	Type             string `json:"type"`
	Provider         string `json:"provider"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

type handBackMessage struct {
	Source string `json:"source"`
	Code   string `json:"code"`
	State  string `json:"state"`
}

// NewPage builds the page for msg with a fresh script nonce
func NewPage(msg *domain.RelayMessage) (*Page, error) {
	nonce, err := NewNonce()
	if err != nil {
		return nil, err
	}

	target := msg.TargetOrigin
	if target == "" {
		target = constants.WildcardOrigin
	}

	page := &Page{
		Nonce:            nonce,
		TargetOrigin:     target,
		HandshakeMessage: handshakeMessage,
	}

	switch msg.Kind {
	case domain.MessageSuccess:
		page.Title = "Authorization complete"
		page.Status = "Authentication complete. You can close this window."
		if msg.Legacy {
			legacy, err := LegacySuccess(msg.Token)
			if err != nil {
				return nil, err
			}
			page.Message = legacy
			page.Handshake = true
		} else {
			page.Message = successMessage{
				Type:     constants.MessageTypeSuccess,
				Provider: constants.Provider,
				Response: msg.Token,
			}
		}
	case domain.MessageHandBack:
		page.Title = "Authorization in progress"
		page.Status = "Finishing sign-in in the CMS window. You can close this window."
		page.Message = handBackMessage{
			Source: constants.MessageSource,
			Code:   msg.Code,
			State:  msg.State,
		}
	default:
		page.Title = "Authorization failed"
		page.Status = fmt.Sprintf("Authentication failed: %s. Close this window and try again.", msg.Error)
		page.Message = errorMessage{
			Source:           constants.MessageSource,
			Type:             constants.MessageTypeError,
			Provider:         constants.Provider,
			Error:            msg.Error,
			ErrorDescription: msg.ErrorDescription,
		}
	}

	return page, nil
}

// LegacySuccess returns the string form older CMS builds listen for
func LegacySuccess(tok *domain.TokenResponse) (string, error) {
	if tok == nil {
		return "", fmt.Errorf("legacy success message needs a token")
	}
	payload, err := json.Marshal(legacyPayload{Token: tok.AccessToken, Provider: constants.Provider})
	if err != nil {
		return "", fmt.Errorf("marshal legacy payload: %w", err)
	}
	return constants.MessageTypeSuccess + ":" + string(payload), nil
}

// ContentSecurityPolicy allows only the page's own nonce-tagged script
func (p *Page) ContentSecurityPolicy() string {
	return fmt.Sprintf("default-src 'none'; script-src 'nonce-%s'; base-uri 'none'; form-action 'none'; frame-ancestors 'none'", p.Nonce)
}

// Render writes the page without going through gin
func Render(w io.Writer, page *Page) error {
	return pageTmpl.ExecuteTemplate(w, TemplateName, page)
}

// NewNonce returns 16 random bytes, base64 encoded
func NewNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
