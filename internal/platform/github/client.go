// Package github provides authenticated GitHub API clients.
package github

import (
	"fmt"
	"net/http"

	"github.com/bradleyfalzon/ghinstallation/v2"
	gogithub "github.com/google/go-github/v68/github"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Credentials selects how the client authenticates. A token wins over App
// credentials; with neither the client is anonymous.
type Credentials struct {
	Token          string
	AppID          int64
	InstallationID int64
	PrivateKeyPEM  string
}

// NewClient creates a GitHub API client. App installation tokens are renewed
// by the ghinstallation transport. Outgoing requests are traced.
func NewClient(creds Credentials) (*gogithub.Client, error) {
	base := otelhttp.NewTransport(http.DefaultTransport)

	switch {
	case creds.Token != "":
		return gogithub.NewClient(&http.Client{Transport: base}).WithAuthToken(creds.Token), nil
	case creds.AppID != 0:
		if creds.InstallationID == 0 || creds.PrivateKeyPEM == "" {
			return nil, fmt.Errorf("github app %d needs an installation id and a private key", creds.AppID)
		}
		transport, err := ghinstallation.New(base, creds.AppID, creds.InstallationID, []byte(creds.PrivateKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("creating github installation transport: %w", err)
		}
		return gogithub.NewClient(&http.Client{Transport: transport}), nil
	default:
		return gogithub.NewClient(&http.Client{Transport: base}), nil
	}
}
