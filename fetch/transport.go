package fetch

// import
import (
	"context"
	"crypto/tls"
	"net/http"
	"net/url"
	"time"
)

// NewClient returns the http client used for source downloads. A zero
// timeout means no overall deadline beyond the request context.
func NewClient(timeout time.Duration) *http.Client {
	client := getClient(getTransport(getTlsConf()))
	client.Timeout = timeout
	return client
}

// getTlsConf ...
func getTlsConf() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify:     false,
		SessionTicketsDisabled: true,
		Renegotiation:          tls.RenegotiateNever,
		MinVersion:             tls.VersionTLS12,
	}
}

// getTransport ...
func getTransport(tlsconf *tls.Config) *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     tlsconf,
		DisableCompression:  true, // pre-compressed file downloads
		ForceAttemptHTTP2:   false,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// getClient ...
func getClient(transport *http.Transport) *http.Client {
	return &http.Client{
		CheckRedirect: nil,
		Jar:           nil,
		Transport:     transport,
	}
}

// getRequest ...
func getRequest(ctx context.Context, targetURL, userAgent string) (*http.Request, error) {
	if _, err := url.Parse(targetURL); err != nil {
		return nil, err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, err
	}
	if userAgent == "" {
		userAgent = _DEFAULT_USERAGENT
	}
	request.Header.Set("User-Agent", userAgent)
	return request, nil
}
