package raven_transport

import (
	"bytes"
	"compress/gzip"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// maxResponseBody bounds how much of a collector response is kept for logging
const maxResponseBody = 64 << 10

// Transport performs asynchronous POSTs. Post returns immediately and calls
// done exactly once, from any goroutine, with the outcome of the operation.
type Transport interface {
	Post(url string, header http.Header, body []byte, done func(Outcome))
	Close() error
}

// CertificateHook is consulted when the collector certificate fails
// verification. Returning true accepts the connection anyway.
type CertificateHook func(host string, err error) bool

// HTTPTransport handles HTTP communication with the collector
type HTTPTransport struct {
	config *TransportConfig
	client *http.Client
	logger *zap.Logger
	onCert CertificateHook
}

// NewHTTPTransport creates a new HTTP transport
func NewHTTPTransport(config *TransportConfig, logger *zap.Logger, onCert CertificateHook) (*HTTPTransport, error) {
	t := &HTTPTransport{
		config: config,
		logger: logger,
		onCert: onCert,
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   config.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			// chain verification happens in verifyConnection so the hook can overrule it
			InsecureSkipVerify: true, //nolint:gosec
			VerifyConnection:   t.verifyConnection,
		},
	}

	// Configure proxy if specified
	if config.Proxy != "" {
		proxyURL, err := url.Parse(config.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	t.client = &http.Client{
		Transport: transport,
		Timeout:   config.Timeout,
		// redirects are replayed by the dispatcher so it can keep the original body
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return t, nil
}

// Post implements Transport
func (t *HTTPTransport) Post(target string, header http.Header, body []byte, done func(Outcome)) {
	go func() {
		done(t.send(target, header, body))
	}()
}

func (t *HTTPTransport) send(target string, header http.Header, body []byte) Outcome {
	req, err := t.createRequest(target, header, body)
	if err != nil {
		return Outcome{Kind: OutcomeFailure, Err: err}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return Outcome{Kind: OutcomeFailure, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		t.logger.Warn("Failed to read response body",
			zap.String("url", target),
			zap.Error(err))
	}

	if isRedirect(resp.StatusCode) {
		if loc, err := resp.Location(); err == nil && loc.String() != target {
			return Outcome{
				Kind:       OutcomeRedirected,
				Location:   loc.String(),
				StatusCode: resp.StatusCode,
				Body:       respBody,
			}
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Outcome{Kind: OutcomeSuccess, StatusCode: resp.StatusCode, Body: respBody}
	}

	return Outcome{
		Kind:       OutcomeFailure,
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Err:        fmt.Errorf("HTTP %d", resp.StatusCode),
	}
}

// createRequest creates an HTTP request for the payload
func (t *HTTPTransport) createRequest(target string, header http.Header, body []byte) (*http.Request, error) {
	var reader io.Reader = bytes.NewReader(body)
	header = header.Clone()

	if t.config.Compression {
		var buf bytes.Buffer
		gzipWriter := gzip.NewWriter(&buf)
		if _, err := gzipWriter.Write(body); err != nil {
			return nil, fmt.Errorf("failed to compress payload: %w", err)
		}
		if err := gzipWriter.Close(); err != nil {
			return nil, fmt.Errorf("failed to close gzip writer: %w", err)
		}
		reader = &buf
		header.Set("Content-Encoding", "gzip")
	}

	req, err := http.NewRequest(http.MethodPost, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = header

	return req, nil
}

// verifyConnection runs standard chain and host verification and lets the
// certificate hook decide what to do with a failure.
func (t *HTTPTransport) verifyConnection(cs tls.ConnectionState) error {
	if len(cs.PeerCertificates) == 0 {
		return errors.New("collector presented no certificate")
	}

	opts := x509.VerifyOptions{
		DNSName:       cs.ServerName,
		Intermediates: x509.NewCertPool(),
	}
	for _, cert := range cs.PeerCertificates[1:] {
		opts.Intermediates.AddCert(cert)
	}

	_, err := cs.PeerCertificates[0].Verify(opts)
	if err == nil {
		return nil
	}

	if t.onCert != nil && t.onCert(cs.ServerName, err) {
		return nil
	}

	return err
}

// Close closes the transport. Operations still in flight are abandoned, not aborted.
func (t *HTTPTransport) Close() error {
	if t.client != nil {
		t.client.CloseIdleConnections()
	}
	return nil
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}
