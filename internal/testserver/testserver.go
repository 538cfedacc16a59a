// Package testserver runs a fully wired CredTrust API in-process, backed by
// memory stores, the local HS256 signer and a stub IPFS gateway.
package testserver

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"credtrust/internal/contentstore"
	credhandler "credtrust/internal/credential/handler"
	credservice "credtrust/internal/credential/service"
	credstore "credtrust/internal/credential/store"
	"credtrust/internal/events"
	"credtrust/internal/platform/health"
	"credtrust/internal/platform/metrics"
	"credtrust/internal/platform/upstream"
	presenthandler "credtrust/internal/presentation/handler"
	presentservice "credtrust/internal/presentation/service"
	"credtrust/internal/signer/local"
	httptransport "credtrust/internal/transport/http"
	tfhandler "credtrust/internal/twofactor/handler"
	tfservice "credtrust/internal/twofactor/service"
	tfstore "credtrust/internal/twofactor/store"
	"credtrust/internal/twofactor/totp"
	verifyhandler "credtrust/internal/verification/handler"
	verifyservice "credtrust/internal/verification/service"
	"credtrust/pkg/platform/middleware/request"
)

const (
	APIKey     = "test-api-key"
	SigningKey = "test-signing-key"
	IssuerID   = "did:example:university"
)

type options struct {
	allowUnprotected bool
	backupCodes      int
	logger           *slog.Logger
}

type Option func(*options)

// WithUnprotectedRevocation controls whether revocation works before 2FA is enabled.
func WithUnprotectedRevocation(allow bool) Option {
	return func(o *options) {
		o.allowUnprotected = allow
	}
}

func WithBackupCodeCount(n int) Option {
	return func(o *options) {
		o.backupCodes = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Server is a running API plus handles on its collaborators.
type Server struct {
	URL         string
	Events      *events.MemorySink
	Credentials *credstore.InMemoryStore
	Registry    *prometheus.Registry

	api     *httptest.Server
	gateway *httptest.Server
	mu      sync.RWMutex
	blobs   map[string][]byte
}

// New starts the API and the stub gateway. Callers must Close it.
func New(opts ...Option) *Server {
	o := options{allowUnprotected: true, backupCodes: 10, logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		Events:      events.NewMemorySink(),
		Credentials: credstore.NewInMemoryStore(),
		Registry:    prometheus.NewRegistry(),
		blobs:       make(map[string][]byte),
	}
	s.gateway = httptest.NewServer(http.HandlerFunc(s.serveBlob))

	m := metrics.New(s.Registry)
	publisher := events.NewPublisher(s.Events)
	signer, err := local.New(SigningKey, IssuerID)
	if err != nil {
		panic(err)
	}

	twoFactor := tfservice.NewService(tfstore.NewInMemoryStore(),
		totp.NewGenerator("CredTrust", o.backupCodes),
		IssuerID,
		tfservice.WithLogger(o.logger),
		tfservice.WithMetrics(m),
		tfservice.WithPublisher(publisher),
		tfservice.WithUnprotectedRevocation(o.allowUnprotected),
	)
	credentials := credservice.NewService(s.Credentials, twoFactor, IssuerID,
		credservice.WithLogger(o.logger),
		credservice.WithMetrics(m),
		credservice.WithPublisher(publisher),
		credservice.WithSigner(signer),
	)
	content := contentstore.New(contentstore.Config{
		BaseURL: s.gateway.URL,
		Caller:  upstream.New("ipfs", upstream.WithRetries(0, 0), upstream.WithMetrics(m)),
	})
	verification := verifyservice.NewService(signer, s.Credentials,
		verifyservice.WithLogger(o.logger),
		verifyservice.WithMetrics(m),
		verifyservice.WithContentStore(content),
	)
	presentation := presentservice.NewService(credentials, signer,
		presentservice.WithLogger(o.logger),
		presentservice.WithMetrics(m),
		presentservice.WithPublisher(publisher),
	)

	router := httptransport.NewRouter(httptransport.Config{
		APIKeys:  []string{APIKey},
		Gatherer: s.Registry,
		Latency:  request.NewMetrics(s.Registry),
	}, o.logger, health.New("test"),
		credhandler.New(credentials, o.logger),
		tfhandler.New(twoFactor, o.logger),
		verifyhandler.New(verification, o.logger),
		presenthandler.New(presentation, o.logger),
	)
	s.api = httptest.NewServer(router)
	s.URL = s.api.URL
	return s
}

// PutContent pins blob under cid on the stub gateway.
func (s *Server) PutContent(cid string, blob []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[cid] = append([]byte(nil), blob...)
}

func (s *Server) serveBlob(w http.ResponseWriter, r *http.Request) {
	cid := strings.TrimPrefix(r.URL.Path, "/ipfs/")
	s.mu.RLock()
	blob, ok := s.blobs[cid]
	s.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write(blob)
}

func (s *Server) Close() {
	s.api.Close()
	s.gateway.Close()
}
