package tls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/kodespace/types"
)

const (
	defaultCacheDir = "./certs"
	renewBefore     = 30 * 24 * time.Hour
)

var cipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
}

// CertManager serves certificates either from a key pair on disk or from
// ACME via autocert. File certificates are reloaded by the renewal monitor
// so rotated files are picked up without a restart.
type CertManager struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	config          *types.TLSConfig
	autocertMgr     *autocert.Manager
	mu              sync.RWMutex
	certificates    map[string]*tls.Certificate
	fileCert        *tls.Certificate
	state           atomic.Value
	monitorDone     chan struct{}
	now             func() time.Time
	renewalInterval time.Duration
}

type Option func(*CertManager)

func WithRenewalInterval(interval time.Duration) Option {
	return func(cm *CertManager) {
		cm.renewalInterval = interval
	}
}

func WithClock(now func() time.Time) Option {
	return func(cm *CertManager) {
		cm.now = now
	}
}

func NewCertManager(ctx context.Context, logger types.Logger, config types.ConfigManager, opts ...Option) (*CertManager, error) {
	serverConfig := config.GetConfig().Server
	if serverConfig == nil || serverConfig.TLS == nil {
		return nil, types.Errorf(types.ErrConfigIsNil, "server.tls")
	}

	tlsConfig := serverConfig.TLS
	if err := validateConfig(tlsConfig); err != nil {
		return nil, err
	}

	managerCtx, cancel := context.WithCancel(ctx)

	cm := &CertManager{
		ctx:             managerCtx,
		cancel:          cancel,
		logger:          logger,
		config:          tlsConfig,
		certificates:    make(map[string]*tls.Certificate),
		now:             time.Now,
		renewalInterval: 12 * time.Hour,
	}

	for _, opt := range opts {
		opt(cm)
	}

	cm.state.Store(types.StateStopped)

	if tlsConfig.AutoCert {
		if err := cm.initializeAutocert(); err != nil {
			cancel()
			return nil, types.WrapError(err, "failed to initialize autocert manager")
		}
	}

	return cm, nil
}

func validateConfig(config *types.TLSConfig) error {
	if config.AutoCert {
		if len(config.Domains) == 0 {
			return types.Errorf(types.ErrTLSConfigInvalid, "auto_cert requires at least one domain")
		}
		for _, domain := range config.Domains {
			if domain == "" {
				return types.Errorf(types.ErrTLSConfigInvalid, "empty domain name")
			}
		}
		return nil
	}

	if config.CertFile == "" || config.KeyFile == "" {
		return types.Errorf(types.ErrTLSConfigInvalid, "cert_file and key_file are required without auto_cert")
	}

	return nil
}

func (cm *CertManager) initializeAutocert() error {
	cacheDir := cm.config.CacheDir
	if cacheDir == "" {
		cacheDir = defaultCacheDir
	}

	if err := os.MkdirAll(cacheDir, 0700); err != nil {
		return types.WrapError(err, "failed to create certificate cache directory")
	}

	cm.autocertMgr = &autocert.Manager{
		Cache:       autocert.DirCache(cacheDir),
		Prompt:      autocert.AcceptTOS,
		HostPolicy:  autocert.HostWhitelist(cm.config.Domains...),
		Email:       cm.config.Email,
		RenewBefore: renewBefore,
	}

	if cm.config.ACMEDirectory != "" {
		cm.autocertMgr.Client = &acme.Client{
			DirectoryURL: cm.config.ACMEDirectory,
		}
	}

	return nil
}

// Serve opens a TLS listener on addr. The manager must be running.
func (cm *CertManager) Serve(addr string) (net.Listener, error) {
	if !cm.IsRunning() {
		return nil, types.ErrServerNotRunning
	}

	ln, err := tls.Listen("tcp", addr, cm.GetTLSConfig())
	if err != nil {
		return nil, types.WrapError(err, "failed to create TLS listener")
	}

	return ln, nil
}

func (cm *CertManager) GetTLSConfig() *tls.Config {
	config := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		CipherSuites: cipherSuites,
		NextProtos:   []string{"http/1.1"},
	}

	if cm.autocertMgr != nil {
		// tls-alpn-01 challenges arrive on the TLS listener itself.
		config.NextProtos = append(config.NextProtos, acme.ALPNProto)
		config.GetCertificate = cm.logCertificateErrors(cm.autocertMgr.GetCertificate)
		return config
	}

	config.GetCertificate = cm.logCertificateErrors(func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		cm.mu.RLock()
		defer cm.mu.RUnlock()

		if cm.fileCert == nil {
			return nil, types.Errorf(types.ErrTLSConfigInvalid, "certificate not loaded")
		}
		return cm.fileCert, nil
	})

	return config
}

func (cm *CertManager) logCertificateErrors(getCert func(*tls.ClientHelloInfo) (*tls.Certificate, error)) func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
		cert, err := getCert(hello)
		if err != nil {
			cm.logger.Error("Failed to get certificate",
				zap.String("server_name", hello.ServerName),
				zap.Error(err))
			return nil, err
		}
		return cert, nil
	}
}

func (cm *CertManager) Start() error {
	if !cm.transitionState(types.StateStopped, types.StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	if cm.autocertMgr != nil {
		cm.preloadCertificates()
	} else if err := cm.loadFileCertificate(); err != nil {
		cm.setState(types.StateStopped)
		return err
	}

	cm.monitorDone = make(chan struct{})
	go cm.renewalMonitor(cm.monitorDone)

	cm.setState(types.StateRunning)

	cm.logger.Info("TLS certificate manager started",
		zap.Bool("auto_cert", cm.config.AutoCert),
		zap.Strings("domains", cm.Domains()))

	return nil
}

func (cm *CertManager) Stop() error {
	if !cm.transitionState(types.StateRunning, types.StateStopping) {
		return types.ErrServerNotRunning
	}

	defer cm.setState(types.StateStopped)

	cm.cancel()
	<-cm.monitorDone

	cm.logger.Info("TLS certificate manager stopped")
	return nil
}

func (cm *CertManager) IsRunning() bool {
	return cm.getState() == types.StateRunning
}

func (cm *CertManager) getState() types.State {
	return cm.state.Load().(types.State)
}

func (cm *CertManager) setState(newState types.State) {
	cm.state.Store(newState)
}

func (cm *CertManager) transitionState(from, to types.State) bool {
	return cm.state.CompareAndSwap(from, to)
}

// Domains lists the names the loaded certificates cover.
func (cm *CertManager) Domains() []string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	domains := make([]string, 0, len(cm.certificates))
	for domain := range cm.certificates {
		domains = append(domains, domain)
	}
	sort.Strings(domains)
	return domains
}

func (cm *CertManager) loadFileCertificate() error {
	cert, err := tls.LoadX509KeyPair(cm.config.CertFile, cm.config.KeyFile)
	if err != nil {
		return types.Errorf(types.ErrTLSConfigInvalid, "load key pair: %v", err)
	}

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return types.Errorf(types.ErrTLSConfigInvalid, "parse certificate: %v", err)
	}

	now := cm.now()
	if now.Before(leaf.NotBefore) {
		return types.Errorf(types.ErrTLSConfigInvalid, "certificate not yet valid")
	}
	if now.After(leaf.NotAfter) {
		return types.Errorf(types.ErrTLSConfigInvalid, "certificate expired")
	}

	cert.Leaf = leaf

	names := leaf.DNSNames
	if len(names) == 0 {
		names = []string{leaf.Subject.CommonName}
	}

	cm.mu.Lock()
	cm.fileCert = &cert
	cm.certificates = make(map[string]*tls.Certificate, len(names))
	for _, name := range names {
		cm.certificates[name] = &cert
	}
	cm.mu.Unlock()

	return nil
}

func (cm *CertManager) preloadCertificates() {
	ctx, cancel := context.WithTimeout(cm.ctx, time.Minute)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	for _, domain := range cm.config.Domains {
		g.Go(func() error {
			if gCtx.Err() != nil {
				return gCtx.Err()
			}

			cert, err := cm.autocertMgr.GetCertificate(&tls.ClientHelloInfo{ServerName: domain})
			if err != nil {
				cm.logger.Warn("Failed to preload certificate",
					zap.String("domain", domain),
					zap.Error(err))
				return nil
			}

			cm.mu.Lock()
			cm.certificates[domain] = cert
			cm.mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		cm.logger.Warn("Certificate preloading interrupted", zap.Error(err))
	}
}

func (cm *CertManager) renewalMonitor(done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(cm.renewalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cm.refresh()
		case <-cm.ctx.Done():
			return
		}
	}
}

func (cm *CertManager) refresh() {
	if cm.autocertMgr != nil {
		// autocert renews on access within RenewBefore.
		cm.preloadCertificates()
		return
	}

	if err := cm.loadFileCertificate(); err != nil {
		cm.logger.Error("Failed to reload certificate files", zap.Error(err))
	}
}

// CertificateStatus describes the certificate served for one domain.
type CertificateStatus struct {
	Domain          string    `json:"domain"`
	Status          string    `json:"status"`
	Issuer          string    `json:"issuer,omitempty"`
	Subject         string    `json:"subject,omitempty"`
	NotBefore       time.Time `json:"not_before,omitempty"`
	NotAfter        time.Time `json:"not_after,omitempty"`
	DaysUntilExpiry int       `json:"days_until_expiry,omitempty"`
	Error           string    `json:"error,omitempty"`
}

func (cm *CertManager) GetCertificateStatus() map[string]CertificateStatus {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	now := cm.now()
	status := make(map[string]CertificateStatus, len(cm.certificates))

	for domain, cert := range cm.certificates {
		status[domain] = certificateStatus(domain, cert, now)
	}

	return status
}

func certificateStatus(domain string, cert *tls.Certificate, now time.Time) CertificateStatus {
	if len(cert.Certificate) == 0 {
		return CertificateStatus{Domain: domain, Status: "error", Error: "no certificate data"}
	}

	leaf := cert.Leaf
	if leaf == nil {
		parsed, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return CertificateStatus{Domain: domain, Status: "error", Error: err.Error()}
		}
		leaf = parsed
	}

	days := int(leaf.NotAfter.Sub(now).Hours() / 24)

	result := "valid"
	switch {
	case !now.Before(leaf.NotAfter):
		result = "expired"
	case leaf.NotAfter.Sub(now) <= renewBefore:
		result = "expiring_soon"
	}

	return CertificateStatus{
		Domain:          domain,
		Status:          result,
		Issuer:          leaf.Issuer.String(),
		Subject:         leaf.Subject.String(),
		NotBefore:       leaf.NotBefore,
		NotAfter:        leaf.NotAfter,
		DaysUntilExpiry: days,
	}
}
