package tls

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme"

	"github.com/saiset-co/kodespace/config"
	"github.com/saiset-co/kodespace/logger"
	"github.com/saiset-co/kodespace/types"
)

func writeKeyPair(t *testing.T, dir string, notBefore, notAfter time.Time) (string, string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0600))

	return certFile, keyFile
}

func newManager(t *testing.T, tlsConfig *types.TLSConfig, opts ...Option) (*CertManager, error) {
	t.Helper()

	cfg := config.NewLoader().Defaults()
	cfg.Server.TLS = tlsConfig

	return NewCertManager(context.Background(), logger.NewZapWrapper(zap.NewNop()), config.NewFromConfig(cfg), opts...)
}

func TestNewCertManager_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config *types.TLSConfig
	}{
		{name: "files missing", config: &types.TLSConfig{Enabled: true}},
		{name: "key missing", config: &types.TLSConfig{Enabled: true, CertFile: "cert.pem"}},
		{name: "autocert without domains", config: &types.TLSConfig{Enabled: true, AutoCert: true}},
		{name: "autocert empty domain", config: &types.TLSConfig{Enabled: true, AutoCert: true, Domains: []string{""}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newManager(t, tt.config)
			assert.ErrorIs(t, err, types.ErrTLSConfigInvalid)
		})
	}
}

func TestCertManager_FileCertificates(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	certFile, keyFile := writeKeyPair(t, dir, now.Add(-time.Hour), now.Add(90*24*time.Hour))

	manager, err := newManager(t, &types.TLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile})
	require.NoError(t, err)

	_, err = manager.Serve("127.0.0.1:0")
	assert.ErrorIs(t, err, types.ErrServerNotRunning)

	require.NoError(t, manager.Start())
	defer manager.Stop()

	assert.Equal(t, []string{"localhost"}, manager.Domains())

	status := manager.GetCertificateStatus()["localhost"]
	assert.Equal(t, "valid", status.Status)
	assert.Equal(t, 89, status.DaysUntilExpiry)

	check := manager.HealthCheck()(context.Background())
	assert.Equal(t, types.StatusHealthy, check.Status)

	ln, err := manager.Serve("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.(*tls.Conn).Handshake()
	}()

	conn, err := tls.Dial("tcp", ln.Addr().String(), &tls.Config{InsecureSkipVerify: true, ServerName: "localhost"})
	require.NoError(t, err)
	defer conn.Close()

	peer := conn.ConnectionState().PeerCertificates
	require.NotEmpty(t, peer)
	assert.Equal(t, "localhost", peer[0].Subject.CommonName)
}

func TestCertManager_ExpiringSoon(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	certFile, keyFile := writeKeyPair(t, dir, now.Add(-time.Hour), now.Add(10*24*time.Hour))

	manager, err := newManager(t, &types.TLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile})
	require.NoError(t, err)
	require.NoError(t, manager.Start())
	defer manager.Stop()

	assert.Equal(t, "expiring_soon", manager.GetCertificateStatus()["localhost"].Status)
	assert.Equal(t, types.StatusHealthy, manager.HealthCheck()(context.Background()).Status)
}

func TestCertManager_ExpiredCertificateRejected(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	certFile, keyFile := writeKeyPair(t, dir, now.Add(-48*time.Hour), now.Add(-24*time.Hour))

	manager, err := newManager(t, &types.TLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile})
	require.NoError(t, err)

	assert.ErrorIs(t, manager.Start(), types.ErrTLSConfigInvalid)
	assert.False(t, manager.IsRunning())
	assert.Equal(t, types.StatusUnhealthy, manager.HealthCheck()(context.Background()).Status)
}

func TestCertManager_ReloadsRotatedFiles(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	certFile, keyFile := writeKeyPair(t, dir, now.Add(-time.Hour), now.Add(10*24*time.Hour))

	manager, err := newManager(t, &types.TLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile})
	require.NoError(t, err)
	require.NoError(t, manager.Start())
	defer manager.Stop()

	writeKeyPair(t, dir, now.Add(-time.Hour), now.Add(200*24*time.Hour))
	manager.refresh()

	assert.Equal(t, "valid", manager.GetCertificateStatus()["localhost"].Status)
}

func TestCertManager_AutocertConfig(t *testing.T) {
	manager, err := newManager(t, &types.TLSConfig{
		Enabled:       true,
		AutoCert:      true,
		Domains:       []string{"kodespace.example.com"},
		CacheDir:      t.TempDir(),
		ACMEDirectory: "https://acme-staging-v02.api.letsencrypt.org/directory",
	})
	require.NoError(t, err)

	tlsConfig := manager.GetTLSConfig()
	assert.Contains(t, tlsConfig.NextProtos, acme.ALPNProto)
	assert.NotNil(t, tlsConfig.GetCertificate)
	assert.Equal(t, uint16(tls.VersionTLS12), tlsConfig.MinVersion)

	_, err = tlsConfig.GetCertificate(&tls.ClientHelloInfo{ServerName: "other.example.com"})
	assert.Error(t, err)
}
