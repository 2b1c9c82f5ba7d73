package tls

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jabberwocky238/netstream/common/errors"
	"github.com/jabberwocky238/netstream/common/log"
	"golang.org/x/crypto/pkcs12"
)

// Context owns the client configuration and key material for TLS sessions.
// NewContext either returns a complete Context or nothing.
type Context struct {
	mu       sync.Mutex
	config   *tls.Config
	keyPEM   []byte
	released bool
}

func NewContext(o *Options) (*Context, error) {
	config := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         o.ServerName,
		InsecureSkipVerify: o.InsecureSkipVerify,
	}

	c := &Context{config: config}
	cert, err := c.loadCertificate(o)
	if err != nil {
		c.Release()
		return nil, errors.Trace(err)
	}
	if cert != nil {
		config.Certificates = []tls.Certificate{*cert}
	}

	roots, err := loadRoots(o.CAFile, o.CADir)
	if err != nil {
		c.Release()
		return nil, errors.Trace(err)
	}
	config.RootCAs = roots
	return c, nil
}

func (c *Context) loadCertificate(o *Options) (*tls.Certificate, error) {
	if len(o.KeyMaterial) == 0 && o.KeyFile == "" {
		return nil, nil
	}

	if isPKCS12(o.KeyFile) {
		data, err := os.ReadFile(o.KeyFile)
		if err != nil {
			return nil, errors.Trace(err)
		}
		key, leaf, err := pkcs12.Decode(data, o.Password)
		if err != nil {
			return nil, errors.TraceMsg(err, o.KeyFile)
		}
		return &tls.Certificate{Certificate: [][]byte{leaf.Raw}, PrivateKey: key, Leaf: leaf}, nil
	}

	material := o.KeyMaterial
	if len(material) == 0 {
		data, err := os.ReadFile(o.KeyFile)
		if err != nil {
			return nil, errors.Trace(err)
		}
		material = data
	}

	var keyPEM, certPEM []byte
	for rest := material; ; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch {
		case block.Type == "CERTIFICATE":
			certPEM = append(certPEM, pem.EncodeToMemory(block)...)
		case strings.HasSuffix(block.Type, "PRIVATE KEY"):
			//nolint:staticcheck // legacy RFC 1423 encryption is still what password-protected PEM keys use
			if x509.IsEncryptedPEMBlock(block) {
				if o.Password == "" {
					return nil, errors.TraceNew("encrypted private key needs a password")
				}
				der, err := x509.DecryptPEMBlock(block, []byte(o.Password))
				if err != nil {
					return nil, errors.Trace(err)
				}
				block = &pem.Block{Type: block.Type, Bytes: der}
			}
			keyPEM = pem.EncodeToMemory(block)
		}
	}
	if keyPEM == nil {
		return nil, errors.TraceNew("no private key found")
	}
	c.keyPEM = keyPEM

	if o.CertFile != "" {
		data, err := os.ReadFile(o.CertFile)
		if err != nil {
			return nil, errors.Trace(err)
		}
		certPEM = data
	}
	if certPEM == nil {
		return nil, errors.TraceNew("private key has no certificate")
	}
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &cert, nil
}

func isPKCS12(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".p12", ".pfx":
		return true
	}
	return false
}

// loadRoots returns nil, meaning the system roots, when neither a CA file
// nor a CA directory is configured.
func loadRoots(caFile, caDir string) (*x509.CertPool, error) {
	if caFile == "" && caDir == "" {
		return nil, nil
	}
	pool := x509.NewCertPool()
	if caFile != "" {
		data, err := os.ReadFile(caFile)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if !pool.AppendCertsFromPEM(data) {
			return nil, errors.Tracef("no certificates in %s", caFile)
		}
	}
	if caDir != "" {
		entries, err := os.ReadDir(caDir)
		if err != nil {
			return nil, errors.Trace(err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(caDir, entry.Name())
			data, err := os.ReadFile(path)
			if err != nil {
				log.Warnf("skipping CA %s: %v", path, err)
				continue
			}
			if !pool.AppendCertsFromPEM(data) {
				log.Debugf("no certificates in %s", path)
			}
		}
	}
	return pool, nil
}

// Config returns the configuration sessions are built from.
func (c *Context) Config() *tls.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// Release drops the key material. It is safe to call more than once.
func (c *Context) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return
	}
	c.released = true
	for i := range c.keyPEM {
		c.keyPEM[i] = 0
	}
	c.keyPEM = nil
	if c.config != nil {
		c.config.Certificates = nil
	}
}

func (c *Context) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}
