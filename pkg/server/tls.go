package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"path/filepath"
	"sync"

	"taskmarket-ledger/pkg/config"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// TLS provides a *CertReloader shared by the HTTP and gRPC servers. It is
// nil when TLS.ENABLE is false.
var TLS = fx.Module("tls", fx.Provide(NewCertReloader))

// CertReloader serves the most recently loaded key pair and reloads it
// when the cert or key changes on disk.
type CertReloader struct {
	certPath string
	keyPath  string

	mu   sync.RWMutex
	cert *tls.Certificate
	done chan struct{}
}

func NewCertReloader(lc fx.Lifecycle, cfg *config.Config) (*CertReloader, error) {
	if !cfg.TLS.Enable {
		return nil, nil
	}

	r := &CertReloader{
		certPath: filepath.Clean(cfg.TLS.CertPath),
		keyPath:  filepath.Clean(cfg.TLS.KeyPath),
		done:     make(chan struct{}),
	}
	if err := r.load(); err != nil {
		return nil, fmt.Errorf("load TLS key pair: %w", err)
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go r.watch()
			return nil
		},
		OnStop: func(context.Context) error {
			close(r.done)
			return nil
		},
	})
	return r, nil
}

func (r *CertReloader) load() error {
	cert, err := tls.LoadX509KeyPair(r.certPath, r.keyPath)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.cert = &cert
	r.mu.Unlock()
	return nil
}

func (r *CertReloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cert == nil {
		return nil, fmt.Errorf("no TLS certificate loaded")
	}
	return r.cert, nil
}

func (r *CertReloader) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: r.GetCertificate,
	}
}

// watch follows the containing directories so atomic renames (the way
// mounted secrets are rotated) are seen as well as in-place writes.
func (r *CertReloader) watch() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		zap.L().Error("failed to create TLS watcher", zap.Error(err))
		return
	}
	defer watcher.Close()

	for _, dir := range []string{filepath.Dir(r.certPath), filepath.Dir(r.keyPath)} {
		if err := watcher.Add(dir); err != nil {
			zap.L().Error("failed to watch TLS directory", zap.String("dir", dir), zap.Error(err))
		}
	}

	for {
		select {
		case <-r.done:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !r.relevant(event) {
				continue
			}
			if err := r.load(); err != nil {
				zap.L().Warn("TLS key pair reload failed, keeping previous certificate", zap.Error(err))
				continue
			}
			zap.L().Info("TLS certificate reloaded", zap.String("cert", r.certPath))
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			zap.L().Error("TLS watcher error", zap.Error(err))
		}
	}
}

func (r *CertReloader) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(event.Name)
	return name == r.certPath || name == r.keyPath || filepath.Base(name) == "..data"
}
