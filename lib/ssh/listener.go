// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"context"
	"fmt"
	"net"
	"syscall"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"
	"golang.org/x/sys/unix"
)

const (
	defaultBindAddress = "0.0.0.0"
	defaultPort        = 22
	defaultBacklog     = 10
	defaultBanner      = "SSH-2.0-corebound"
)

// Listener binds a TCP endpoint and materializes Sessions for incoming
// connections (§4.1). It is not safe for concurrent use: a single
// goroutine calls Accept per Listener.
type Listener struct {
	log *log.Entry
	cfg Config

	address string
	port    int
	banner  string

	rsaKeyPath string
	dsaKeyPath string

	maxSessions int

	ln       net.Listener
	loader   KeyLoader
	resolver Resolver
}

// Resolver performs the address-family-agnostic hostname lookup that
// replaces a legacy gethostbyname-style single-family lookup.
type Resolver interface {
	LookupBindIP(host string) (net.IP, error)
}

// NewListener returns a Listener with the §4.1 defaults: port 22, no
// bound socket, no host keys configured.
func NewListener(loader KeyLoader, resolver Resolver, logger *log.Entry) *Listener {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	l := &Listener{
		log:      logger,
		address:  defaultBindAddress,
		port:     defaultPort,
		banner:   defaultBanner,
		loader:   loader,
		resolver: resolver,
	}
	l.cfg.SetDefaults()
	return l
}

// SetAddress configures the bind address (hostname or IP).
func (l *Listener) SetAddress(addr string) { l.address = addr }

// SetPort configures the listening TCP port.
func (l *Listener) SetPort(port int) { l.port = port }

// SetBanner overrides the SSH identification string sent to peers.
func (l *Listener) SetBanner(banner string) { l.banner = banner }

// SetRSAHostKeyPath configures the RSA host key's file path.
func (l *Listener) SetRSAHostKeyPath(path string) { l.rsaKeyPath = path }

// SetDSAHostKeyPath configures the DSA host key's file path.
func (l *Listener) SetDSAHostKeyPath(path string) { l.dsaKeyPath = path }

// SetMaxSessions caps concurrently accepted sessions via
// golang.org/x/net/netutil.LimitListener; zero (the default) means
// unlimited.
func (l *Listener) SetMaxSessions(n int) { l.maxSessions = n }

// SetKeyExchanges, SetHostKeyAlgos, SetCiphers, and SetMACs override
// the corresponding §4.7 preference slot; nil restores the built-in
// default for that slot.
func (l *Listener) SetKeyExchanges(algos []string) { l.cfg.KeyExchanges = algos }
func (l *Listener) SetHostKeyAlgos(algos []string)  { l.cfg.HostKeyAlgos = algos }
func (l *Listener) SetCiphers(algos []string)       { l.cfg.Ciphers = algos }
func (l *Listener) SetMACs(algos []string)          { l.cfg.MACs = algos }

// Listen resolves the bind address, opens an IPv4/IPv6 TCP socket with
// SO_REUSEADDR, binds, and listens with backlog 10 (§4.1).
func (l *Listener) Listen() error {
	host := l.address
	if l.resolver != nil && net.ParseIP(host) == nil && host != "" {
		ip, err := l.resolver.LookupBindIP(host)
		if err != nil {
			return wrapError(KindResolve, "resolve bind address "+host, err)
		}
		host = ip.String()
	}

	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}

	ln, err := lc.Listen(context.Background(), "tcp", fmt.Sprintf("%s:%d", host, l.port))
	if err != nil {
		return wrapError(KindSocketIO, "listen", err)
	}
	if l.maxSessions > 0 {
		ln = netutil.LimitListener(ln, l.maxSessions)
	}
	l.ln = ln
	l.log.WithField("addr", ln.Addr().String()).Info("listening for SSH connections")
	return nil
}

// Accept requires at least one host key path to be configured, loads
// the configured host keys, performs a TCP accept, and materializes a
// Session bound to the resulting connection with algorithm
// preferences and host keys copied in (§4.1).
func (l *Listener) Accept() (*Session, error) {
	if l.ln == nil {
		return nil, newError(KindConfig, "listener not bound: call Listen first")
	}
	if l.rsaKeyPath == "" && l.dsaKeyPath == "" {
		return nil, newError(KindConfig, "no host key configured")
	}

	cfg := l.cfg
	cfg.SetDefaults()
	sess := NewSession(&cfg, l.loader, l.banner, l.log)

	if l.rsaKeyPath != "" {
		priv, err := l.loader.LoadPrivateKey(l.rsaKeyPath, HostKeyRSA)
		if err != nil {
			return nil, err
		}
		sess.SetHostKey(HostKeyRSA, priv)
	}
	if l.dsaKeyPath != "" {
		priv, err := l.loader.LoadPrivateKey(l.dsaKeyPath, HostKeyDSA)
		if err != nil {
			return nil, err
		}
		sess.SetHostKey(HostKeyDSA, priv)
	}

	conn, err := l.ln.Accept()
	if err != nil {
		return nil, wrapError(KindSocketIO, "accept", err)
	}

	if err := sess.Attach(conn); err != nil {
		return nil, err
	}
	return sess, nil
}

// Free closes the bound socket and releases configured options.
func (l *Listener) Free() error {
	if l.ln == nil {
		return nil
	}
	err := l.ln.Close()
	l.ln = nil
	l.rsaKeyPath = ""
	l.dsaKeyPath = ""
	return err
}
