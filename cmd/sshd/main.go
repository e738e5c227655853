// Command sshd runs the SSH2 server-side transport engine as a
// standalone daemon: it parses flags, optionally merges a YAML config
// file, builds a Listener, serves Prometheus metrics, and accepts
// connections until terminated.
package main

import (
	"context"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	flags "github.com/zmap/zflags"

	"github.com/corebound/sshd/internal/config"
	"github.com/corebound/sshd/internal/metrics"
	"github.com/corebound/sshd/internal/resolve"
	"github.com/corebound/sshd/lib/ssh"
)

// options holds the CLI surface; each field mirrors a config.File key
// so an on-disk config can supply anything left at its zero value.
type options struct {
	Address     string   `long:"address" description:"Bind address (0.0.0.0 if unset)"`
	Port        int      `long:"port" description:"Bind port (22 if unset)"`
	Banner      string   `long:"banner" description:"SSH identification string override"`
	RSAHostKey  string   `long:"rsa-host-key" description:"Path to a PEM-encoded RSA host key"`
	DSAHostKey  string   `long:"dsa-host-key" description:"Path to a PEM-encoded DSA host key"`
	MaxSessions int      `long:"max-sessions" description:"Cap on concurrently accepted sessions (0 = unlimited)"`
	KexAlgos    []string `long:"kex" description:"Allowed key-exchange algorithms, in preference order"`
	Ciphers     []string `long:"ciphers" description:"Allowed ciphers, in preference order"`
	MACs        []string `long:"macs" description:"Allowed MACs, in preference order"`
	DNSServer   string   `long:"dns-server" description:"host:port of a DNS server for bind-address resolution"`
	MetricsAddr string   `long:"metrics-addr" description:"Address to serve Prometheus metrics on (empty disables)"`
	ConfigFile  string   `long:"config" description:"Path to an optional YAML config file"`
}

func main() {
	os.Exit(run())
}

func run() int {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		return 2
	}

	fileCfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.WithError(err).Error("failed to load config file")
		return 2
	}
	applyFileDefaults(&opts, fileCfg)

	logger := log.NewEntry(log.StandardLogger())

	resolver := resolve.New(opts.DNSServer)
	loader := ssh.NewKeyLoader()
	listener := ssh.NewListener(loader, resolver, logger)
	if opts.Address != "" {
		listener.SetAddress(opts.Address)
	}
	if opts.Port != 0 {
		listener.SetPort(opts.Port)
	}
	if opts.Banner != "" {
		listener.SetBanner(opts.Banner)
	}
	listener.SetRSAHostKeyPath(opts.RSAHostKey)
	listener.SetDSAHostKeyPath(opts.DSAHostKey)
	listener.SetMaxSessions(opts.MaxSessions)
	if len(opts.KexAlgos) > 0 {
		listener.SetKeyExchanges(opts.KexAlgos)
	}
	if len(opts.Ciphers) > 0 {
		listener.SetCiphers(opts.Ciphers)
	}
	if len(opts.MACs) > 0 {
		listener.SetMACs(opts.MACs)
	}

	if err := listener.Listen(); err != nil {
		logger.WithError(err).Error("listen failed")
		return 1
	}
	defer listener.Free()

	if opts.MetricsAddr != "" {
		go serveMetrics(opts.MetricsAddr, logger)
	}

	ctx := context.Background()
	for {
		sess, err := listener.Accept()
		if err != nil {
			logger.WithError(err).Error("accept failed")
			return 1
		}
		metrics.SessionsAccepted.Inc()
		sess.SetProgressHook(metrics.ProgressObserver())
		sess.SetMismatchHook(metrics.MismatchObserver())
		go serveSession(ctx, sess)
	}
}

func serveSession(ctx context.Context, sess *ssh.Session) {
	dispatcher := ssh.NewDispatcher(sess)
	if err := ssh.Drive(ctx, sess, dispatcher); err != nil {
		metrics.SessionsByState.WithLabelValues(sess.State().String()).Inc()
		return
	}
	metrics.SessionsByState.WithLabelValues(sess.State().String()).Inc()
}

func serveMetrics(addr string, logger *log.Entry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.WithError(err).Error("metrics server stopped")
	}
}

func applyFileDefaults(opts *options, f *config.File) {
	if opts.Address == "" {
		opts.Address = f.Address
	}
	if opts.Port == 0 {
		opts.Port = f.Port
	}
	if opts.Banner == "" {
		opts.Banner = f.Banner
	}
	if opts.RSAHostKey == "" {
		opts.RSAHostKey = f.RSAHostKey
	}
	if opts.DSAHostKey == "" {
		opts.DSAHostKey = f.DSAHostKey
	}
	if opts.MaxSessions == 0 {
		opts.MaxSessions = f.MaxSessions
	}
	if len(opts.KexAlgos) == 0 {
		opts.KexAlgos = f.KexAlgos
	}
	if len(opts.Ciphers) == 0 {
		opts.Ciphers = f.Ciphers
	}
	if len(opts.MACs) == 0 {
		opts.MACs = f.MACs
	}
	if opts.DNSServer == "" {
		opts.DNSServer = f.DNSServer
	}
	if opts.MetricsAddr == "" {
		opts.MetricsAddr = f.MetricsAddr
	}
}
