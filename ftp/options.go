package ftp

import (
	"crypto/tls"
	"log/slog"
	"time"

	"github.com/gonzalop/xfer/config"
)

// settings collects the Dial-time knobs every Option mutates, matching
// spec.md §6.4's ftp:* keys.
type settings struct {
	timeout          time.Duration
	idleTimeout      time.Duration
	activeMode       bool
	disableEPSV      bool
	ignorePasvAddr   bool
	verifyDataPeer   bool
	syncMode         bool
	useFeat          bool
	tlsConfig        *tls.Config
	explicitTLS      bool
	logger           *slog.Logger
	store            *config.Store
	closure          string
}

func defaultSettings() settings {
	return settings{
		timeout:        30 * time.Second,
		verifyDataPeer: true,
		useFeat:        true,
	}
}

// Option is a functional option for Dial, following the same pattern the
// teacher's blocking client used for its own Option type.
type Option func(*settings)

// WithTimeout bounds how long the engine waits for a control-channel reply
// or a data-channel connect before treating the operation as failed.
func WithTimeout(d time.Duration) Option { return func(s *settings) { s.timeout = d } }

// WithIdleTimeout records d as the idle period. The engine only stores it:
// no NOOP or SITE IDLE keep-alive is sent, however long the connection
// stays quiet.
func WithIdleTimeout(d time.Duration) Option { return func(s *settings) { s.idleTimeout = d } }

// WithActiveMode prefers PORT/EPRT over PASV/EPSV for data connections.
func WithActiveMode() Option { return func(s *settings) { s.activeMode = true } }

// WithDisableEPSV skips EPSV and goes straight to PASV.
func WithDisableEPSV() Option { return func(s *settings) { s.disableEPSV = true } }

// WithIgnorePasvAddress always substitutes the control connection's peer
// address for the one a PASV/EPSV reply advertises (ftp:ignore-pasv-address
// in spec.md §6.4), for servers that report an unreachable NAT-internal IP.
func WithIgnorePasvAddress() Option { return func(s *settings) { s.ignorePasvAddr = true } }

// WithoutDataPeerVerification clears the data-connection peer-check
// setting. The engine does not consult that setting: with or without this
// option, a data connection's peer address is not compared with the
// control connection's.
func WithoutDataPeerVerification() Option { return func(s *settings) { s.verifyDataPeer = false } }

// WithSyncMode forces the engine to keep at most one command outstanding on
// the control channel, disabling pipelining for servers that mishandle it.
func WithSyncMode() Option { return func(s *settings) { s.syncMode = true } }

// WithoutFeat skips the FEAT capability probe; the engine falls back to
// conservative per-command error handling (a rejected MLSD just means "use
// LIST instead") the way it would for a pre-RFC3659 server.
func WithoutFeat() Option { return func(s *settings) { s.useFeat = false } }

// WithExplicitTLS stores cfg (an empty tls.Config when nil) and marks
// explicit TLS as requested. The engine does not act on it: no AUTH TLS,
// PBSZ or PROT command is sent, and the control and data channels stay
// plaintext.
func WithExplicitTLS(cfg *tls.Config) Option {
	return func(s *settings) {
		if cfg == nil {
			cfg = &tls.Config{}
		}
		s.tlsConfig = cfg
		s.explicitTLS = true
	}
}

// WithLogger stores logger in the engine's settings; the engine does not
// log the command/reply conversation through it.
func WithLogger(logger *slog.Logger) Option { return func(s *settings) { s.logger = logger } }

// WithConfig seeds the timeout (net:timeout), the idle period (net:idle)
// and the ftp:active-mode, ftp:disable-epsv, ftp:ignore-pasv-address and
// ftp:sync-mode flags from a config.Store closure (spec.md §6.4); FEAT use
// is not read from the store. It is applied before any Option that
// follows it so an explicit Option still wins.
func WithConfig(store *config.Store, closure string) Option {
	return func(s *settings) {
		s.store, s.closure = store, closure
		if d := store.GetDuration("net:timeout", closure); d > 0 {
			s.timeout = d
		}
		if d := store.GetDuration("net:idle", closure); d > 0 {
			s.idleTimeout = d
		}
		s.activeMode = store.GetBool("ftp:active-mode", closure)
		s.disableEPSV = store.GetBool("ftp:disable-epsv", closure)
		s.ignorePasvAddr = store.GetBool("ftp:ignore-pasv-address", closure)
		s.syncMode = store.GetBool("ftp:sync-mode", closure)
	}
}
