package natsbus

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/mtzanidakis/hive/internal/config"
	natsserver "github.com/nats-io/nats-server/v2/server"
)

const (
	serverName = "hive"
	readyWait  = 5 * time.Second
)

// Bus is the embedded broker carrying swarm inputs, approvals, orchestration
// requests and the events.> stream.
type Bus struct {
	server *natsserver.Server
	cfg    config.NATSConfig
}

func New(cfg config.NATSConfig) (*Bus, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create nats data dir: %w", err)
	}

	opts := &natsserver.Options{
		ServerName: serverName,
		Host:       cfg.Host,
		Port:       cfg.Port,
		MaxPayload: cfg.MaxPayload,
		NoLog:      true,
		NoSigs:     true,
		JetStream:  true,
		StoreDir:   cfg.DataDir,
	}

	ns, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create nats server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(readyWait) {
		ns.Shutdown()
		return nil, fmt.Errorf("nats server not ready after %s", readyWait)
	}

	b := &Bus{server: ns, cfg: cfg}
	slog.Debug("nats server ready", "component", "natsbus", "url", b.ClientURL(), "max_payload", cfg.MaxPayload)
	return b, nil
}

func (b *Bus) ClientURL() string {
	return b.server.ClientURL()
}

// Port returns the bound client port, which differs from the configured one
// when the config asks for a random port.
func (b *Bus) Port() int {
	if addr, ok := b.server.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return b.cfg.Port
}

func (b *Bus) Close() {
	b.server.Shutdown()
	b.server.WaitForShutdown()
}
