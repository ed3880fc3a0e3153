package scatterapi

import (
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"

	"github.com/openstructure/saxsengine/internal/monitoring"
)

// Config holds configuration for the scatterapi gRPC server, mirroring the
// teacher's visualiser.Config shape.
type Config struct {
	ListenAddr string
	MaxClients int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{ListenAddr: "localhost:50151", MaxClients: 5}
}

// Publisher owns the gRPC server lifecycle and the ProfileSource it serves
// from.
type Publisher struct {
	config Config
	source ProfileSource

	mu       sync.Mutex
	server   *grpc.Server
	listener net.Listener
	running  bool
}

// NewPublisher constructs a Publisher serving profiles from source.
func NewPublisher(cfg Config, source ProfileSource) *Publisher {
	return &Publisher{config: cfg, source: source}
}

// Start opens the listener and begins serving in the background.
func (p *Publisher) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("scatterapi: publisher already running")
	}

	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("scatterapi: listen on %s: %w", p.config.ListenAddr, err)
	}

	server := grpc.NewServer(grpc.MaxConcurrentStreams(uint32(p.config.MaxClients)))
	RegisterScatterServiceServer(server, NewServer(p.source))

	p.server = server
	p.listener = lis
	p.running = true

	go func() {
		monitoring.Logf("scatterapi: serving on %s", p.config.ListenAddr)
		if err := server.Serve(lis); err != nil {
			monitoring.Logf("scatterapi: server exited: %v", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (p *Publisher) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.server.GracefulStop()
	p.running = false
	monitoring.Logf("scatterapi: stopped")
}

// Addr returns the listener's bound address, useful when ListenAddr used
// port 0 (common in tests).
func (p *Publisher) Addr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}
