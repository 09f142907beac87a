package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/mdlayher/vsock"
	"github.com/rs/zerolog"

	"github.com/cloudx-io/escrowauction/auctionapi"
	"github.com/cloudx-io/escrowauction/core"
	"github.com/cloudx-io/escrowauction/custody"
	"github.com/cloudx-io/escrowauction/journal"
	"github.com/cloudx-io/escrowauction/receipt"
)

// Server answers one JSON request per connection. The client writes the
// request, closes its write side and reads the JSON response.
type Server struct {
	cfg     Config
	log     zerolog.Logger
	clock   core.Clock
	engine  *core.Engine
	assets  *custody.AssetBook
	wallets *custody.Wallets
	journal *journal.Store // nil when the journal is disabled
	signer  receipt.Signer
	routes  map[string]handlerFunc

	conns sync.WaitGroup
}

// NewServer wires the engine to in-memory custody, the optional journal and
// the receipt signer.
func NewServer(cfg Config, logger zerolog.Logger, clock core.Clock, store *journal.Store, signer receipt.Signer) (*Server, error) {
	if signer == nil {
		return nil, fmt.Errorf("receipt signer is required")
	}
	if clock == nil {
		clock = core.SystemClock
	}

	s := &Server{
		cfg:     cfg,
		log:     logger,
		clock:   clock,
		assets:  custody.NewAssetBook(),
		wallets: custody.NewWallets(),
		journal: store,
		signer:  signer,
	}

	var notifier core.Notifier
	if store != nil {
		notifier = store
	}
	engineLogger := logger.With().Str("component", "engine").Logger()
	engine, err := core.NewEngine(core.Config{
		Identity:            core.Identity(cfg.EngineIdentity),
		Admin:               core.Identity(cfg.Admin),
		Assets:              s.assets,
		Funds:               s.wallets,
		Notifier:            notifier,
		Clock:               clock,
		Logger:              &engineLogger,
		MinDuration:         cfg.MinDuration,
		DurationBoundary:    cfg.durationBoundary(),
		PauseBlocksFinalize: cfg.PauseBlocksFinalize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}
	s.engine = engine
	s.routes = s.handlers()
	return s, nil
}

// Listen opens the configured tcp or vsock listener.
func (s *Server) Listen(ctx context.Context) (net.Listener, error) {
	switch s.cfg.Network {
	case "vsock":
		listener, err := vsock.Listen(s.cfg.VsockPort, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create vsock listener: %w", err)
		}
		return listener, nil
	default:
		var lc net.ListenConfig
		listener, err := lc.Listen(ctx, "tcp", s.cfg.Address)
		if err != nil {
			return nil, fmt.Errorf("failed to create tcp listener: %w", err)
		}
		return listener, nil
	}
}

// Serve accepts connections until ctx is cancelled, then closes listener and
// waits for in-flight connections.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	semaphore := make(chan struct{}, s.cfg.MaxWorkers)
	s.log.Info().
		Str("addr", listener.Addr().String()).
		Int("max_workers", s.cfg.MaxWorkers).
		Str("signer", s.signer.Mode()).
		Strs("request_types", s.requestTypes()).
		Msg("auctiond listening")

	stop := context.AfterFunc(ctx, func() {
		if err := listener.Close(); err != nil {
			s.log.Error().Err(err).Msg("failed to close listener")
		}
	})
	defer stop()
	defer s.conns.Wait()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.log.Error().Err(err).Msg("failed to accept connection")
			continue
		}

		// Acquire worker slot - immediate rejection if pool full
		select {
		case semaphore <- struct{}{}:
			s.conns.Add(1)
			go func(c net.Conn) {
				defer s.conns.Done()
				defer func() { <-semaphore }()
				s.handleConnection(ctx, c)
			}(conn)
		default:
			s.log.Info().Msg("no workers available, rejecting connection (pool full)")
			if err := conn.Close(); err != nil {
				s.log.Error().Err(err).Msg("failed to close rejected connection")
			}
		}
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("panic recovered in handleConnection")
		}
		if err := conn.Close(); err != nil {
			s.log.Debug().Err(err).Msg("failed to close connection")
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(conn, s.cfg.MaxRequestBytes+1))
	if err != nil {
		s.log.Error().Err(err).Msg("failed to read request")
		return
	}

	var response any
	if n > s.cfg.MaxRequestBytes {
		// Drain the rest so closing does not reset the connection before the
		// client reads the error.
		_, _ = io.Copy(io.Discard, conn)
		response = auctionapi.ErrorResponse{Type: "error", Message: fmt.Sprintf("request exceeds %d bytes", s.cfg.MaxRequestBytes)}
	} else {
		response = s.dispatch(ctx, buf.Bytes())
	}

	if err := json.NewEncoder(conn).Encode(response); err != nil {
		s.log.Error().Err(err).Msg("failed to encode response")
	}
}

// dispatch routes one raw request to its handler and always returns a
// response value. A request that has been read runs to completion even after
// shutdown begins; Serve waits for it.
func (s *Server) dispatch(ctx context.Context, raw []byte) any {
	ctx = context.WithoutCancel(ctx)

	var base auctionapi.BaseRequest
	if err := json.Unmarshal(raw, &base); err != nil {
		s.log.Warn().Err(err).Msg("failed to decode base request")
		return auctionapi.ErrorResponse{Type: "error", Message: fmt.Sprintf("Failed to decode request: %v", err)}
	}

	h, ok := s.routes[base.Type]
	if !ok {
		return auctionapi.ErrorResponse{Type: "error", Message: fmt.Sprintf("Unknown request type: %s", base.Type)}
	}

	start := time.Now()
	resp, err := h(ctx, raw)
	event := s.log.Debug()
	if err != nil {
		event = s.log.Info().Err(err)
		resp = auctionapi.NewErrorResponse(err)
	}
	event.Str("type", base.Type).Dur("took", time.Since(start)).Msg("request handled")
	return resp
}

// decodeRequest unmarshals raw into a T.
func decodeRequest[T any](raw []byte) (T, error) {
	var req T
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}
