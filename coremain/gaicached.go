package coremain

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pmkol/gaicached/mlog"
	"github.com/pmkol/gaicached/pkg/intercept"
	"github.com/pmkol/gaicached/pkg/safe_close"
	"github.com/pmkol/gaicached/pkg/server"
	"github.com/pmkol/gaicached/pkg/server/dns_handler"
	"github.com/pmkol/gaicached/pkg/upstream"
)

type Gaicached struct {
	logger *zap.Logger

	interceptor *intercept.Interceptor

	httpAPIMux *http.ServeMux

	metricsReg *prometheus.Registry

	sc *safe_close.SafeClose
}

func RunGaicached(cfg *Config) error {
	lg, err := mlog.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	mlog.SetL(lg)

	g := &Gaicached{
		logger:     lg,
		httpAPIMux: http.NewServeMux(),
		metricsReg: newMetricsReg(),
		sc:         safe_close.NewSafeClose(),
	}

	g.httpAPIMux.Handle("/metrics", promhttp.HandlerFor(g.metricsReg, promhttp.HandlerOpts{}))
	g.httpAPIMux.HandleFunc("/debug/pprof/", pprof.Index)
	g.httpAPIMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	g.httpAPIMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	g.httpAPIMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	g.httpAPIMux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	// Init upstream
	u, err := upstream.NewUpstream(upstream.Opts{
		Logger:  lg.Named("upstream"),
		Addr:    cfg.Upstream.Addr,
		Timeout: time.Duration(cfg.Upstream.Timeout) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to init upstream: %w", err)
	}

	// Init interception layer
	g.interceptor, err = intercept.NewInterceptor(intercept.Opts{
		Logger:        lg.Named("intercept"),
		TTL:           time.Duration(cfg.Cache.TTL) * time.Millisecond,
		QueueCapacity: cfg.Cache.DeferQueueSize,
		Resolve:       u.Resolve,
		Release:       u.Release,
	})
	if err != nil {
		return fmt.Errorf("failed to init interception layer: %w", err)
	}
	if err := g.interceptor.RegisterMetricsTo(g.GetMetricsReg()); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	if len(cfg.Servers) == 0 {
		return errors.New("no server is configured")
	}
	for i, sc := range cfg.Servers {
		if err := g.startServer(&sc); err != nil {
			return fmt.Errorf("failed to start server #%d, %w", i, err)
		}
	}

	// Start http api server
	if httpAddr := cfg.API.HTTP; len(httpAddr) > 0 {
		httpServer := &http.Server{
			Addr:    httpAddr,
			Handler: g.httpAPIMux,
		}
		g.sc.Attach(func(done func(), closeSignal <-chan struct{}) {
			defer done()
			errChan := make(chan error, 1)
			go func() {
				g.logger.Info("starting api http server", zap.String("addr", httpAddr))
				errChan <- httpServer.ListenAndServe()
			}()
			select {
			case err := <-errChan:
				g.sc.SendCloseSignal(err)
			case <-closeSignal:
				httpServer.Close()
			}
		})
	}

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		sig := <-c
		g.logger.Info("signal received, exiting", zap.Stringer("signal", sig))
		g.sc.SendCloseSignal(nil)
	}()

	<-g.sc.ReceiveCloseSignal()
	g.sc.Done()
	g.sc.CloseWait()
	return g.sc.Err()
}

func (g *Gaicached) startServer(cfg *ServerConfig) error {
	if len(cfg.Addr) == 0 {
		return errors.New("server addr cannot be empty")
	}

	handler, err := dns_handler.NewEntryHandler(dns_handler.EntryHandlerOpts{
		Logger:       g.logger.Named("handler"),
		Resolver:     g.interceptor,
		QueryTimeout: time.Duration(cfg.Timeout) * time.Second,
		ReplyTTL:     uint32(cfg.ReplyTTL),
	})
	if err != nil {
		return fmt.Errorf("failed to init dns handler: %w", err)
	}

	s := server.NewServer(server.ServerOpts{
		Logger:      g.logger.Named("server"),
		DNSHandler:  handler,
		IdleTimeout: time.Duration(cfg.IdleTimeout) * time.Second,
	})

	switch cfg.Protocol {
	case "", "udp":
		c, err := net.ListenPacket("udp", cfg.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen udp on %s, %w", cfg.Addr, err)
		}
		g.logger.Info("starting udp server", zap.String("addr", cfg.Addr))
		g.attachServer(s, func() error { return s.ServeUDP(c) })
	case "tcp":
		l, err := net.Listen("tcp", cfg.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen tcp on %s, %w", cfg.Addr, err)
		}
		g.logger.Info("starting tcp server", zap.String("addr", cfg.Addr))
		g.attachServer(s, func() error { return s.ServeTCP(l) })
	default:
		return fmt.Errorf("unknown protocol: [%s]", cfg.Protocol)
	}
	return nil
}

func (g *Gaicached) attachServer(s *server.Server, serve func() error) {
	g.sc.Attach(func(done func(), closeSignal <-chan struct{}) {
		defer done()
		errChan := make(chan error, 1)
		go func() {
			errChan <- serve()
		}()
		select {
		case err := <-errChan:
			if err != nil && !errors.Is(err, server.ErrServerClosed) {
				g.sc.SendCloseSignal(err)
			}
		case <-closeSignal:
			s.Close()
		}
	})
}

func (g *Gaicached) GetSafeClose() *safe_close.SafeClose {
	return g.sc
}

func (g *Gaicached) GetMetricsReg() prometheus.Registerer {
	return prometheus.WrapRegistererWithPrefix("gaicached_", g.metricsReg)
}

func (g *Gaicached) GetHTTPAPIMux() *http.ServeMux {
	return g.httpAPIMux
}

func newMetricsReg() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())
	return reg
}
