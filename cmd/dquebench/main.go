// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command dquebench drives a dque channel end-to-end: a throttled demo
// producer feeds it, the single consumer drains it and fans every value
// out over a WebSocket, and Prometheus counters make the memory/disk
// spill behavior observable from outside. It exists to exercise the
// library, not as part of its contract.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"code.hybscloud.com/dque"
	"code.hybscloud.com/dque/dquecodec"
	"code.hybscloud.com/dque/dquemetrics"
)

func main() {
	var (
		addr           = flag.String("addr", ":8080", "HTTP listen address")
		dataDir        = flag.String("data-dir", os.TempDir(), "directory under which the channel's queue files are created")
		name           = flag.String("name", "dquebench", "channel name")
		maxMemoryBytes = flag.Uint64("max-memory-bytes", dque.DefaultMaxMemoryBytes, "in-memory byte budget")
		maxDiskBytes   = flag.Uint64("max-disk-bytes", dque.DefaultMaxDiskBytes, "per-file byte cap")
		maxDiskFiles   = flag.Int64("max-disk-files", -1, "max queue files created by rollover, not counting sequence 0; negative means unlimited")
		sendRate       = flag.Float64("send-rate", 1000, "demo producer sends per second")
		burst          = flag.Int("burst", 100, "demo producer burst size")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	observer, err := dquemetrics.NewPrometheus(prometheus.DefaultRegisterer, *name)
	if err != nil {
		logger.Fatal("register metrics", zap.Error(err))
	}

	sender, receiver, err := dque.ChannelWithExplicitCapacity[uint64](
		*name, *dataDir, dquecodec.CBOR[uint64]{},
		*maxMemoryBytes, *maxDiskBytes, *maxDiskFiles,
		dque.WithLogger(logger), dque.WithObserver(observer),
	)
	if err != nil {
		logger.Fatal("create channel", zap.Error(err))
	}
	defer receiver.Close()

	hub := newTailHub()
	go hub.run()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		runProducer(ctx, sender, rate.NewLimiter(rate.Limit(*sendRate), *burst), logger)
	}()
	go func() {
		defer wg.Done()
		runConsumer(ctx, receiver, hub, logger)
	}()

	srv := &http.Server{Addr: *addr, Handler: newRouter(hub)}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", zap.Error(err))
		}
	}()
	logger.Info("dquebench listening", zap.String("addr", *addr), zap.String("channel", *name))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	wg.Wait()
}

// runProducer sends a monotonically increasing counter, throttled by
// limiter, until ctx is cancelled. A Full rejection drops the value without
// logging it (the observer counts it); any other send error is logged.
// This is a demo producer, not a durable one.
func runProducer(ctx context.Context, sender *dque.Sender[uint64], limiter *rate.Limiter, logger *zap.Logger) {
	var n uint64
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		err := sender.Send(n)
		if err != nil && !dque.IsFull(err) {
			logger.Error("send", zap.Error(err))
		}
		n++
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// runConsumer drains the channel and republishes every value to the tail
// hub. A fatal receiver error (corruption) stops the loop and is logged;
// a retryable one is retried after a short backoff.
func runConsumer(ctx context.Context, receiver *dque.Receiver[uint64], hub *tailHub, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		v, err := receiver.Next()
		if err != nil {
			if errors.Is(err, dque.ErrRetry) {
				time.Sleep(time.Millisecond)
				continue
			}
			logger.Error("receive", zap.Error(err))
			return
		}
		hub.broadcast(v)
	}
}

func newRouter(hub *tailHub) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/tail", hub.serveWS)

	return r
}

// tailHub fans dequeued values out to every connected /tail viewer as a
// JSON line. It never blocks the consumer loop on a slow viewer: a
// viewer's outgoing queue is bounded, and a value that finds it full is
// dropped for that viewer.
type tailHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan uint64

	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	values     chan uint64
}

func newTailHub() *tailHub {
	return &tailHub{
		clients:    make(map[*websocket.Conn]chan uint64),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		values:     make(chan uint64, 1024),
	}
}

func (h *tailHub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = make(chan uint64, 64)
			out := h.clients[conn]
			h.mu.Unlock()
			go h.writeLoop(conn, out)
		case conn := <-h.unregister:
			h.mu.Lock()
			if out, ok := h.clients[conn]; ok {
				close(out)
				delete(h.clients, conn)
			}
			h.mu.Unlock()
		case v := <-h.values:
			h.mu.Lock()
			for _, out := range h.clients {
				select {
				case out <- v:
				default:
					// Viewer is behind; drop rather than block the hub.
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *tailHub) broadcast(v uint64) {
	select {
	case h.values <- v:
	default:
		// Hub itself is behind; drop rather than block the consumer loop.
	}
}

func (h *tailHub) writeLoop(conn *websocket.Conn, out chan uint64) {
	defer conn.Close()
	for v := range out {
		if err := conn.WriteJSON(tailMessage{Value: v, At: time.Now().UnixNano()}); err != nil {
			h.unregister <- conn
			return
		}
	}
}

type tailMessage struct {
	Value uint64 `json:"value"`
	At    int64  `json:"at"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (h *tailHub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.register <- conn

	// Drain and discard any client->server frames so the read pump
	// notices a closed connection and unregisters the writer.
	go func() {
		defer func() { h.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
