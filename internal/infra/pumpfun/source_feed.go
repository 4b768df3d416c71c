package pumpfun

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"token_sniper/internal/domain"
	"token_sniper/internal/infra"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	DefaultSourceURL  = "wss://pumpportal.fun/api/data"
	defaultBufferSize = 1000
	handshakeTimeout  = 10 * time.Second
	readTimeout       = 120 * time.Second
)

var errNotConnected = errors.New("source feed not connected")

// newTokenEvent is a token creation message from the pumpportal data stream.
type newTokenEvent struct {
	Signature    string          `json:"signature"`
	Mint         string          `json:"mint"`
	TxType       string          `json:"txType"`
	Name         string          `json:"name"`
	Symbol       string          `json:"symbol"`
	URI          string          `json:"uri"`
	SolAmount    decimal.Decimal `json:"solAmount"`
	MarketCapSol decimal.Decimal `json:"marketCapSol"`
	Pool         string          `json:"pool"`
}

// SourceFeed subscribes to new token creations and buffers them until the
// discovery loop drains them with FetchDiscovered. It implements Session.
type SourceFeed struct {
	url    string
	buf    chan domain.RawDiscovery
	logger *slog.Logger

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewSourceFeed creates a feed for the given websocket URL. bufferSize bounds
// how many undrained records are held; newer records are dropped when full.
func NewSourceFeed(url string, bufferSize int) *SourceFeed {
	if url == "" {
		url = DefaultSourceURL
	}
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &SourceFeed{
		url:    url,
		buf:    make(chan domain.RawDiscovery, bufferSize),
		logger: slog.Default().With("module", "source_feed"),
	}
}

// Open starts the connection loop. It returns immediately; the loop keeps
// reconnecting with backoff until Close is called or ctx is cancelled.
func (f *SourceFeed) Open(ctx context.Context) error {
	if u, err := url.Parse(f.url); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return domain.NewFatalNetworkError("open", fmt.Errorf("invalid websocket url %q", f.url))
	}

	f.mu.Lock()
	if f.cancel != nil {
		f.mu.Unlock()
		return fmt.Errorf("source feed already open")
	}
	ctx, f.cancel = context.WithCancel(ctx)
	f.mu.Unlock()

	f.wg.Add(1)
	go f.connectionLoop(ctx)
	return nil
}

// Close stops the connection loop and releases the socket.
func (f *SourceFeed) Close() error {
	f.mu.Lock()
	cancel := f.cancel
	f.cancel = nil
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	f.closeConnection()
	f.wg.Wait()
	f.logger.Info("🔌 Source feed closed")
	return nil
}

// Connected reports whether the websocket is currently subscribed.
func (f *SourceFeed) Connected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

// FetchDiscovered drains buffered records. An empty buffer on a live
// connection is an empty result; an empty buffer while disconnected is
// ErrFeedUnavailable.
func (f *SourceFeed) FetchDiscovered(ctx context.Context) ([]domain.RawDiscovery, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewFeedError("fetch_discovered", err)
	}

	var out []domain.RawDiscovery
drain:
	for i := 0; i < cap(f.buf); i++ {
		select {
		case rec := <-f.buf:
			out = append(out, rec)
		default:
			break drain
		}
	}

	if len(out) == 0 && !f.Connected() {
		return nil, domain.NewFeedError("fetch_discovered", errNotConnected)
	}
	return out, nil
}

func (f *SourceFeed) connectionLoop(ctx context.Context) {
	defer f.wg.Done()
	defer f.closeConnection()
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("Source feed panic recovered", slog.Any("panic", r))
		}
	}()

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		if err := f.connect(ctx); err != nil {
			delay := backoff(attempt)
			attempt++
			f.logger.Warn("Source feed connection failed",
				slog.Any("error", err),
				slog.Int("attempt", attempt),
				slog.Duration("retry_in", delay))

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			continue
		}

		attempt = 0
		f.readLoop(ctx)
	}
}

func (f *SourceFeed) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	header := make(http.Header)
	header.Set("User-Agent", infra.DefaultUserAgent)

	conn, _, err := dialer.DialContext(ctx, f.url, header)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	if err := f.subscribe(); err != nil {
		f.closeConnection()
		return fmt.Errorf("subscribe failed: %w", err)
	}

	f.mu.Lock()
	f.connected = f.conn == conn
	f.mu.Unlock()

	f.logger.Info("✅ Source feed connected", slog.String("url", f.url))
	return nil
}

func (f *SourceFeed) subscribe() error {
	b, _ := json.Marshal(map[string]string{"method": "subscribeNewToken"})
	return f.threadSafeWrite(websocket.TextMessage, b)
}

func (f *SourceFeed) threadSafeWrite(msgType int, data []byte) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.conn == nil {
		return errNotConnected
	}
	return f.conn.WriteMessage(msgType, data)
}

func (f *SourceFeed) readLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				f.logger.Warn("Source feed read failed", slog.Any("error", err))
			}
			f.closeConnection()
			return
		}
		f.handleMessage(msg)
	}
}

func (f *SourceFeed) handleMessage(msg []byte) {
	var ev newTokenEvent
	if json.Unmarshal(msg, &ev) != nil || ev.Mint == "" {
		return // subscription acks and unrelated frames
	}
	if ev.TxType != "" && ev.TxType != "create" {
		return
	}

	rec := domain.RawDiscovery{
		RawID:       ev.Mint,
		Name:        ev.Name,
		Description: ev.Symbol,
		MarketCap:   ev.MarketCapSol,
		Volume:      ev.SolAmount,
		ImageURI:    ev.URI,
	}

	select {
	case f.buf <- rec:
	default: // DROP
		f.logger.Debug("Source buffer full, dropping record", slog.String("mint", ev.Mint))
	}
}

func (f *SourceFeed) closeConnection() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.connected = false
}

var (
	_ domain.SourceFeed = (*SourceFeed)(nil)
	_ Session           = (*SourceFeed)(nil)
)
