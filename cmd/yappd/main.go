// Command yappd runs the merchant payment daemon: it ingests completion
// signals over HTTP and websockets, persists them first-writer-wins,
// and serves verified confirmations.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jessevdk/go-flags"

	yapp "github.com/chrisdietr/ipemerchant-yapp"
	"github.com/chrisdietr/ipemerchant-yapp/bridge"
	"github.com/chrisdietr/ipemerchant-yapp/normalizer"
	"github.com/chrisdietr/ipemerchant-yapp/poller"
	"github.com/chrisdietr/ipemerchant-yapp/store"
	"github.com/chrisdietr/ipemerchant-yapp/store/db"
	"github.com/chrisdietr/ipemerchant-yapp/transport"
)

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		if flags.WroteHelp(err) {
			return
		}
		log.Fatalf("yappd: %v", err)
	}

	if err := run(opts); err != nil {
		log.Fatalf("yappd: %v", err)
	}
}

func run(opts *cliOptions) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var orders yapp.OrderStore
	if opts.MySQLDSN != "" {
		dbStore, err := db.Open(opts.MySQLDSN)
		if err != nil {
			return err
		}
		orders = dbStore
		log.Printf("using mysql order store")
	} else {
		orders = store.NewMemoryStore()
		log.Printf("using in-memory order store")
	}

	lookup := poller.NewClient(&poller.Config{
		URL: opts.IndexerURL,
		Poll: poller.PollConfig{
			Interval:    opts.PollInterval,
			MaxAttempts: opts.PollAttempts,
		},
	})

	norm := normalizer.New()
	defer norm.Close()

	hub := newHub()

	br, err := bridge.New(orders,
		bridge.WithConfirmationBase(opts.ConfirmationBase),
		bridge.WithHooks(bridge.Hooks{
			OnApplied: func(ev yapp.PaymentCompleted) {
				log.Printf("payment applied order=%s tx=%s", ev.OrderID, ev.TxHash)
				hub.broadcast(ev)
			},
			OnDuplicate: func(ev yapp.PaymentCompleted) {
				log.Printf("duplicate completion order=%s tx=%s", ev.OrderID, ev.TxHash)
			},
			OnConflict: func(ev yapp.PaymentCompleted, existing yapp.PaymentRecord) {
				log.Printf("conflicting completion order=%s tx=%s existing=%s", ev.OrderID, ev.TxHash, existing.TxHash)
			},
			OnPersistFailure: func(ev yapp.PaymentCompleted, err error) {
				log.Printf("persist failed order=%s: %v", ev.OrderID, err)
			},
			OnRelayFailure: func(err error) {
				log.Printf("relay failed: %v", err)
			},
		}),
	)
	if err != nil {
		return err
	}

	sub := norm.Subscribe()
	defer sub.Stop()
	go br.Run(ctx, sub.C())

	verify := yapp.VerifyConfig{}
	if opts.RequiredChainID != 0 {
		id := opts.RequiredChainID
		verify.RequiredChainID = &id
	}
	confirmation := &yapp.Confirmation{
		Store:  orders,
		Lookup: lookup,
		Verify: verify,
	}

	router := gin.Default()
	router.GET("/callback", callbackHandler(norm))
	router.GET("/confirmation", confirmationHandler(confirmation))
	router.GET("/ws", wsHandler(norm, hub))

	srv := &http.Server{Addr: opts.ListenAddr, Handler: router}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	log.Printf("listening on %s", opts.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// callbackHandler ingests webhook-style query parameters. The response
// is 202 whether or not the parameters produced an event; webhook
// senders retry on 5xx only.
func callbackHandler(norm *normalizer.Normalizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		accepted := norm.HandleWebhookParams(c.Request.URL)
		c.JSON(http.StatusAccepted, gin.H{"accepted": accepted})
	}
}

func confirmationHandler(confirmation *yapp.Confirmation) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := yapp.ConfirmationRequest{
			OrderID: c.Query("orderId"),
			TxHash:  c.Query("txHash"),
		}
		if raw := c.Query("chainId"); raw != "" {
			if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
				req.ChainID = &id
			}
		}

		details, err := confirmation.Confirm(c.Request.Context(), req)
		if err != nil {
			status, body := confirmationError(err)
			c.JSON(status, body)
			return
		}
		c.JSON(http.StatusOK, details)
	}
}

func confirmationError(err error) (int, gin.H) {
	var perr *yapp.PaymentError
	switch {
	case errors.Is(err, yapp.ErrMissingConfirmationParams):
		return http.StatusBadRequest, gin.H{"error": err.Error()}
	case errors.Is(err, yapp.ErrLookupExhausted):
		return http.StatusNotFound, gin.H{"error": err.Error()}
	case errors.As(err, &perr):
		return http.StatusPaymentRequired, gin.H{
			"code":    perr.Code,
			"error":   perr.Message,
			"details": perr.Details,
		}
	default:
		return http.StatusInternalServerError, gin.H{"error": err.Error()}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// wsHandler attaches a websocket client as a message port: inbound
// frames feed the normalizer, applied completions are broadcast back.
func wsHandler(norm *normalizer.Normalizer, hub *hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		port := transport.NewWSPort(conn)
		hub.add(port)
		defer func() {
			hub.remove(port)
			port.Close()
		}()

		// The receive channel closes when the client goes away.
		for raw := range port.Receive() {
			norm.HandleMessage(raw)
		}
	}
}

// hub broadcasts applied completions to every connected port.
type hub struct {
	mu    sync.Mutex
	ports map[transport.MessagePort]struct{}
}

func newHub() *hub {
	return &hub{ports: make(map[transport.MessagePort]struct{})}
}

func (h *hub) add(p transport.MessagePort) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ports[p] = struct{}{}
}

func (h *hub) remove(p transport.MessagePort) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.ports, p)
}

func (h *hub) broadcast(ev yapp.PaymentCompleted) {
	msg := yapp.NewPaymentCompleteMessage(ev)
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for p := range h.ports {
		if err := p.Post(raw); err != nil {
			log.Printf("broadcast failed: %v", err)
		}
	}
}
