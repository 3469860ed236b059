package net

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"hati/internal/common"
)

const (
	maxRecvSize        = 4 * 1024
	defaultNWorkers    = 10
	defaultConnTimeout = 30 * time.Second
)

var (
	ErrImproperConversion = errors.New("improper type conversion")
	ErrClientDoesNotExist = errors.New("client does not exist")
)

// ClientSession contains relevant information pertaining to an individual
// connected TCP session.
type ClientSession struct {
	conn net.Conn
}

// ClientMessage links a message to the client sending it.
type ClientMessage struct {
	clientAddress string
	message       Message
}

// Engine is the command surface the server drives: the cross-pair
// dispatcher in front of the book actors.
type Engine interface {
	PlaceOrder(o common.Order) error
	CancelOrder(pair common.AssetPair, id string) error
	MarketStatus(pair common.AssetPair) (common.MarketStatusPayload, error)
	OrderBook(pair common.AssetPair) (common.OrderBookPayload, error)
	DeleteBook(pair common.AssetPair) error
}

type Server struct {
	address            string
	port               int
	engine             Engine
	pool               WorkerPool
	cancel             context.CancelFunc
	clientSessions     map[string]ClientSession
	clientSessionsLock sync.Mutex
	clientMessages     chan ClientMessage
	now                func() uint64
}

func New(address string, port int, engine Engine) *Server {
	return &Server{
		address:        address,
		port:           port,
		engine:         engine,
		pool:           NewWorkerPool(defaultNWorkers),
		clientSessions: make(map[string]ClientSession),
		clientMessages: make(chan ClientMessage, 1),
		now:            func() uint64 { return uint64(time.Now().UnixMilli()) },
	}
}

func (s *Server) Shutdown() {
	log.Info().Msg("server shutting down")
	s.cancel()
}

func (s *Server) Run(ctx context.Context) {
	defer s.Shutdown()

	// Setup a cancel on the context for future shutdown.
	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	// Start a tcp listener.
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		log.Error().Err(err).Msg("unable to start listener")
		return
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
	}()

	// Start the worker pool.
	s.pool.Setup(t, s.handleConnection)

	// Start the session handler.
	t.Go(func() error {
		return s.sessionHandler(t)
	})

	log.Info().Str("address", s.address).Int("port", s.port).Msg("server running")

	// Start accepting connections.
	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := listener.Accept()
			if err != nil {
				log.Error().Err(err).Msg("error accepting client")
				continue
			}

			log.Info().
				Str("address", conn.RemoteAddr().String()).
				Msg("new client added")
			// Track the session; we expect a long-lived TCP connection.
			s.addClientSession(conn)

			// Pass over the connection to be read from.
			s.pool.AddTask(conn)
		}
	}
}

func (s *Server) report(clientAddress string, r Report) error {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	client, ok := s.clientSessions[clientAddress]
	if !ok {
		return ErrClientDoesNotExist
	}
	if _, err := client.conn.Write(r.Serialize()); err != nil {
		delete(s.clientSessions, clientAddress)
		return fmt.Errorf("unable to send report: %w", err)
	}
	return nil
}

func (s *Server) reportError(clientAddress string, err error) {
	if rerr := s.report(clientAddress, Report{TypeOf: ErrorReport, Body: []byte(err.Error())}); rerr != nil {
		log.Error().Err(rerr).Str("clientAddress", clientAddress).Msg("error reporting error")
	}
}

// sessionHandler reads off incoming messages from clients and handles
// high-level session logic. Messages are received from the pool of workers.
func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case message := <-s.clientMessages:
			if err := s.handleMessage(message); err != nil {
				log.Error().
					Err(err).
					Str("clientAddress", message.clientAddress).
					Msg("error handling message")
				s.reportError(message.clientAddress, err)
			}
		}
	}
}

func (s *Server) handleMessage(message ClientMessage) error {
	switch m := message.message.(type) {
	case NewOrderMessage:
		order, err := s.orderFromMessage(m)
		if err != nil {
			return err
		}
		if err := s.engine.PlaceOrder(order); err != nil {
			s.reportError(message.clientAddress, err)
			log.Error().
				Err(err).
				Str("clientAddress", message.clientAddress).
				Msg("error while placing order")
			return nil
		}
		return s.report(message.clientAddress, Report{TypeOf: OrderAcceptedReport, Body: []byte(order.ID)})
	case CancelOrderMessage:
		if err := s.engine.CancelOrder(m.Pair, m.OrderID); err != nil {
			return s.report(message.clientAddress, Report{
				TypeOf: CancelRejectedReport,
				Body:   []byte(fmt.Sprintf("%s: %s", m.OrderID, err)),
			})
		}
		return s.report(message.clientAddress, Report{TypeOf: OrderCanceledReport, Body: []byte(m.OrderID)})
	case PairMessage:
		return s.handlePairMessage(message.clientAddress, m)
	default:
		log.Error().
			Int("messageType", int(message.message.GetType())).
			Msg("invalid message type")
		return ErrInvalidMessageType
	}
}

func (s *Server) handlePairMessage(clientAddress string, m PairMessage) error {
	switch m.TypeOf {
	case MarketStatus:
		status, err := s.engine.MarketStatus(m.Pair)
		if err != nil {
			return err
		}
		body, err := json.Marshal(status)
		if err != nil {
			return err
		}
		return s.report(clientAddress, Report{TypeOf: MarketStatusReport, Body: body})
	case OrderBookReq:
		depth, err := s.engine.OrderBook(m.Pair)
		if err != nil {
			return err
		}
		body, err := json.Marshal(depth)
		if err != nil {
			return err
		}
		return s.report(clientAddress, Report{TypeOf: OrderBookReport, Body: body})
	case DeleteBook:
		return s.engine.DeleteBook(m.Pair)
	default:
		return ErrInvalidMessageType
	}
}

// orderFromMessage completes the envelope: the server mints the id and the
// arrival timestamp, everything else comes signed from the client.
func (s *Server) orderFromMessage(m NewOrderMessage) (common.Order, error) {
	sender, err := hex.DecodeString(m.Sender)
	if err != nil {
		return common.Order{}, fmt.Errorf("bad sender key: %w", err)
	}
	signature, err := hex.DecodeString(m.Signature)
	if err != nil {
		return common.Order{}, fmt.Errorf("bad signature: %w", err)
	}
	return common.Order{
		ID:         uuid.New().String(),
		Sender:     sender,
		Pair:       m.Pair,
		Side:       m.Side,
		Amount:     m.Amount,
		Price:      m.Price,
		Timestamp:  s.now(),
		Expiration: m.Expiration,
		MatcherFee: m.MatcherFee,
		Version:    m.Version,
		Signature:  signature,
	}, nil
}

// handleConnection is a short-lived worker method which reads the next
// message off the connection, parses and passes it forward to
// sessionHandler. If the connection dies, the client session is cleaned up.
// Note, any error returned from here is fatal.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrImproperConversion
	}

	// Set max read timeout.
	if err := conn.SetDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		log.Error().
			Str("address", conn.RemoteAddr().String()).
			Err(err).
			Msg("failed setting deadline for connection")
		return nil
	}

	buffer := make([]byte, maxRecvSize)
	select {
	case <-t.Dying():
		conn.Close()
		return nil
	default:
		n, err := conn.Read(buffer)
		if err != nil {
			log.Info().
				Err(err).
				Str("address", conn.RemoteAddr().String()).
				Msg("connection closed")

			// The client has likely exited. Clean up the session.
			s.deleteClientSession(conn.RemoteAddr().String())
			conn.Close()
			return nil
		}

		message, err := parseMessage(buffer[:n])
		if err != nil {
			log.Error().
				Err(err).
				Str("address", conn.RemoteAddr().String()).
				Msg("error parsing message")
			s.reportError(conn.RemoteAddr().String(), err)
		} else {
			// Pass over to the message handling buffer.
			s.clientMessages <- ClientMessage{
				message:       message,
				clientAddress: conn.RemoteAddr().String(),
			}
		}

		// Push the client connection back to handle the next message.
		s.pool.AddTask(conn)
	}
	return nil
}

// addClientSession is an atomic map add
func (s *Server) addClientSession(conn net.Conn) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	s.clientSessions[conn.RemoteAddr().String()] = ClientSession{
		conn: conn,
	}
}

// deleteClientSession is an atomic map remove
func (s *Server) deleteClientSession(address string) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	delete(s.clientSessions, address)
}
