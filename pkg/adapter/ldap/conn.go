package ldap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"time"

	ber "github.com/go-asn1-ber/asn1-ber"
	goldap "github.com/go-ldap/ldap/v3"
	"go.opentelemetry.io/otel/attribute"

	"github.com/marmos91/dapper/internal/logger"
	"github.com/marmos91/dapper/internal/telemetry"
	"github.com/marmos91/dapper/pkg/metrics"
)

const protocolName = "ldap"

var errMessageTooLarge = errors.New("LDAP message exceeds size limit")

// messageReader caps the bytes consumed by a single ber.ReadPacket call.
type messageReader struct {
	r   io.Reader
	n   int64
	max int64
}

func (m *messageReader) reset() { m.n = 0 }

func (m *messageReader) Read(p []byte) (int, error) {
	if m.max > 0 {
		if m.n >= m.max {
			return 0, errMessageTooLarge
		}
		if remaining := m.max - m.n; int64(len(p)) > remaining {
			p = p[:remaining]
		}
	}
	n, err := m.r.Read(p)
	m.n += int64(n)
	return n, err
}

// connection is one LDAP client session. Requests are handled one at a time
// in arrival order, so the bound identity needs no locking.
type connection struct {
	server   *Adapter
	conn     net.Conn
	id       uint64
	clientIP string

	reader *messageReader
	writer *bufio.Writer
	logCtx *logger.LogContext

	// boundID is the user id of the last successful bind, "" when anonymous.
	boundID string
	boundDN string
}

func newConnection(server *Adapter, conn net.Conn, id uint64) *connection {
	clientIP := conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(clientIP); err == nil {
		clientIP = host
	}
	return &connection{
		server:   server,
		conn:     conn,
		id:       id,
		clientIP: clientIP,
		reader:   &messageReader{r: bufio.NewReader(conn), max: int64(server.config.MaxMessageSize)},
		writer:   bufio.NewWriter(conn),
		logCtx:   logger.NewLogContext(protocolName, clientIP),
	}
}

// Serve reads LDAPMessages until the client unbinds or disconnects, a frame
// cannot be decoded, or ctx is cancelled.
func (c *connection) Serve(ctx context.Context) {
	defer c.handleClose()

	clientAddr := c.conn.RemoteAddr().String()
	logger.Debug("LDAP connection opened", logger.KeyClientAddr, clientAddr, "conn_id", c.id)

	for {
		select {
		case <-ctx.Done():
			logger.Debug("LDAP connection closed by shutdown", logger.KeyClientAddr, clientAddr)
			return
		default:
		}

		if idle := c.server.config.Timeouts.Idle; idle > 0 {
			if err := c.conn.SetReadDeadline(time.Now().Add(idle)); err != nil {
				logger.Debug("Failed to set read deadline", logger.KeyClientAddr, clientAddr, logger.Err(err))
			}
		}

		c.reader.reset()
		packet, err := ber.ReadPacket(c.reader)
		if err != nil {
			var netErr net.Error
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
				logger.Debug("LDAP connection closed by client", logger.KeyClientAddr, clientAddr)
			case errors.As(err, &netErr) && netErr.Timeout():
				logger.Debug("LDAP connection timed out", logger.KeyClientAddr, clientAddr)
			default:
				logger.Debug("Error reading LDAP message", logger.KeyClientAddr, clientAddr, logger.Err(err))
			}
			return
		}

		msg, err := decodeMessage(packet)
		if err != nil {
			logger.Debug("Dropping LDAP connection", logger.KeyClientAddr, clientAddr, logger.Err(err))
			return
		}

		keep, err := c.dispatch(ctx, msg)
		if err == nil {
			err = c.writer.Flush()
		}
		if err != nil {
			logger.Debug("Error writing LDAP response", logger.KeyClientAddr, clientAddr, logger.Err(err))
			return
		}
		if !keep {
			return
		}
	}
}

// dispatch handles one request. keep is false when the connection must be
// closed afterwards.
func (c *connection) dispatch(ctx context.Context, msg *message) (keep bool, err error) {
	switch msg.tag() {
	case goldap.ApplicationUnbindRequest:
		logger.Debug("LDAP unbind", logger.KeyClientIP, c.clientIP, logger.KeyBindDN, c.boundDN)
		metrics.RecordLDAPOperation(c.server.metrics, "unbind", resultName(goldap.LDAPResultSuccess), 0)
		return false, nil

	case goldap.ApplicationAbandonRequest:
		return true, nil

	case goldap.ApplicationBindRequest:
		return true, c.handleBind(ctx, msg)

	case goldap.ApplicationSearchRequest:
		return true, c.handleSearch(ctx, msg)

	case goldap.ApplicationExtendedRequest:
		return true, c.reject(msg, goldap.LDAPResultProtocolError, "extended operations are not supported")
	}

	if _, ok := responseTag(msg.tag()); ok {
		return true, c.reject(msg, goldap.LDAPResultUnwillingToPerform, "the directory is read-only")
	}
	logger.Debug("Unknown LDAP operation", logger.KeyClientIP, c.clientIP, "tag", msg.tag())
	return false, nil
}

// reject answers an unsupported operation with code.
func (c *connection) reject(msg *message, code uint16, diagnostic string) error {
	op := goldap.ApplicationMap[msg.tag()]
	logger.Debug("Unsupported LDAP operation", logger.KeyClientIP, c.clientIP, logger.KeyOperation, op)
	metrics.RecordLDAPOperation(c.server.metrics, op, resultName(code), 0)

	tag, _ := responseTag(msg.tag())
	return c.write(envelope(msg.id, resultOp(tag, code, "", diagnostic)))
}

func (c *connection) write(p *ber.Packet) error {
	if w := c.server.config.Timeouts.Write; w > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(w)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	_, err := c.writer.Write(p.Bytes())
	return err
}

// begin opens the span and log context of one operation. finish records the
// outcome in the span, the metrics and the debug log.
func (c *connection) begin(ctx context.Context, op, span string, msg *message, attrs ...attribute.KeyValue) (context.Context, func(code uint16)) {
	start := time.Now()
	attrs = append(attrs, telemetry.LDAPMessageID(msg.id))
	if c.boundDN != "" {
		attrs = append(attrs, telemetry.LDAPBindDN(c.boundDN))
	}
	ctx, sp := telemetry.StartProtocolSpan(ctx, span, protocolName, c.clientIP, attrs...)

	lc := c.logCtx.WithOperation(op, msg.id).
		WithBind(c.boundDN, "").
		WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
	ctx = logger.WithContext(ctx, lc)

	return ctx, func(code uint16) {
		telemetry.SetAttributes(ctx, telemetry.LDAPResultCode(code))
		sp.End()
		metrics.RecordLDAPOperation(c.server.metrics, op, resultName(code), time.Since(start))
		logger.DebugCtx(ctx, "LDAP "+op+" completed",
			logger.ResultCode(code),
			logger.KeyResult, resultName(code),
			logger.DurationMs(lc.DurationMs()))
	}
}

func (c *connection) handleClose() {
	if r := recover(); r != nil {
		logger.Error("Panic in LDAP connection handler",
			logger.KeyClientAddr, c.conn.RemoteAddr().String(),
			"error", r,
			"stack", string(debug.Stack()))
	}
	_ = c.conn.Close()
}
