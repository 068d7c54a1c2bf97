// Package dapwire is the transport shim between the tree cache and a Debug
// Adapter Protocol server. It owns the single reader goroutine, matches
// responses to callers by request seq, and fans events out to subscribers.
// No client-side caching lives here.
package dapwire

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/go-dap"

	"github.com/agentic-research/scopetree/internal/vartree"
)

// ErrClosed is returned for requests issued after the connection shut down.
var ErrClosed = errors.New("dap connection closed")

// Direction tags transcript records as inbound or outbound traffic.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// TrafficRecorder receives a copy of every protocol message for
// diagnostics. Recording must never block the protocol path.
type TrafficRecorder interface {
	RecordTraffic(direction Direction, seq int, command string, success bool, payload []byte)
}

// Client is a DAP client over a single connection.
type Client struct {
	conn     io.ReadWriteCloser
	reader   *bufio.Reader
	recorder TrafficRecorder
	log      *slog.Logger

	writeMu sync.Mutex

	mu          sync.Mutex
	seq         int
	pending     map[int]chan dap.ResponseMessage
	subscribers map[int]chan dap.EventMessage
	nextSubID   int
	closed      bool
}

// Dial connects to a DAP adapter listening on addr.
func Dial(addr string, timeout time.Duration, log *slog.Logger) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial dap adapter %s: %w", addr, err)
	}
	return NewClient(conn, log), nil
}

// NewClient wraps an established connection. Run must be started for any
// request to complete.
func NewClient(conn io.ReadWriteCloser, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		conn:        conn,
		reader:      bufio.NewReader(conn),
		log:         log,
		pending:     make(map[int]chan dap.ResponseMessage),
		subscribers: make(map[int]chan dap.EventMessage),
	}
}

// SetRecorder installs a transcript recorder. Must be called before Run.
func (c *Client) SetRecorder(r TrafficRecorder) {
	c.recorder = r
}

// Run is the single-reader receive loop. It returns when the connection
// closes or ctx is cancelled, failing all pending requests with ErrClosed.
func (c *Client) Run(ctx context.Context) {
	defer c.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := dap.ReadProtocolMessage(c.reader)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				c.log.Debug("dap read failed", "err", err)
			}
			return
		}
		c.record(DirectionInbound, msg)

		switch m := msg.(type) {
		case dap.ResponseMessage:
			c.deliverResponse(m)
		case dap.EventMessage:
			c.publishEvent(m)
		default:
			// Reverse requests (runInTerminal etc.) are out of scope.
			c.log.Debug("ignoring unexpected dap message", "seq", msg.GetSeq())
		}
	}
}

// Close tears down the connection.
func (c *Client) Close() error {
	err := c.conn.Close()
	c.shutdown()
	return err
}

func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for seq, ch := range c.pending {
		close(ch)
		delete(c.pending, seq)
	}
}

func (c *Client) deliverResponse(m dap.ResponseMessage) {
	seq := m.GetResponse().RequestSeq
	c.mu.Lock()
	ch, ok := c.pending[seq]
	if ok {
		delete(c.pending, seq)
	}
	c.mu.Unlock()
	if ok {
		ch <- m
	}
}

func (c *Client) publishEvent(m dap.EventMessage) {
	c.mu.Lock()
	subs := make([]chan dap.EventMessage, 0, len(c.subscribers))
	for _, ch := range c.subscribers {
		subs = append(subs, ch)
	}
	c.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- m:
		default:
			// Slow subscribers drop events rather than stall the reader.
		}
	}
}

// Subscribe registers an event channel. The returned func unsubscribes.
func (c *Client) Subscribe(buffer int) (<-chan dap.EventMessage, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan dap.EventMessage, buffer)

	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = ch
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subscribers, id)
	}
}

func (c *Client) nextRequest(command string) (dap.Request, chan dap.ResponseMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return dap.Request{}, nil, ErrClosed
	}
	c.seq++
	req := dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: c.seq, Type: "request"},
		Command:         command,
	}
	ch := make(chan dap.ResponseMessage, 1)
	c.pending[c.seq] = ch
	return req, ch, nil
}

func (c *Client) abandon(seq int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, seq)
}

func (c *Client) send(m dap.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := dap.WriteProtocolMessage(c.conn, m); err != nil {
		return err
	}
	c.record(DirectionOutbound, m)
	return nil
}

func (c *Client) roundTrip(ctx context.Context, m dap.Message, seq int, ch chan dap.ResponseMessage) (dap.ResponseMessage, error) {
	if err := c.send(m); err != nil {
		c.abandon(seq)
		return nil, err
	}
	select {
	case <-ctx.Done():
		c.abandon(seq)
		return nil, ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		if !resp.GetResponse().Success {
			return resp, responseError(resp)
		}
		return resp, nil
	}
}

func responseError(m dap.ResponseMessage) error {
	r := m.GetResponse()
	msg := r.Message
	if er, ok := m.(*dap.ErrorResponse); ok && er.Body.Error != nil && er.Body.Error.Format != "" {
		msg = er.Body.Error.Format
	}
	if msg == "" {
		msg = "request failed"
	}
	return fmt.Errorf("dap %s: %s", r.Command, msg)
}

// Initialize performs the DAP initialize handshake.
func (c *Client) Initialize(ctx context.Context) error {
	req, ch, err := c.nextRequest("initialize")
	if err != nil {
		return err
	}
	msg := &dap.InitializeRequest{
		Request: req,
		Arguments: dap.InitializeRequestArguments{
			ClientID:             "scopetree",
			ClientName:           "scopetree",
			AdapterID:            "scopetree",
			Locale:               "en-US",
			LinesStartAt1:        true,
			ColumnsStartAt1:      true,
			PathFormat:           "path",
			SupportsVariableType: true,
		},
	}
	_, err = c.roundTrip(ctx, msg, req.Seq, ch)
	return err
}

// Attach sends an attach request with adapter-specific arguments.
func (c *Client) Attach(ctx context.Context, arguments any) error {
	raw, err := json.Marshal(arguments)
	if err != nil {
		return fmt.Errorf("encode attach arguments: %w", err)
	}
	req, ch, err := c.nextRequest("attach")
	if err != nil {
		return err
	}
	msg := &dap.AttachRequest{Request: req, Arguments: raw}
	_, err = c.roundTrip(ctx, msg, req.Seq, ch)
	return err
}

// ConfigurationDone signals the end of the configuration sequence.
func (c *Client) ConfigurationDone(ctx context.Context) error {
	req, ch, err := c.nextRequest("configurationDone")
	if err != nil {
		return err
	}
	msg := &dap.ConfigurationDoneRequest{Request: req}
	_, err = c.roundTrip(ctx, msg, req.Seq, ch)
	return err
}

// Threads lists the debuggee's threads.
func (c *Client) Threads(ctx context.Context) ([]dap.Thread, error) {
	req, ch, err := c.nextRequest("threads")
	if err != nil {
		return nil, err
	}
	resp, err := c.roundTrip(ctx, &dap.ThreadsRequest{Request: req}, req.Seq, ch)
	if err != nil {
		return nil, err
	}
	tr, ok := resp.(*dap.ThreadsResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected threads response %T", resp)
	}
	return tr.Body.Threads, nil
}

// StackTrace lists the stack frames of one thread, innermost first.
func (c *Client) StackTrace(ctx context.Context, threadID int) ([]dap.StackFrame, error) {
	req, ch, err := c.nextRequest("stackTrace")
	if err != nil {
		return nil, err
	}
	msg := &dap.StackTraceRequest{
		Request:   req,
		Arguments: dap.StackTraceArguments{ThreadId: threadID},
	}
	resp, err := c.roundTrip(ctx, msg, req.Seq, ch)
	if err != nil {
		return nil, err
	}
	str, ok := resp.(*dap.StackTraceResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected stackTrace response %T", resp)
	}
	return str.Body.StackFrames, nil
}

// Scopes lists the variable scopes of one stack frame.
func (c *Client) Scopes(ctx context.Context, frameID int) ([]vartree.RawScope, error) {
	req, ch, err := c.nextRequest("scopes")
	if err != nil {
		return nil, err
	}
	msg := &dap.ScopesRequest{
		Request:   req,
		Arguments: dap.ScopesArguments{FrameId: frameID},
	}
	resp, err := c.roundTrip(ctx, msg, req.Seq, ch)
	if err != nil {
		return nil, err
	}
	sr, ok := resp.(*dap.ScopesResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected scopes response %T", resp)
	}
	scopes := make([]vartree.RawScope, 0, len(sr.Body.Scopes))
	for _, s := range sr.Body.Scopes {
		scopes = append(scopes, vartree.RawScope{
			Name: s.Name,
			Ref:  s.VariablesReference,
		})
	}
	return scopes, nil
}

// Variables fetches the ordered child descriptors for a reference. This is
// the resolver contract consumed by the tree cache: a reference is valid
// only for the pause that issued it, and adapter failures that indicate a
// dead reference map to vartree.ErrStaleReference.
func (c *Client) Variables(ctx context.Context, ref int) ([]vartree.RawVariable, error) {
	req, ch, err := c.nextRequest("variables")
	if err != nil {
		return nil, err
	}
	msg := &dap.VariablesRequest{
		Request:   req,
		Arguments: dap.VariablesArguments{VariablesReference: ref},
	}
	resp, err := c.roundTrip(ctx, msg, req.Seq, ch)
	if err != nil {
		if resp != nil && staleReferenceMessage(err.Error()) {
			return nil, fmt.Errorf("%w: %v", vartree.ErrStaleReference, err)
		}
		return nil, err
	}
	vr, ok := resp.(*dap.VariablesResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected variables response %T", resp)
	}
	vars := make([]vartree.RawVariable, 0, len(vr.Body.Variables))
	for _, v := range vr.Body.Variables {
		vars = append(vars, vartree.RawVariable{
			Name:  v.Name,
			Value: v.Value,
			Type:  v.Type,
			Ref:   v.VariablesReference,
		})
	}
	return vars, nil
}

// Continue resumes execution of one thread (or all, adapter-dependent).
func (c *Client) Continue(ctx context.Context, threadID int) error {
	req, ch, err := c.nextRequest("continue")
	if err != nil {
		return err
	}
	msg := &dap.ContinueRequest{
		Request:   req,
		Arguments: dap.ContinueArguments{ThreadId: threadID},
	}
	_, err = c.roundTrip(ctx, msg, req.Seq, ch)
	return err
}

// Pause asks the adapter to stop one thread.
func (c *Client) Pause(ctx context.Context, threadID int) error {
	req, ch, err := c.nextRequest("pause")
	if err != nil {
		return err
	}
	msg := &dap.PauseRequest{
		Request:   req,
		Arguments: dap.PauseArguments{ThreadId: threadID},
	}
	_, err = c.roundTrip(ctx, msg, req.Seq, ch)
	return err
}

// Disconnect ends the debug session.
func (c *Client) Disconnect(ctx context.Context) error {
	req, ch, err := c.nextRequest("disconnect")
	if err != nil {
		return err
	}
	msg := &dap.DisconnectRequest{Request: req}
	_, err = c.roundTrip(ctx, msg, req.Seq, ch)
	return err
}

// staleReferenceMessage classifies adapter failure text for a variables
// request. Adapters phrase a dead reference differently (delve, debugpy,
// js-debug all have their own wording); anything that reads like "this
// handle no longer exists" is treated as a pause-boundary failure.
func staleReferenceMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range []string{
		"stale",
		"unknown variablesreference",
		"invalid variablesreference",
		"unknown variable reference",
		"no longer valid",
		"not paused",
		"process is running",
	} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func (c *Client) record(direction Direction, m dap.Message) {
	if c.recorder == nil {
		return
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return
	}
	command := ""
	success := true
	switch v := m.(type) {
	case dap.RequestMessage:
		command = v.GetRequest().Command
	case dap.ResponseMessage:
		command = v.GetResponse().Command
		success = v.GetResponse().Success
	case dap.EventMessage:
		command = v.GetEvent().Event
	}
	c.recorder.RecordTraffic(direction, m.GetSeq(), command, success, payload)
}
