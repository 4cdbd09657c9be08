package realtime

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

const (
	ssePath  = "/realtime/stream"
	emitPath = "/realtime/emit"
)

// SSETransport receives events over a server-sent event stream and sends
// client events as POST requests tagged with the stream's session id.
type SSETransport struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
}

// NewSSETransport creates a transport for baseURL. hc must not carry a
// timeout, since streams stay open indefinitely; nil selects a plain client.
func NewSSETransport(baseURL string, tokens TokenSource, hc *http.Client) *SSETransport {
	if hc == nil {
		hc = &http.Client{}
	}
	return &SSETransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		http:    hc,
	}
}

func (t *SSETransport) Dial(ctx context.Context) (Conn, error) {
	sid := uuid.NewString()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+ssePath+"?sid="+url.QueryEscape(sid), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	t.authorize(req)

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("open stream: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return &sseConn{
		transport: t,
		sid:       sid,
		body:      resp.Body,
		reader:    bufio.NewReader(resp.Body),
	}, nil
}

func (t *SSETransport) authorize(req *http.Request) {
	if t.tokens == nil {
		return
	}
	if tok := t.tokens.Current(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
}

type sseConn struct {
	transport *SSETransport
	sid       string
	body      io.ReadCloser
	reader    *bufio.Reader
}

func (c *sseConn) Send(ctx context.Context, event string, data []byte) error {
	payload, err := sonic.ConfigStd.Marshal(Envelope{SID: c.sid, Event: event, Data: data})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.transport.baseURL+emitPath, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.transport.authorize(req)

	resp, err := c.transport.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("emit %s: status %d", event, resp.StatusCode)
	}
	return nil
}

// Receive reads the next event frame. A frame without an event name carries
// an Envelope in its data.
func (c *sseConn) Receive() (Message, error) {
	var (
		event string
		data  bytes.Buffer
	)
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && line == "" {
				return Message{}, io.EOF
			}
			if !errors.Is(err, io.EOF) {
				return Message{}, err
			}
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if err != nil {
				return Message{}, io.ErrUnexpectedEOF
			}
			if data.Len() == 0 && event == "" {
				continue
			}
			return frameMessage(event, data.Bytes())
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			event = value
		case "data":
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(value)
		}
		if err != nil {
			return Message{}, io.ErrUnexpectedEOF
		}
	}
}

func frameMessage(event string, data []byte) (Message, error) {
	payload := append([]byte(nil), data...)
	if event != "" {
		return Message{Event: event, Data: payload}, nil
	}
	var env Envelope
	if err := sonic.ConfigStd.Unmarshal(payload, &env); err != nil || env.Event == "" {
		return Message{Event: "message", Data: payload}, nil
	}
	return Message{Event: env.Event, Data: env.Data}, nil
}

func (c *sseConn) Close() error {
	return c.body.Close()
}
