// Package client provides the RPC client pairing two channels into a
// request/response call: commands go out on one channel, responses come back
// on the other. It is typically used on the host side, over a suspending
// medium backend reaching the target through a debug transport.
package client

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/FerroO2000/condotto/channel"
	"github.com/FerroO2000/condotto/internal"
	"github.com/FerroO2000/condotto/internal/config"
	"github.com/FerroO2000/condotto/medium"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the client configuration.
const (
	DefaultConfigPollInterval = 10 * time.Millisecond
)

// Config contains the configuration for the RPC client.
//
// Each channel region is described either by explicit address and size, or
// by an address alone with a zero size, in which case the size is learned by
// attaching to a channel the target has already created.
type Config struct {
	// CmdAddr is the base address of the command channel.
	CmdAddr uint32
	// CmdSize is the command channel size in bytes; zero means attach to an
	// existing channel instead of creating one.
	CmdSize uint32

	// RspAddr is the base address of the response channel.
	RspAddr uint32
	// RspSize is the response channel size in bytes; zero means attach.
	RspSize uint32

	// PollInterval is the pause between response probes when no Delay
	// capability is supplied.
	PollInterval time.Duration
}

// NewConfig returns the default configuration for the RPC client.
// The channel addresses must still be filled in.
func NewConfig() *Config {
	return &Config{
		PollInterval: DefaultConfigPollInterval,
	}
}

// Validate checks the configuration.
func (c *Config) Validate(ac *config.AnomalyCollector) {
	config.CheckAligned(ac, "CmdAddr", &c.CmdAddr, 4)
	config.CheckAligned(ac, "RspAddr", &c.RspAddr, 4)
	config.CheckNotNegative(ac, "PollInterval", &c.PollInterval, DefaultConfigPollInterval)
	config.CheckNotZero(ac, "PollInterval", &c.PollInterval, DefaultConfigPollInterval)
}

/////////////
//  DELAY  //
/////////////

// Delay is the yield capability used between response probes. It keeps the
// client free of any particular concurrency runtime: supply your own to
// integrate with a scheduler, or leave it nil to get a timer-based delay.
type Delay func(ctx context.Context) error

func timerDelay(interval time.Duration) Delay {
	return func(ctx context.Context) error {
		timer := time.NewTimer(interval)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
}

//////////////
//  CLIENT  //
//////////////

// Client is the RPC client. One call = publish the command bytes on the
// command channel, then poll the response channel until the target answers.
//
// Channels are short-lived by design: each phase opens a handle, uses it,
// and drops it, so the underlying capability is borrowed only while needed.
type Client struct {
	tel *internal.Telemetry

	io     medium.Io
	config *Config
	delay  Delay

	// Metrics
	requests      atomic.Int64
	requestErrors atomic.Int64
}

// New returns a new RPC client over the given medium capability.
// A nil delay falls back to a timer honoring the configured poll interval.
func New(io medium.Io, cfg *Config, delay Delay) *Client {
	tel := internal.NewTelemetry("client", "rpc")

	config.NewValidator(tel).Validate(cfg)

	if delay == nil {
		delay = timerDelay(cfg.PollInterval)
	}

	client := &Client{
		tel: tel,

		io:     io,
		config: cfg,
		delay:  delay,
	}

	client.tel.NewCounter("requests", func() int64 { return client.requests.Load() })
	client.tel.NewCounter("request_errors", func() int64 { return client.requestErrors.Load() })

	return client
}

// Request performs one RPC call: it sends the command bytes to the target
// and blocks, polling, until the response arrives. The format of command and
// response is application-specific. Cancellation is entirely the caller's
// concern: cancel the context to stop polling. No retries are performed.
func (c *Client) Request(ctx context.Context, command []byte) ([]byte, error) {
	ctx, span := c.tel.NewTrace(ctx, "rpc request")
	defer span.End()

	span.SetAttributes(attribute.Int("command_bytes", len(command)))

	c.requests.Add(1)

	response, err := c.request(ctx, command)
	if err != nil {
		c.requestErrors.Add(1)
		c.tel.LogError("request failed", err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("response_bytes", len(response)))

	return response, nil
}

func (c *Client) request(ctx context.Context, command []byte) ([]byte, error) {
	// Send phase: open the command channel, publish, drop the handle.
	cmdCh, err := c.cmdChannel(ctx)
	if err != nil {
		return nil, err
	}

	if err := cmdCh.PublishBytes(ctx, command); err != nil {
		return nil, err
	}

	c.tel.LogDebug("command sent", "bytes", len(command))

	// Receive phase: open the response channel, poll, consume.
	rspCh, err := c.rspChannel(ctx)
	if err != nil {
		return nil, err
	}

	size, err := c.waitResponse(ctx, rspCh)
	if err != nil {
		return nil, err
	}

	response := make([]byte, size)
	received, err := rspCh.ConsumeBytes(ctx, response)
	if err != nil {
		return nil, err
	}

	if received != size {
		c.tel.LogWarn("short response", "expected", size, "received", received)
		response = response[:received]
	}

	c.tel.LogDebug("response received", "bytes", received)

	return response, nil
}

func (c *Client) waitResponse(ctx context.Context, rspCh *channel.Channel) (int, error) {
	for {
		size, ok, err := rspCh.DataAvailable(ctx)
		if err != nil {
			return 0, err
		}
		if ok {
			return size, nil
		}

		// Yield between probes to avoid spinning on the medium
		if err := c.delay(ctx); err != nil {
			return 0, err
		}
	}
}

func (c *Client) cmdChannel(ctx context.Context) (*channel.Channel, error) {
	if c.config.CmdSize > 0 {
		return channel.Create(ctx, c.io, channel.RoleProducer, c.config.CmdAddr, c.config.CmdSize)
	}
	return channel.Attach(ctx, c.io, channel.RoleProducer, c.config.CmdAddr)
}

func (c *Client) rspChannel(ctx context.Context) (*channel.Channel, error) {
	if c.config.RspSize > 0 {
		return channel.Create(ctx, c.io, channel.RoleConsumer, c.config.RspAddr, c.config.RspSize)
	}
	return channel.Attach(ctx, c.io, channel.RoleConsumer, c.config.RspAddr)
}
