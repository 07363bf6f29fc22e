// Package transport implements the gRPC Transport Client of SPEC_FULL.md
// §4.1: dialing the target process, decoding §6.2's accepted URI forms,
// and exposing each RPC of api/console.proto as a Go method pair
// (events channel, errors channel) for server streams or a plain error
// return for the unary Pause/Resume calls.
package transport

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/taskscope/taskscope/internal/taskscopeerr"
	"github.com/taskscope/taskscope/internal/wire"
)

// DefaultTarget is the fallback target when none is configured (§6.2).
const DefaultTarget = "http://127.0.0.1:6669"

// unaryDeadline bounds Pause/Resume RPCs. It is a fixed constant; no
// option or config setting changes it.
const unaryDeadline = 5 * time.Second

const serviceName = "console.v1.Instrument"

var (
	methodWatchUpdates     = fmt.Sprintf("/%s/WatchUpdates", serviceName)
	methodWatchTaskDetails = fmt.Sprintf("/%s/WatchTaskDetails", serviceName)
	methodPause            = fmt.Sprintf("/%s/Pause", serviceName)
	methodResume           = fmt.Sprintf("/%s/Resume", serviceName)
	methodWatchState       = fmt.Sprintf("/%s/WatchState", serviceName)
)

// ErrVsockUnsupported is returned by Dial for every vsock:// target: this
// build has no vsock dialer on any platform. It is an error, not a panic.
var ErrVsockUnsupported = fmt.Errorf("%w: vsock targets are not supported on this platform", taskscopeerr.ErrConfiguration)

func init() {
	wire.RegisterCodec()
}

// Client wraps one gRPC connection to an instrumented process.
type Client struct {
	conn *grpc.ClientConn
}

// Dial parses target per §6.2 and opens a connection. It does not block
// waiting for the connection to become ready; the first RPC surfaces any
// dial-time failure.
func Dial(target string) (*Client, error) {
	if target == "" {
		target = DefaultTarget
	}
	dialTarget, opts, err := resolveTarget(target)
	if err != nil {
		return nil, err
	}
	conn, err := grpc.NewClient(dialTarget, opts...)
	if err != nil {
		return nil, taskscopeerr.Wrap(taskscopeerr.ErrTransport, err)
	}
	return &Client{conn: conn}, nil
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// resolveTarget turns one of §6.2's URI forms into a grpc-go dial target
// plus the dial options appropriate for its transport security.
func resolveTarget(raw string) (string, []grpc.DialOption, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", nil, taskscopeerr.Config("target", err)
	}

	switch u.Scheme {
	case "http":
		hostPort, err := targetHostPort(u)
		if err != nil {
			return "", nil, taskscopeerr.Config("target", err)
		}
		return hostPort, []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, nil
	case "https":
		hostPort, err := targetHostPort(u)
		if err != nil {
			return "", nil, taskscopeerr.Config("target", err)
		}
		return hostPort, []grpc.DialOption{grpc.WithTransportCredentials(credentials.NewTLS(nil))}, nil
	case "file":
		path := u.Path
		dialer := func(ctx context.Context, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", path)
		}
		return "unix:" + path, []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithContextDialer(dialer),
		}, nil
	case "vsock":
		return "", nil, ErrVsockUnsupported
	default:
		return "", nil, taskscopeerr.Config("target", fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
}

// callOpts selects the hand-rolled wire codec for every RPC on this
// connection.
func callOpts() []grpc.CallOption {
	return []grpc.CallOption{grpc.CallContentSubtype(wire.CodecName)}
}

// WatchUpdates opens the primary telemetry stream. The returned channels
// are both closed when ctx is canceled or the stream ends; at most one of
// them ever receives after closing.
func (c *Client) WatchUpdates(ctx context.Context) (<-chan *wire.Update, <-chan error) {
	updates := make(chan *wire.Update)
	errs := make(chan error, 1)

	go func() {
		defer close(updates)
		defer close(errs)

		stream, err := c.conn.NewStream(ctx, &grpc.StreamDesc{StreamName: "WatchUpdates", ServerStreams: true}, methodWatchUpdates, callOpts()...)
		if err != nil {
			errs <- taskscopeerr.Wrap(taskscopeerr.ErrTransport, err)
			return
		}
		if err := stream.SendMsg(&wire.Empty{}); err != nil {
			errs <- taskscopeerr.Wrap(taskscopeerr.ErrTransport, err)
			return
		}
		if err := stream.CloseSend(); err != nil {
			errs <- taskscopeerr.Wrap(taskscopeerr.ErrTransport, err)
			return
		}

		for {
			u := &wire.Update{}
			if err := stream.RecvMsg(u); err != nil {
				if err.Error() != "EOF" {
					errs <- taskscopeerr.Wrap(taskscopeerr.ErrTransport, err)
				}
				return
			}
			select {
			case updates <- u:
			case <-ctx.Done():
				return
			}
		}
	}()

	return updates, errs
}

// WatchTaskDetails opens one detail stream for a single task, closed by
// canceling ctx.
func (c *Client) WatchTaskDetails(ctx context.Context, taskID uint64) (<-chan *wire.TaskDetails, <-chan error) {
	details := make(chan *wire.TaskDetails)
	errs := make(chan error, 1)

	go func() {
		defer close(details)
		defer close(errs)

		stream, err := c.conn.NewStream(ctx, &grpc.StreamDesc{StreamName: "WatchTaskDetails", ServerStreams: true}, methodWatchTaskDetails, callOpts()...)
		if err != nil {
			errs <- taskscopeerr.Wrap(taskscopeerr.ErrTransport, err)
			return
		}
		req := &wire.TaskDetailsRequest{ID: wire.Id(taskID)}
		if err := stream.SendMsg(req); err != nil {
			errs <- taskscopeerr.Wrap(taskscopeerr.ErrTransport, err)
			return
		}
		if err := stream.CloseSend(); err != nil {
			errs <- taskscopeerr.Wrap(taskscopeerr.ErrTransport, err)
			return
		}

		for {
			d := &wire.TaskDetails{}
			if err := stream.RecvMsg(d); err != nil {
				if err.Error() != "EOF" {
					errs <- taskscopeerr.Wrap(taskscopeerr.ErrTransport, err)
				}
				return
			}
			select {
			case details <- d:
			case <-ctx.Done():
				return
			}
		}
	}()

	return details, errs
}

// WatchState opens the instrument-health stream.
func (c *Client) WatchState(ctx context.Context) (<-chan *wire.InstrumentState, <-chan error) {
	states := make(chan *wire.InstrumentState)
	errs := make(chan error, 1)

	go func() {
		defer close(states)
		defer close(errs)

		stream, err := c.conn.NewStream(ctx, &grpc.StreamDesc{StreamName: "WatchState", ServerStreams: true}, methodWatchState, callOpts()...)
		if err != nil {
			errs <- taskscopeerr.Wrap(taskscopeerr.ErrTransport, err)
			return
		}
		if err := stream.SendMsg(&wire.Empty{}); err != nil {
			errs <- taskscopeerr.Wrap(taskscopeerr.ErrTransport, err)
			return
		}
		if err := stream.CloseSend(); err != nil {
			errs <- taskscopeerr.Wrap(taskscopeerr.ErrTransport, err)
			return
		}

		for {
			st := &wire.InstrumentState{}
			if err := stream.RecvMsg(st); err != nil {
				if err.Error() != "EOF" {
					errs <- taskscopeerr.Wrap(taskscopeerr.ErrTransport, err)
				}
				return
			}
			select {
			case states <- st:
			case <-ctx.Done():
				return
			}
		}
	}()

	return states, errs
}

// Pause issues the unary Pause RPC under the fixed unaryDeadline.
func (c *Client) Pause(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, unaryDeadline)
	defer cancel()
	var resp wire.Empty
	if err := c.conn.Invoke(ctx, methodPause, &wire.Empty{}, &resp, callOpts()...); err != nil {
		return taskscopeerr.Wrap(taskscopeerr.ErrTransport, err)
	}
	return nil
}

// Resume issues the unary Resume RPC under the fixed unaryDeadline.
func (c *Client) Resume(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, unaryDeadline)
	defer cancel()
	var resp wire.Empty
	if err := c.conn.Invoke(ctx, methodResume, &wire.Empty{}, &resp, callOpts()...); err != nil {
		return taskscopeerr.Wrap(taskscopeerr.ErrTransport, err)
	}
	return nil
}

// targetHostPort validates that an http(s) target URI carries an explicit
// numeric port, since grpc-go's dial target resolver treats a bare
// hostname ambiguously.
func targetHostPort(u *url.URL) (string, error) {
	if u.Port() == "" {
		return "", fmt.Errorf("target %q is missing a port", u.Host)
	}
	if _, err := strconv.Atoi(u.Port()); err != nil {
		return "", fmt.Errorf("target %q has a non-numeric port", u.Host)
	}
	return u.Host, nil
}
