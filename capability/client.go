package capability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/deepnoodle-ai/payflow/retry"
)

// ClientOptions configures a Client.
type ClientOptions struct {
	Local    Provider
	External Provider
	Logger   *slog.Logger
}

// Client routes capability invocations to the provider for their class.
// Unrecognized names route to the local provider with a logged warning so
// handlers never fail on classification alone.
type Client struct {
	local    Provider
	external Provider
	logger   *slog.Logger
}

// NewClient returns a routing client over the two providers.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Local == nil {
		return nil, fmt.Errorf("local provider is required")
	}
	if opts.External == nil {
		return nil, fmt.Errorf("external provider is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		local:    opts.Local,
		external: opts.External,
		logger:   opts.Logger,
	}, nil
}

// Invoke executes a capability through the provider for its class.
func (c *Client) Invoke(ctx context.Context, name Name, params map[string]any) (map[string]any, error) {
	class, known := Classify(name)
	if !known {
		c.logger.Warn("unknown capability, routing to local provider", "capability", string(name))
		class = ClassLocal
	}

	var (
		result map[string]any
		err    error
	)
	if class == ClassExternal {
		// External systems fail transiently; local capabilities do not.
		err = retry.Do(ctx, func() error {
			result, err = c.external.Execute(ctx, name, params)
			return err
		}, retry.WithMaxRetries(2), retry.WithBaseWait(100*time.Millisecond))
	} else {
		result, err = c.local.Execute(ctx, name, params)
	}
	if err != nil {
		return nil, fmt.Errorf("capability %s (%s): %w", name, class, err)
	}
	return result, nil
}
