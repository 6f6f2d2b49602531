// Package parley provides a high-level façade over the session registry,
// the streaming dispatcher and the trackers, so a frontend wires one Client
// instead of assembling the layers itself. Most applications interact with
// this package by:
//  1. Creating a Client via New() around a core.Engine
//  2. Attaching a DisplaySink (usually through a bridge adapter)
//  3. Starting or resuming a session and calling Send per user message
//
// All defaults are safe for local development and testing; frontends
// typically supply a bridge-wrapped sink and a structured logger.
package parley

import (
	"context"
	"time"

	"parley/core"
	"parley/dispatch"
	"parley/logging"
	"parley/session"
	"parley/tracker"
)

// Options configures the Client instance.
type Options struct {
	// Sink receives display updates; wrap it in a bridge adapter when the
	// frontend runs its own loop. Defaults to a no-op sink.
	Sink core.DisplaySink

	// Interval overrides the streaming delta throttle.
	Interval time.Duration

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Client is the high-level façade aggregating the session layer, the
// dispatcher and the trackers for one frontend surface.
type Client struct {
	registry   *session.Registry
	dispatcher *dispatch.Dispatcher
	sink       core.DisplaySink
	logger     logging.Logger

	agents  *tracker.AgentTracker
	recipes *tracker.RecipeTracker
	toolLog *tracker.ToolLog
}

// New creates a Client over engine with optional overrides.
func New(engine core.Engine, optFns ...func(o *Options)) *Client {
	opts := Options{
		Sink:   core.BaseSink{},
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	agents := tracker.NewAgentTracker()
	recipes := tracker.NewRecipeTracker()
	toolLog := tracker.NewToolLog()

	d := dispatch.New(opts.Sink, func(o *dispatch.Options) {
		if opts.Interval > 0 {
			o.Interval = opts.Interval
		}
		o.Agents = agents
		o.Recipes = recipes
		o.ToolLog = toolLog
		o.Logger = opts.Logger
	})

	return &Client{
		registry: session.NewRegistry(engine, func(o *session.Options) {
			o.Logger = opts.Logger
		}),
		dispatcher: d,
		sink:       opts.Sink,
		logger:     opts.Logger,
		agents:     agents,
		recipes:    recipes,
		toolLog:    toolLog,
	}
}

// StartSession opens a new engine session and wires its streaming
// callbacks. An empty conversationID selects the default slot.
func (c *Client) StartSession(ctx context.Context, conversationID, workingDir, model string) (*session.Handle, error) {
	h, err := c.registry.StartNewSession(ctx, conversationID, workingDir, model)
	if err != nil {
		return nil, err
	}
	c.dispatcher.Wire(h)
	return h, nil
}

// ResumeSession re-attaches an existing engine session and wires its
// streaming callbacks.
func (c *Client) ResumeSession(ctx context.Context, sessionID, conversationID, workingDir, model string) (*session.Handle, error) {
	h, err := c.registry.ResumeSession(ctx, sessionID, conversationID, workingDir, model)
	if err != nil {
		return nil, err
	}
	c.dispatcher.Wire(h)
	return h, nil
}

// Send runs one full turn: echoes the user message, drives the engine, and
// posts the final reply or error to the sink. The returned text is the
// engine's complete response.
func (c *Client) Send(ctx context.Context, message, conversationID string) (string, error) {
	c.sink.AddUserMessage(message)
	c.sink.StartProcessing("Thinking")
	defer c.sink.FinishProcessing()

	resp, err := c.registry.SendMessage(ctx, message, conversationID)
	if err != nil {
		c.sink.ShowError(err.Error())
		return "", err
	}
	if resp != "" {
		c.sink.AddAssistantMessage(resp)
	}
	return resp, nil
}

// EndSession closes a conversation; an empty ID targets the default.
func (c *Client) EndSession(ctx context.Context, conversationID string) {
	c.registry.EndSession(ctx, conversationID)
}

// SwitchModel changes the model of a conversation for subsequent turns.
func (c *Client) SwitchModel(model, conversationID string) bool {
	return c.registry.SwitchModel(model, conversationID)
}

// Registry exposes the underlying session registry.
func (c *Client) Registry() *session.Registry { return c.registry }

// Agents exposes the delegation tracker.
func (c *Client) Agents() *tracker.AgentTracker { return c.agents }

// Recipes exposes the recipe pipeline tracker.
func (c *Client) Recipes() *tracker.RecipeTracker { return c.recipes }

// ToolLog exposes the rolling tool call log.
func (c *Client) ToolLog() *tracker.ToolLog { return c.toolLog }
