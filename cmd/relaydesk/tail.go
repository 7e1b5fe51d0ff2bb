// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/relaydesk/relaydesk/internal/config"
	"github.com/relaydesk/relaydesk/internal/realtime"
	rderr "github.com/relaydesk/relaydesk/pkg/errors"
)

func newTailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Stream events from a running server",
		Long: `Subscribe to the websocket event stream as the given actor and print
each received event as a JSON line. Reconnects with the backoff settings
from the realtime config section; exits once reconnect attempts are
exhausted.`,
		RunE: runTail,
	}

	cmd.Flags().String("address", "127.0.0.1:18790", "server address to subscribe to")
	cmd.Flags().String("actor", "", "member id to subscribe as (required)")
	cmd.Flags().String("topics", "", "comma-separated extra topics beyond the actor's own")

	return cmd
}

func runTail(cmd *cobra.Command, _ []string) error {
	actor, _ := cmd.Flags().GetString("actor")
	if actor == "" {
		return rderr.New(rderr.CodeCLIInputInvalid, "--actor is required")
	}
	addr, _ := cmd.Flags().GetString("address")

	cfg, err := config.Load(resolveConfigPath(cmd))
	if err != nil {
		return err
	}

	var topics []string
	if raw, _ := cmd.Flags().GetString("topics"); raw != "" {
		for _, topic := range strings.Split(raw, ",") {
			if topic = strings.TrimSpace(topic); topic != "" {
				topics = append(topics, topic)
			}
		}
	}

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	sub := realtime.NewSubscriber(realtime.SubscriberOptions{
		Endpoint: "ws://" + addr + "/ws",
		ActorID:  actor,
		Topics:   topics,
		Tracker: realtime.TrackerOptions{
			BaseDelay:   cfg.Realtime.ReconnectBaseDelay,
			MaxDelay:    cfg.Realtime.ReconnectMaxDelay,
			MaxAttempts: cfg.Realtime.ReconnectAttempts,
			OnTransition: func(_, to realtime.ConnState, _ int) {
				if to == realtime.StateError {
					cancel()
				}
			},
		},
	})

	if err := sub.Connect(ctx); err != nil {
		return rderr.Wrapf(err, rderr.CodeCLIServerNotRunning, "connecting to %s", addr)
	}
	defer func() { _ = sub.Close() }()

	enc := json.NewEncoder(cmd.OutOrStdout())
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-sub.Events():
			if err := enc.Encode(evt); err != nil {
				return err
			}
		}
	}
}
