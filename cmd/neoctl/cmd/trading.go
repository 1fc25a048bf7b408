package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/pilab-dev/neoproxy/cmd/neoctl/config"
	"github.com/pilab-dev/neoproxy/workerclient"
	"github.com/spf13/cobra"
)

var errNotLoggedIn = errors.New("no session in the current context, run 'neoctl login' first")

// sessionContext returns the current context and fails when it holds no session.
func sessionContext() (*config.Context, error) {
	currentCtx, err := config.GetCurrentContext()
	if err != nil {
		return nil, err
	}
	if currentCtx.SessionID == "" {
		return nil, errNotLoggedIn
	}
	return currentCtx, nil
}

func newTradingCmd(flags *globalFlags, op, short string) *cobra.Command {
	return &cobra.Command{
		Use:   op,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			currentCtx, err := sessionContext()
			if err != nil {
				return err
			}

			client := newWorkerClient(flags, currentCtx)
			resp, err := fetch(cmd.Context(), client, op, currentCtx.SessionID)
			if err != nil {
				return fmt.Errorf("%s failed: %w", op, err)
			}

			var payload json.RawMessage
			switch op {
			case "holdings":
				payload = resp.Holdings
			case "limits":
				payload = resp.Limits
			case "positions":
				payload = resp.Positions
			}
			if len(payload) == 0 {
				payload = json.RawMessage("null")
			}

			return printPayload(cmd.OutOrStdout(), flags.output, payload)
		},
	}
}

func fetch(ctx context.Context, client *workerclient.Client, op, sessionID string) (*workerclient.TradingResponse, error) {
	switch op {
	case "holdings":
		return client.Holdings(ctx, sessionID)
	case "limits":
		return client.Limits(ctx, sessionID)
	case "positions":
		return client.Positions(ctx, sessionID)
	default:
		return nil, fmt.Errorf("unknown operation %q", op)
	}
}

func newOrderCmd(flags *globalFlags, side string) *cobra.Command {
	return &cobra.Command{
		Use:     side + " <stock> <qty>",
		Short:   fmt.Sprintf("Place a %s market order (NSE cash, delivery, day validity)", side),
		Example: fmt.Sprintf("  neoctl %s HAL 1", side),
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.Atoi(args[1])
			if err != nil || qty <= 0 {
				return fmt.Errorf("qty must be a positive integer, got %q", args[1])
			}

			currentCtx, err := sessionContext()
			if err != nil {
				return err
			}

			client := newWorkerClient(flags, currentCtx)
			order := workerclient.Order{Qty: qty, Stock: args[0]}

			var receipt json.RawMessage
			if side == "buy" {
				receipt, err = client.Buy(cmd.Context(), currentCtx.SessionID, order)
			} else {
				receipt, err = client.Sell(cmd.Context(), currentCtx.SessionID, order)
			}
			if err != nil {
				return fmt.Errorf("%s order failed: %w", side, err)
			}

			appLogger.Info(cmd.Context(), "Order placed", map[string]interface{}{"side": side, "stock": args[0], "qty": qty})
			return printPayload(cmd.OutOrStdout(), flags.output, receipt)
		},
	}
}
