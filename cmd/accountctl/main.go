// accountctl is the paper broker's maintenance CLI: create accounts,
// inspect positions, force-close a position, or run the expiration
// sweep by hand, without standing up the REST server. Adapted from the
// teacher's single-purpose maintenance scripts (reset_positions,
// cleanup_positions) into one verb-dispatched tool over the broker
// façade rather than a live Tradier client.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/scranton-trading/paperbroker/internal/account"
	"github.com/scranton-trading/paperbroker/internal/config"
	"github.com/scranton-trading/paperbroker/internal/estimator"
	"github.com/scranton-trading/paperbroker/internal/facade"
	"github.com/scranton-trading/paperbroker/internal/quotemock"
	"github.com/scranton-trading/paperbroker/internal/validate"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	verb := os.Args[1]
	args := os.Args[2:]

	configPath, args := extractConfigFlag(args)
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	store, err := account.NewJSONStore(cfg.Storage.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening account store at %s: %v\n", cfg.Storage.Path, err)
		os.Exit(1)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel) // CLI output is on stdout; keep broker logging quiet

	est, err := estimator.Factory(cfg.Estimator.Name, cfg.Estimator.DecimalParams())
	if err != nil {
		fmt.Fprintf(os.Stderr, "initializing estimator: %v\n", err)
		os.Exit(1)
	}

	// No live quote vendor for offline maintenance; marks/margin are
	// best-effort and fall back to each position's AvgPrice.
	broker := facade.New(store, quotemock.New(), est, validate.Limits{}, logger)

	ctx := context.Background()
	switch verb {
	case "create":
		cmdCreate(ctx, broker, args)
	case "list":
		cmdList(ctx, broker)
	case "show":
		cmdShow(ctx, broker, args)
	case "close":
		cmdClose(ctx, broker, args)
	case "expire":
		cmdExpire(ctx, broker, args)
	default:
		usage()
		os.Exit(1)
	}
}

// extractConfigFlag pulls a leading "-config value"/"-config=value" pair
// out of a subcommand's argument list before that list is handed to the
// subcommand's own flag.FlagSet, so -config can be shared across every
// verb without each one having to declare it.
func extractConfigFlag(args []string) (string, []string) {
	path := "config.yaml"
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-config" || arg == "--config":
			if i+1 < len(args) {
				path = args[i+1]
				i++
			}
		case strings.HasPrefix(arg, "-config="):
			path = strings.TrimPrefix(arg, "-config=")
		case strings.HasPrefix(arg, "--config="):
			path = strings.TrimPrefix(arg, "--config=")
		default:
			out = append(out, arg)
		}
	}
	return path, out
}

func usage() {
	fmt.Fprintln(os.Stderr, `accountctl: paper broker maintenance CLI

Usage:
  accountctl create  -owner NAME -balance AMOUNT
  accountctl list
  accountctl show    -account ID
  accountctl close   -account ID -symbol SYMBOL
  accountctl expire  -account ID`)
}

func cmdCreate(ctx context.Context, b *facade.Broker, args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	owner := fs.String("owner", "", "account owner name")
	balance := fs.Float64("balance", 0, "starting cash balance")
	fs.Parse(args) //nolint:errcheck

	if *owner == "" || *balance <= 0 {
		fmt.Fprintln(os.Stderr, "both -owner and a positive -balance are required")
		os.Exit(1)
	}

	acct, err := b.CreateAccount(ctx, *owner, decimal.NewFromFloat(*balance))
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating account: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("created account %s for %s with %s starting balance\n", acct.ID, acct.Owner, acct.StartingBalance.String())
}

func cmdList(ctx context.Context, b *facade.Broker) {
	ids, err := b.ListAccountIDs(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "listing accounts: %v\n", err)
		os.Exit(1)
	}
	for _, id := range ids {
		fmt.Println(id)
	}
}

func cmdShow(ctx context.Context, b *facade.Broker, args []string) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	accountID := fs.String("account", "", "account ID")
	fs.Parse(args) //nolint:errcheck
	requireAccountID(*accountID)

	summary, err := b.GetAccountSummary(ctx, *accountID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading account %s: %v\n", *accountID, err)
		os.Exit(1)
	}

	fmt.Printf("account:            %s\n", summary.AccountID)
	fmt.Printf("cash balance:       %s\n", summary.CashBalance.String())
	fmt.Printf("positions value:    %s\n", summary.PositionsValue.String())
	fmt.Printf("unrealized pnl:     %s\n", summary.UnrealizedPnL.String())
	fmt.Printf("realized pnl:       %s\n", summary.RealizedPnL.String())
	fmt.Printf("maintenance margin: %s\n", summary.MaintenanceMargin.String())
	fmt.Printf("total equity:       %s\n", summary.TotalEquity.String())
	fmt.Printf("excess liquidity:   %s\n", summary.ExcessLiquidity.String())
	fmt.Printf("open positions:     %d\n", summary.PositionCount)

	positions, err := b.GetPositions(ctx, *accountID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading positions: %v\n", err)
		os.Exit(1)
	}
	for _, p := range positions {
		fmt.Printf("  %-22s qty=%-6d avg=%-10s realized=%s\n", p.Asset.Symbol(), p.Quantity, p.AvgPrice.String(), p.RealizedPnL.String())
	}
}

func cmdClose(ctx context.Context, b *facade.Broker, args []string) {
	fs := flag.NewFlagSet("close", flag.ExitOnError)
	accountID := fs.String("account", "", "account ID")
	symbol := fs.String("symbol", "", "position symbol to close")
	fs.Parse(args) //nolint:errcheck
	requireAccountID(*accountID)
	if *symbol == "" {
		fmt.Fprintln(os.Stderr, "-symbol is required")
		os.Exit(1)
	}

	result := b.ClosePosition(ctx, *accountID, *symbol)
	fmt.Printf("outcome: %v\n", result.Outcome)
	if result.Err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", result.Err)
		os.Exit(1)
	}
}

func cmdExpire(ctx context.Context, b *facade.Broker, args []string) {
	fs := flag.NewFlagSet("expire", flag.ExitOnError)
	accountID := fs.String("account", "", "account ID")
	fs.Parse(args) //nolint:errcheck
	requireAccountID(*accountID)

	result, err := b.RunExpirations(ctx, *accountID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "running expiration sweep: %v\n", err)
		os.Exit(1)
	}
	for _, ev := range result.Events {
		fmt.Printf("%-22s %s intrinsic=%s realized=%s cash=%s\n", ev.Symbol, ev.Kind, ev.IntrinsicValue.String(), ev.RealizedPnL.String(), ev.CashImpact.String())
	}
	fmt.Printf("settled %d position(s)\n", len(result.Events))
}

func requireAccountID(accountID string) {
	if accountID == "" {
		fmt.Fprintln(os.Stderr, "-account is required")
		os.Exit(1)
	}
}
