// Package app wires the kiban CLI: flag parsing, configuration, kit
// construction and envelope rendering around the kit operations.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kibankit/kiban-agent-kit/agent"
	"github.com/kibankit/kiban-agent-kit/internal/cache"
	"github.com/kibankit/kiban-agent-kit/internal/config"
	kiterr "github.com/kibankit/kiban-agent-kit/internal/errors"
	"github.com/kibankit/kiban-agent-kit/internal/market"
	"github.com/kibankit/kiban-agent-kit/internal/model"
	"github.com/kibankit/kiban-agent-kit/internal/out"
	"github.com/kibankit/kiban-agent-kit/internal/version"
	"github.com/kibankit/kiban-agent-kit/kit"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner      *Runner
	flags       config.GlobalFlags
	settings    config.Settings
	log         *zap.Logger
	cache       *cache.Store
	kit         *kit.Kit
	lastCommand string
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	err = normalizeRunError(err)
	state.shutdown()
	if err == nil {
		return 0
	}
	state.renderError("", err)
	return kiterr.ExitCode(err)
}

func (s *runtimeState) shutdown() {
	if s.kit != nil {
		s.kit.Close()
	}
	if s.cache != nil {
		_ = s.cache.Close()
	}
	if s.log != nil {
		_ = s.log.Sync()
	}
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Wallet and token toolkit for EVM agents",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return err
			}
			s.settings = settings
			s.lastCommand = trimRootPath(cmd.CommandPath())
			s.log = newLogger(s.runner.stderr, settings.Verbose)
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return kiterr.Wrap(kiterr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&s.flags.RPCURL, "rpc-url", "", "Chain RPC endpoint")
	cmd.PersistentFlags().Int64Var(&s.flags.ChainID, "chain-id", 0, "EVM chain id (default 1)")
	cmd.PersistentFlags().StringVar(&s.flags.PrivateKey, "private-key", "", "Hex private key (prefer KIBAN_PRIVATE_KEY)")
	cmd.PersistentFlags().StringVar(&s.flags.EnableTools, "enable-tools", "", "Allowlist tool names (comma-separated)")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "HTTP request timeout")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per HTTP request")
	cmd.PersistentFlags().BoolVar(&s.flags.NoCache, "no-cache", false, "Disable the market data cache")
	cmd.PersistentFlags().StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated)")
	cmd.PersistentFlags().BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	cmd.PersistentFlags().BoolVar(&s.flags.Verbose, "verbose", false, "Log debug detail to stderr")

	cmd.AddCommand(s.newWalletCommand())
	cmd.AddCommand(s.newTokenCommand())
	cmd.AddCommand(s.newTransferCommand())
	cmd.AddCommand(s.newApproveCommand())
	cmd.AddCommand(s.newSwapCommand())
	cmd.AddCommand(s.newMarketCommand())
	cmd.AddCommand(s.newToolsCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// ensureKit dials the chain lazily so version, help and tools listings
// never touch the network.
func (s *runtimeState) ensureKit(ctx context.Context) (*kit.Kit, error) {
	if s.kit != nil {
		return s.kit, nil
	}
	if s.settings.CacheEnabled && s.cache == nil {
		store, err := cache.Open(s.settings.CachePath, s.settings.CacheLockPath, market.CacheTTL, market.CacheMaxStale)
		if err != nil {
			return nil, kiterr.Wrap(kiterr.CodeInternal, "open cache", err)
		}
		s.cache = store
	}
	k, err := kit.New(ctx, kit.Config{
		ChainID:       s.settings.ChainID,
		RPCURL:        s.settings.RPCURL,
		PrivateKey:    s.settings.PrivateKey,
		MarketAPIBase: s.settings.MarketAPIBase,
		HTTPTimeout:   s.settings.Timeout,
		HTTPRetries:   s.settings.Retries,
		CacheStore:    s.cache,
		Logger:        s.log,
	})
	if err != nil {
		return nil, err
	}
	s.kit = k
	return k, nil
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newWalletCommand() *cobra.Command {
	root := &cobra.Command{Use: "wallet", Short: "Wallet identity and balances"}

	address := &cobra.Command{
		Use:   "address",
		Short: "Print the configured wallet address",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runCommand(cmd, func(ctx context.Context, k *kit.Kit) (any, error) {
				addr := k.Address()
				if addr == "" {
					return nil, kiterr.New(kiterr.CodeConfig, "no wallet configured; set KIBAN_PRIVATE_KEY")
				}
				return map[string]any{"address": addr, "chain_id": k.ChainID()}, nil
			})
		},
	}

	balance := &cobra.Command{
		Use:   "balance [address]",
		Short: "Native balance of the wallet or a given address",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) == 1 {
				target = args[0]
			}
			return s.runCommand(cmd, func(ctx context.Context, k *kit.Kit) (any, error) {
				return k.GetNativeBalance(ctx, target)
			})
		},
	}

	root.AddCommand(address, balance)
	return root
}

func (s *runtimeState) newTokenCommand() *cobra.Command {
	root := &cobra.Command{Use: "token", Short: "ERC20 token reads"}

	info := &cobra.Command{
		Use:   "info <token>",
		Short: "Token metadata and wallet balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runCommand(cmd, func(ctx context.Context, k *kit.Kit) (any, error) {
				return k.GetTokenInfo(ctx, args[0])
			})
		},
	}

	allowance := &cobra.Command{
		Use:   "allowance <token> <spender>",
		Short: "Current allowance granted to a spender",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runCommand(cmd, func(ctx context.Context, k *kit.Kit) (any, error) {
				return k.GetAllowance(ctx, args[0], args[1])
			})
		},
	}

	root.AddCommand(info, allowance)
	return root
}

func (s *runtimeState) newTransferCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfer <token> <to> <amount>",
		Short: "Send ETH or an ERC20 token",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runCommand(cmd, func(ctx context.Context, k *kit.Kit) (any, error) {
				stop := s.startSpinner("waiting for transfer to confirm")
				defer stop()
				return k.TransferToken(ctx, args[0], args[1], args[2])
			})
		},
	}
	return cmd
}

func (s *runtimeState) newApproveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <token> <spender> <amount>",
		Short: "Approve a spender for an exact token allowance",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runCommand(cmd, func(ctx context.Context, k *kit.Kit) (any, error) {
				stop := s.startSpinner("waiting for approval to confirm")
				defer stop()
				return k.ApproveToken(ctx, args[0], args[1], args[2])
			})
		},
	}
	return cmd
}

func (s *runtimeState) newSwapCommand() *cobra.Command {
	root := &cobra.Command{Use: "swap", Short: "Token swaps via Uniswap V3"}
	var slippage float64

	quote := &cobra.Command{
		Use:   "quote <token-in> <token-out> <amount>",
		Short: "Quote an exact-input swap",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runCommand(cmd, func(ctx context.Context, k *kit.Kit) (any, error) {
				params := kit.SwapParams{TokenIn: args[0], TokenOut: args[1], Amount: args[2]}
				if cmd.Flags().Changed("slippage") {
					params.SlippagePercent = &slippage
				}
				return k.GetSwapQuote(ctx, params)
			})
		},
	}
	quote.Flags().Float64Var(&slippage, "slippage", 0, "Max slippage percent (default 0.5, 0 demands the quoted amount)")

	var executeSlippage float64
	var executeRecipient string
	execute := &cobra.Command{
		Use:   "execute <token-in> <token-out> <amount>",
		Short: "Execute an exact-input swap with a fresh quote",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runCommand(cmd, func(ctx context.Context, k *kit.Kit) (any, error) {
				stop := s.startSpinner("waiting for swap to confirm")
				defer stop()
				params := kit.SwapParams{TokenIn: args[0], TokenOut: args[1], Amount: args[2], Recipient: executeRecipient}
				if cmd.Flags().Changed("slippage") {
					params.SlippagePercent = &executeSlippage
				}
				return k.SwapTokens(ctx, params)
			})
		},
	}
	execute.Flags().Float64Var(&executeSlippage, "slippage", 0, "Max slippage percent (default 0.5, 0 demands the quoted amount)")
	execute.Flags().StringVar(&executeRecipient, "recipient", "", "Address that receives the output (default the wallet)")

	root.AddCommand(quote, execute)
	return root
}

func (s *runtimeState) newMarketCommand() *cobra.Command {
	root := &cobra.Command{Use: "market", Short: "Market data lookups"}

	tokenCmd := &cobra.Command{
		Use:   "token <address>",
		Short: "Trading pairs for a token contract address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runCachedCommand(cmd, func(ctx context.Context, k *kit.Kit) (any, model.CacheStatus, error) {
				return k.GetTokenByAddress(ctx, args[0])
			})
		},
	}

	search := &cobra.Command{
		Use:   "search <ticker>",
		Short: "Top tokens matching a ticker, by 24h volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runCachedCommand(cmd, func(ctx context.Context, k *kit.Kit) (any, model.CacheStatus, error) {
				return k.SearchTokenByTicker(ctx, args[0])
			})
		},
	}

	root.AddCommand(tokenCmd, search)
	return root
}

// newToolsCommand prints the agent tool catalog without dialing the
// chain, so hosts can introspect the surface offline.
func (s *runtimeState) newToolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the agent tool catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := agent.Tools(nil, s.settings.EnableTools)
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), catalog, nil, cacheMetaBypass())
		},
	}
}

type commandFn func(ctx context.Context, k *kit.Kit) (any, error)

func (s *runtimeState) runCommand(cmd *cobra.Command, fn commandFn) error {
	return s.runCachedCommand(cmd, func(ctx context.Context, k *kit.Kit) (any, model.CacheStatus, error) {
		data, err := fn(ctx, k)
		return data, cacheMetaBypass(), err
	})
}

type cachedCommandFn func(ctx context.Context, k *kit.Kit) (any, model.CacheStatus, error)

func (s *runtimeState) runCachedCommand(cmd *cobra.Command, fn cachedCommandFn) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	k, err := s.ensureKit(ctx)
	if err != nil {
		return err
	}
	data, cacheStatus, err := fn(ctx, k)
	if err != nil {
		return err
	}
	return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, cacheStatus)
}

// startSpinner shows progress on stderr in plain mode only, so JSON
// output stays machine-parseable.
func (s *runtimeState) startSpinner(message string) func() {
	if s.settings.OutputMode != "plain" {
		return func() {}
	}
	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(s.runner.stderr))
	sp.Suffix = " " + message
	sp.Start()
	return sp.Stop
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string, cacheStatus model.CacheStatus) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Wallet:    s.walletMeta(),
			Cache:     cacheStatus,
		},
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) renderError(commandPath string, err error) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := kiterr.ExitCode(err)
	typ := kiterr.Code(code).String()
	message := err.Error()
	if kitErr, ok := kiterr.As(err); ok {
		message = kitErr.Message
		if kitErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", kitErr.Message, kitErr.Cause)
		}
	}

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    nil,
		Error: &model.ErrorBody{
			Code:    code,
			Type:    typ,
			Message: message,
		},
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Wallet:    s.walletMeta(),
			Cache:     cacheMetaBypass(),
		},
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

func (s *runtimeState) walletMeta() string {
	if s.kit == nil {
		return ""
	}
	return s.kit.Address()
}

func newRequestID() string {
	return uuid.NewString()
}

func cacheMetaBypass() model.CacheStatus {
	return model.CacheStatus{Status: "bypass"}
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := kiterr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return kiterr.Wrap(kiterr.CodeUsage, "invalid command input", err)
	}
	return kiterr.Wrap(kiterr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	msg := err.Error()
	for _, marker := range []string{"unknown command", "unknown flag", "accepts", "requires", "invalid argument"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func newLogger(w io.Writer, verbose bool) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	encoderCfg := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.AddSync(w),
		level,
	)
	return zap.New(core)
}
