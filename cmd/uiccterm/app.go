package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/areese/uicc-terminal/config"
	"github.com/areese/uicc-terminal/logger"
	"github.com/areese/uicc-terminal/terminal"
)

type app struct {
	configPath string
	modem      string
	timeout    time.Duration
	debug      bool

	// tapi overrides the telephony connector from the configuration.
	tapi terminal.TapiConstructor
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "uiccterm",
		Short: "Send APDUs to the SIM through the UICC terminal",
		Long: `uiccterm opens the UICC terminal and sends requests to the SIM through the
telephony daemon. Responses carrying an FCP or FCI template are decoded.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "configuration file (default: search for uicc.yaml)")
	flags.StringVar(&a.modem, "modem", "", "modem to use (default: the first one)")
	flags.DurationVar(&a.timeout, "timeout", 0, "request timeout (default: from configuration)")
	flags.BoolVarP(&a.debug, "debug", "d", false, "log debug messages")

	root.AddCommand(
		&cobra.Command{
			Use:   "name",
			Short: "Print the terminal name",
			Args:  cobra.NoArgs,
			RunE:  a.withTerminal(false, cmdName),
		},
		&cobra.Command{
			Use:   "present",
			Short: "Report whether the SIM is ready",
			Args:  cobra.NoArgs,
			RunE:  a.withTerminal(true, cmdPresent),
		},
		&cobra.Command{
			Use:   "atr",
			Short: "Print the answer to reset of the SIM",
			Args:  cobra.NoArgs,
			RunE:  a.withTerminal(true, cmdATR),
		},
		&cobra.Command{
			Use:     "send <apdu>",
			Short:   "Send a command APDU, given in hex",
			Example: "  uiccterm send 00A4040000",
			Args:    cobra.MinimumNArgs(1),
			RunE:    a.withTerminal(true, cmdSend),
		},
		&cobra.Command{
			Use:   "shell",
			Short: "Send command APDUs interactively",
			Args:  cobra.NoArgs,
			RunE:  a.withTerminal(true, cmdShell),
		},
	)
	return root
}

type commandFunc func(ctx context.Context, t *terminal.UICCTerminal, w io.Writer, args []string) error

// withTerminal runs fn against a terminal built from the configuration,
// initialized when initialize is set.
func (a *app) withTerminal(initialize bool, fn commandFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		if a.modem != "" {
			cfg.WithModem(a.modem)
		}
		if a.timeout > 0 {
			cfg.WithTimeout(a.timeout)
		}
		cfg.WithDebug(a.debug || cfg.Log.Debug)

		zl, err := logger.NewZeroLogger(cfg.Log.LoggerConfig("uiccterm"))
		if err != nil {
			return err
		}
		defer zl.Close()

		tapi := a.tapi
		if tapi == nil {
			tapi = cfg.TapiConstructor()
		}
		t := terminal.NewUICCTerminal(tapi, cfg.TerminalOptions(zl)...)
		if initialize {
			if err := t.Initialize(); err != nil {
				return err
			}
			defer t.Finalize()
		}
		return fn(cmd.Context(), t, cmd.OutOrStdout(), args)
	}
}

func cmdName(_ context.Context, t *terminal.UICCTerminal, w io.Writer, _ []string) error {
	fmt.Fprintln(w, t.Name())
	return nil
}

func cmdPresent(_ context.Context, t *terminal.UICCTerminal, w io.Writer, _ []string) error {
	if !t.IsSecureElementPresence() {
		return fmt.Errorf("%s: no secure element present", t.Name())
	}
	fmt.Fprintf(w, "%s: present\n", t.Name())
	return nil
}

func cmdATR(ctx context.Context, t *terminal.UICCTerminal, w io.Writer, _ []string) error {
	atr, err := t.GetATRSync(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, strings.ToUpper(hex.EncodeToString(atr)))
	return nil
}

func cmdSend(ctx context.Context, t *terminal.UICCTerminal, w io.Writer, args []string) error {
	apdu, err := parseAPDU(strings.Join(args, ""))
	if err != nil {
		return err
	}
	resp, err := t.TransmitSync(ctx, apdu)
	if err != nil {
		return err
	}
	fmt.Fprint(w, formatResponse(resp))
	return nil
}
