package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/areese/uicc-terminal/terminal"
)

const shellHelp = `Commands:
    <hex>     send a command APDU, e.g. 00A40004023F00
    atr       print the answer to reset
    present   report whether the SIM is ready
    help      print this message
    exit      leave the shell
`

var errQuit = errors.New("quit")

func cmdShell(ctx context.Context, t *terminal.UICCTerminal, w io.Writer, _ []string) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return runShell(ctx, t, os.Stdin, w, nil)
	}

	state, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("setting terminal to raw mode: %w", err)
	}
	defer func() { _ = term.Restore(fd, state) }()

	rw := struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}
	tty := term.NewTerminal(rw, t.Name()+"> ")
	return runShell(ctx, t, nil, tty, tty)
}

// runShell reads commands from tty when set, otherwise one per line from r.
func runShell(ctx context.Context, t *terminal.UICCTerminal, r io.Reader, w io.Writer, tty *term.Terminal) error {
	t.SetStatusCallback(func(name string, event terminal.Event, _ int, _ interface{}) {
		fmt.Fprintf(w, "%s: secure element %s\r\n", name, event)
	}, nil)
	defer t.SetStatusCallback(nil, nil)

	var scanner *bufio.Scanner
	if tty == nil {
		scanner = bufio.NewScanner(r)
	}

	for {
		var line string
		if tty != nil {
			l, err := tty.ReadLine()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
			line = l
		} else {
			if !scanner.Scan() {
				return scanner.Err()
			}
			line = scanner.Text()
		}

		out, err := shellLine(ctx, t, line)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			out = fmt.Sprintf("error: %v\n", err)
		}
		if tty != nil {
			out = strings.ReplaceAll(out, "\n", "\r\n")
		}
		fmt.Fprint(w, out)
	}
}

// shellLine runs one shell command and returns its output.
func shellLine(ctx context.Context, t *terminal.UICCTerminal, line string) (string, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", nil
	}

	switch strings.ToLower(line) {
	case "exit", "quit":
		return "", errQuit
	case "help", "?":
		return shellHelp, nil
	case "present":
		if t.IsSecureElementPresence() {
			return "present\n", nil
		}
		return "not present\n", nil
	case "atr":
		var b strings.Builder
		if err := cmdATR(ctx, t, &b, nil); err != nil {
			return "", err
		}
		return b.String(), nil
	}
	apdu, err := parseAPDU(line)
	if err != nil {
		return "", err
	}
	resp, err := t.TransmitSync(ctx, apdu)
	if err != nil {
		return "", err
	}
	return formatResponse(resp), nil
}
