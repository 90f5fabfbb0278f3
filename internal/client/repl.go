package client

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/nicolagi/kvs/internal/kverr"
)

const prompt = "kvs> "

// REPL runs an interactive loop against the server at addr. Each command
// dials its own connection, matching the one-request-per-connection
// protocol. Exits on EOF, on an interrupt at an empty prompt, or on "exit"
// or "quit"; an interrupt while a line is being typed discards that line.
func REPL(addr string) error {
	l, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		HistoryFile:       filepath.Join(os.TempDir(), ".kvs-history"),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return err
	}
	defer func() { _ = l.Close() }()
	l.CaptureExitSignal()

	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				return nil
			}
			continue
		} else if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if quit := eval(addr, line); quit {
			return nil
		}
	}
}

// eval runs one REPL line, reporting whether the loop should end.
func eval(addr, line string) bool {
	fields := strings.SplitN(strings.TrimSpace(line), " ", 3)
	switch fields[0] {
	case "exit", "quit":
		return true
	case "get":
		if len(fields) != 2 {
			sayErr(kverr.Newf(kverr.InvalidArgument, "usage: get KEY"))
			return false
		}
		withClient(addr, func(c *Client) error {
			value, found, err := c.Get(fields[1])
			if err != nil {
				return err
			}
			if !found {
				fmt.Println("Key not found")
				return nil
			}
			fmt.Println(value)
			return nil
		})
	case "set":
		if len(fields) != 3 {
			sayErr(kverr.Newf(kverr.InvalidArgument, "usage: set KEY VALUE"))
			return false
		}
		withClient(addr, func(c *Client) error {
			return c.Set(fields[1], fields[2])
		})
	case "rm":
		if len(fields) != 2 {
			sayErr(kverr.Newf(kverr.InvalidArgument, "usage: rm KEY"))
			return false
		}
		withClient(addr, func(c *Client) error {
			err := c.Remove(fields[1])
			if kverr.IsKind(err, kverr.KeyNotFound) {
				fmt.Println("Key not found")
				return nil
			}
			return err
		})
	default:
		sayErr(kverr.Newf(kverr.UnknownCommand, "%q", fields[0]))
	}
	return false
}

func withClient(addr string, f func(*Client) error) {
	c, err := Dial(addr)
	if err != nil {
		sayErr(err)
		return
	}
	defer func() { _ = c.Close() }()
	if err := f(c); err != nil {
		sayErr(err)
	}
}

func sayErr(err error) {
	fmt.Fprintf(os.Stderr, "%v\n", err)
}
