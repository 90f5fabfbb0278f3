package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/nicolagi/kvs/internal/client"
	"github.com/nicolagi/kvs/internal/kverr"
)

const defaultAddr = "127.0.0.1:4000"

func usage() {
	fmt.Fprintf(os.Stderr, `usage:
	kvs-client get KEY [--addr IP:PORT]
	kvs-client set KEY VALUE [--addr IP:PORT]
	kvs-client rm KEY [--addr IP:PORT]
	kvs-client repl [--addr IP:PORT]
`)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	cmd, args := os.Args[1], os.Args[2:]
	flags := flag.NewFlagSet(cmd, flag.ExitOnError)
	addr := flags.String("addr", defaultAddr, "Server address")

	switch cmd {
	case "get":
		key := positional(flags, args, 1)[0]
		withClient(*addr, func(c *client.Client) error {
			value, found, err := c.Get(key)
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
		kv := positional(flags, args, 2)
		withClient(*addr, func(c *client.Client) error {
			return c.Set(kv[0], kv[1])
		})
	case "rm":
		key := positional(flags, args, 1)[0]
		withClient(*addr, func(c *client.Client) error {
			err := c.Remove(key)
			if kverr.IsKind(err, kverr.KeyNotFound) {
				fmt.Fprintln(os.Stderr, "Key not found")
				os.Exit(1)
			}
			return err
		})
	case "repl":
		if err := flags.Parse(args); err != nil {
			usage()
		}
		if err := client.REPL(*addr); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	default:
		usage()
	}
}

// positional parses args expecting n positional arguments before any flags,
// exiting with usage otherwise.
func positional(flags *flag.FlagSet, args []string, n int) []string {
	if len(args) < n {
		usage()
	}
	if err := flags.Parse(args[n:]); err != nil {
		usage()
	}
	return args[:n]
}

func withClient(addr string, f func(*client.Client) error) {
	c, err := client.Dial(addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()
	if err := f(c); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
