// Command kvs is the interactive-from-the-shell client: get/set/rm
// against a running kvs-server.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dreamsxin/kvs"
	"github.com/dreamsxin/kvs/client"
)

const defaultAddr = "127.0.0.1:4000"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "get":
		runGet(os.Args[2:])
	case "set":
		runSet(os.Args[2:])
	case "rm":
		runRemove(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: kvs get KEY [--addr IP:PORT] | set KEY VALUE [--addr IP:PORT] | rm KEY [--addr IP:PORT]")
}

func runGet(args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	addr := fs.String("addr", defaultAddr, "server address")
	fs.Parse(args)
	if fs.NArg() != 1 {
		usage()
		os.Exit(1)
	}
	key := fs.Arg(0)

	c, err := client.Connect(*addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	value, ok, err := c.Get(key)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if !ok {
		fmt.Println("Key not found")
		return
	}
	fmt.Println(value)
}

func runSet(args []string) {
	fs := flag.NewFlagSet("set", flag.ExitOnError)
	addr := fs.String("addr", defaultAddr, "server address")
	fs.Parse(args)
	if fs.NArg() != 2 {
		usage()
		os.Exit(1)
	}
	key, value := fs.Arg(0), fs.Arg(1)

	c, err := client.Connect(*addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := c.Set(key, value); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runRemove(args []string) {
	fs := flag.NewFlagSet("rm", flag.ExitOnError)
	addr := fs.String("addr", defaultAddr, "server address")
	fs.Parse(args)
	if fs.NArg() != 1 {
		usage()
		os.Exit(1)
	}
	key := fs.Arg(0)

	c, err := client.Connect(*addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := c.Remove(key); err != nil {
		if kvs.IsKeyNotFound(err) {
			fmt.Fprintln(os.Stderr, "Key not found")
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
