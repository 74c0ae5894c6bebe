package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hyp3rd/kvs"
)

// This example threads a handle through a few calls by hand, then does the same with a Session.
func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h, err := kvs.Connect(ctx, "127.0.0.1:7000")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)

		return
	}

	// every call consumes h and hands back the next one
	h, err = h.Set(ctx, "greeting", "hello")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)

		return
	}

	value, found, h, err := h.Get(ctx, "greeting")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)

		return
	}

	fmt.Fprintln(os.Stdout, value, found)

	_ = h.Close()

	session := kvs.NewSession("127.0.0.1:7000", kvs.WithSerializer("json"))
	defer session.Close()

	err = session.Remove(ctx, "greeting")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	err = session.Remove(ctx, "greeting")
	if msg, ok := kvs.RemoteMessage(err); ok {
		fmt.Fprintln(os.Stdout, "server said:", msg)
	}
}
