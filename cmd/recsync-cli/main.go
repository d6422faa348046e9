// Command recsync-cli is a small end-to-end demonstration of the client:
// dial a server, authenticate, create a record, watch it change, and walk
// through the one-shot get/set/update helpers. It is meant to be read
// top to bottom, the way the reference client's own examples are.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	recsync "github.com/recsync/recsync-go"
	"github.com/recsync/recsync-go/connection"
)

func main() {
	addr := flag.String("addr", "ws://localhost:6020/recsync", "recsync server address")
	user := flag.String("user", "root", "auth username")
	pass := flag.String("pass", "root", "auth password")
	flag.Parse()

	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	println("Step 1: Connect to recsync")
	client, err := recsync.New(*addr, recsync.WithLogger(logger))
	if err != nil {
		panic(err)
	}
	defer client.Close()

	println("Step 2: Watch connection state changes")
	unsub := client.OnStateChange(func(s connection.State) {
		println("          state -> " + s.String())
	})
	defer unsub()

	println("Step 3: Sign in")
	authDone := make(chan error, 1)
	client.Authenticate(map[string]any{"user": *user, "pass": *pass}, func(ok bool, data []string, err error) {
		if !ok {
			authDone <- err
			return
		}
		authDone <- nil
	})
	if err := <-authDone; err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	println("Step 4: Acquire the 'company:100' record")
	rec := client.Record("company:100")
	defer rec.Discard()

	if err := rec.WhenReady(ctx); err != nil {
		panic(err)
	}

	println("Step 5: Write an initial value")
	if err := rec.SetRoot(map[string]any{
		"name":           "new company 100",
		"initial_shares": "100",
	}); err != nil {
		panic(err)
	}

	println("Step 6: Subscribe to the 'name' field")
	subID, err := rec.Subscribe("name", func(value any) {
		fmt.Printf("          name changed: %v\n", value)
	}, true)
	if err != nil {
		panic(err)
	}
	defer rec.Unsubscribe(subID)

	println("Step 7: Update the record through the registry's Update helper")
	if err := client.Update(ctx, "company:100", func(root any) (any, error) {
		m, _ := root.(map[string]any)
		if m == nil {
			m = map[string]any{}
		}
		next := make(map[string]any, len(m))
		for k, v := range m {
			next[k] = v
		}
		next["initial_shares"] = "200"
		return next, nil
	}); err != nil {
		panic(err)
	}

	println("Step 8: Read the updated field back with the one-shot Get helper")
	shares, err := client.Get(ctx, "company:100", "initial_shares")
	if err != nil {
		panic(err)
	}
	fmt.Printf("          initial_shares is now: %v\n", shares)

	println("Step 9: Listen for every company record")
	if err := client.Listen("company:*", func(name string, isSubscribed bool) bool {
		println("          listener asked about: " + name)
		return true
	}); err != nil {
		panic(err)
	}
	defer client.Unlisten("company:*")

	println("Done")
	os.Exit(0)
}
