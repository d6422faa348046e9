// Package recsync is a realtime record-synchronization client: it
// maintains a websocket connection to a recsync server, keeps a registry
// of live records reconciled against the server's versioned state, and
// exposes get/set/observe/listen operations over that registry.
//
// A minimal client:
//
//	client, err := recsync.New("ws://localhost:6020/recsync")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	rec := client.Record("item/1")
//	defer rec.Discard()
//
//	if err := rec.WhenReady(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//	name, _ := rec.Get("name")
package recsync
