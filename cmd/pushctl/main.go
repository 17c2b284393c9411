// Command pushctl plays the server side of server checks: it generates VAPID
// keys and sends a push message to the subscription stored on this device.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/dmitrijs2005/gophbeat/internal/common"
	"github.com/dmitrijs2005/gophbeat/internal/config"
	"github.com/dmitrijs2005/gophbeat/internal/cryptox"
	"github.com/dmitrijs2005/gophbeat/internal/flagx"
	"github.com/dmitrijs2005/gophbeat/internal/logging"
	"github.com/dmitrijs2005/gophbeat/internal/models"
	"github.com/dmitrijs2005/gophbeat/internal/push"
	"github.com/dmitrijs2005/gophbeat/internal/store"
)

const usage = `usage:
  pushctl keys
  pushctl send -public <key> -private <key> [-subscriber <email>] [-type <type>]`

func main() {
	cmd := command(os.Args[1:])
	switch cmd {
	case "keys":
		keys, err := push.GenerateVAPIDKeys()
		if err != nil {
			log.Fatalf("%v", err)
		}
		fmt.Println("public: ", keys.Public)
		fmt.Println("private:", keys.Private)
	case "send":
		if err := send(os.Args[1:]); err != nil {
			log.Fatalf("%v", err)
		}
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

// command returns the first argument that is neither a flag nor a flag value.
func command(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "-") {
			if !strings.Contains(a, "=") && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				i++
			}
			continue
		}
		return a
	}
	return ""
}

func send(args []string) error {
	var keys push.VAPIDKeys
	var subscriber, msgType string
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.StringVar(&keys.Public, "public", os.Getenv("VAPID_PUBLIC_KEY"), "VAPID public key")
	fs.StringVar(&keys.Private, "private", os.Getenv("VAPID_PRIVATE_KEY"), "VAPID private key")
	fs.StringVar(&subscriber, "subscriber", "ops@example.com", "VAPID subscriber contact")
	fs.StringVar(&msgType, "type", common.PushTypeHeartbeat, "push message type")
	if err := fs.Parse(flagx.FilterArgs(args, []string{"-public", "-private", "-subscriber", "-type"})); err != nil {
		return err
	}
	if keys.Public == "" || keys.Private == "" {
		return fmt.Errorf("%w\n%s", common.ErrNoVAPIDKey, usage)
	}

	cfg := config.Load(args)
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	st, err := store.Open(ctx, cfg.DatabasePath, store.WithLogger(logger.With("module", "store")))
	if err != nil {
		return err
	}
	defer st.Close()

	platform := push.NewPlatform(st, cryptox.NewCodec(st, logger.With("module", "cryptox")), cfg.PushBaseURL)
	sub, err := platform.Subscription(ctx)
	if err != nil {
		return err
	}
	if sub == nil {
		return fmt.Errorf("%w: no push subscription on this device", common.ErrSubscriptionExpired)
	}

	payload, err := json.Marshal(models.PushPayload{Type: msgType})
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: cfg.RequestTimeout}
	res, err := push.NewSender(keys, subscriber, client).Send(ctx, *sub, payload)
	if err != nil {
		return err
	}
	logger.Info(ctx, "push message sent", "status", res.StatusCode, "gone", res.Gone, "endpoint", sub.Endpoint)
	if res.Gone {
		return common.ErrSubscriptionExpired
	}
	if res.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("push service answered %d: %s", res.StatusCode, res.Body)
	}
	return nil
}
