// Command memcore is a thin CLI front end over the memory engine, useful
// for local inspection and scripting against a configured store without
// the HTTP/WebSocket surface layered on top of the core.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vaultmind/memcore/internal/config"
	"github.com/vaultmind/memcore/internal/embedding"
	"github.com/vaultmind/memcore/internal/engine"
	"github.com/vaultmind/memcore/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional, env MEMCORE_* always overrides)")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}

	store, err := storage.New(cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("constructing storage adapter")
	}

	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		log.Fatal().Err(err).Msg("constructing embedding client")
	}

	e := engine.New(cfg, store, embedder)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := e.Initialize(ctx); err != nil {
		log.Fatal().Err(err).Msg("initializing engine")
	}
	defer func() {
		if err := e.Close(context.Background()); err != nil {
			log.Warn().Err(err).Msg("closing engine")
		}
	}()

	if err := dispatch(ctx, e, args[0], args[1:]); err != nil {
		log.Fatal().Err(err).Msg(args[0])
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `memcore: inspect and drive a memory store from the command line

Usage:
  memcore [-config path] <command> [args...]

Commands:
  remember <tenant> <content>         store a memory, print its id
  recall <tenant> <query>             print ranked recall results as JSON
  forget <id>                         delete a memory by id
  stats                               print engine stats as JSON
  health                              print engine health as JSON
  context <tenant> [topic]            print a synthesized context summary as JSON`)
}

func dispatch(ctx context.Context, e *engine.Engine, cmd string, args []string) error {
	switch cmd {
	case "remember":
		if len(args) < 2 {
			return fmt.Errorf("usage: remember <tenant> <content>")
		}
		id, err := e.Remember(ctx, args[1], args[0], "", engine.RememberOptions{})
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil

	case "recall":
		if len(args) < 2 {
			return fmt.Errorf("usage: recall <tenant> <query>")
		}
		results, err := e.Recall(ctx, args[1], args[0], "", engine.RecallOptions{})
		if err != nil {
			return err
		}
		return printJSON(results)

	case "forget":
		if len(args) < 1 {
			return fmt.Errorf("usage: forget <id>")
		}
		removed, err := e.ForgetByID(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(removed)
		return nil

	case "stats":
		stats, err := e.Stats(ctx)
		if err != nil {
			return err
		}
		return printJSON(stats)

	case "health":
		return printJSON(e.Health(ctx))

	case "context":
		if len(args) < 1 {
			return fmt.Errorf("usage: context <tenant> [topic]")
		}
		topic := ""
		if len(args) > 1 {
			topic = args[1]
		}
		resp, err := e.Context(ctx, args[0], engine.ContextRequest{Topic: topic})
		if err != nil {
			return err
		}
		return printJSON(resp)

	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
