// pokercli seats a human at a table of bots. Everything runs in one
// process: the table service, the bots and the player's terminal UI all
// share an in-process transport registry. Logs go to the datadir so the
// terminal belongs to the UI.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/vctt94/pokerfabric/pkg/bot"
	"github.com/vctt94/pokerfabric/pkg/client"
	"github.com/vctt94/pokerfabric/pkg/logging"
	"github.com/vctt94/pokerfabric/pkg/service"
	"github.com/vctt94/pokerfabric/pkg/transport"
	"github.com/vctt94/pokerfabric/pkg/ui"
	"github.com/vctt94/pokerfabric/pkg/utils"
)

func main() {
	var (
		playerID   string
		botCount   int
		chips      int64
		smallBlind int64
		bigBlind   int64
		seed       int64
		aggression float64
		datadir    string
		debugLevel string
		actDelayMs int
	)
	flag.StringVar(&playerID, "id", "you", "Your seat name at the table")
	flag.IntVar(&botCount, "bots", 2, "Number of bot opponents")
	flag.Int64Var(&chips, "chips", 1000, "Starting chips per seat")
	flag.Int64Var(&smallBlind, "smallblind", 5, "Small blind")
	flag.Int64Var(&bigBlind, "bigblind", 10, "Big blind")
	flag.Int64Var(&seed, "seed", 0, "Deterministic RNG seed for decks (0 = random)")
	flag.Float64Var(&aggression, "aggression", 0.5, "Bot aggression in (0,1]")
	flag.StringVar(&datadir, "datadir", "", "Data directory for logs (default: temp dir)")
	flag.StringVar(&debugLevel, "debuglevel", "debug", "Logging level: trace, debug, info, warn, error")
	flag.IntVar(&actDelayMs, "actdelayms", 600, "Bot think time per action in milliseconds")
	flag.Parse()

	if botCount < 1 {
		fmt.Fprintln(os.Stderr, "you need at least one opponent")
		os.Exit(1)
	}
	if seed == 0 {
		if env := os.Getenv("POKER_SEED"); env != "" {
			if v, err := strconv.ParseInt(env, 10, 64); err == nil {
				seed = v
			}
		}
	}
	if datadir == "" {
		datadir = filepath.Join(os.TempDir(), "pokercli")
	}
	if err := utils.EnsureDataDirExists(datadir); err != nil {
		fmt.Fprintf(os.Stderr, "failed to prepare datadir: %v\n", err)
		os.Exit(1)
	}

	// The UI owns the terminal; logs go to the file only.
	logBackend, err := logging.NewLogBackend(logging.LogConfig{
		LogFile:       filepath.Join(datadir, "logs", "pokercli.log"),
		DebugLevel:    debugLevel,
		DisableStdout: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logging: %v\n", err)
		os.Exit(1)
	}
	defer logBackend.Close()
	log := logBackend.Logger("PKCL")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	seats := make([]string, 0, botCount+1)
	seats = append(seats, playerID)
	for i := 1; i <= botCount; i++ {
		seats = append(seats, fmt.Sprintf("bot-%d", i))
	}

	registry := transport.NewRegistry()
	registry.SetLogger(logBackend.Logger("TRNS"))

	svc, err := service.New(service.Config{
		ID:            "table-1",
		Registry:      registry,
		Players:       seats,
		StartingChips: chips,
		SmallBlind:    smallBlind,
		BigBlind:      bigBlind,
		Seed:          seed,
		Log:           logBackend.Logger("SRVC"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create table service: %v\n", err)
		os.Exit(1)
	}
	if err := svc.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start table service: %v\n", err)
		os.Exit(1)
	}

	bots := make([]*bot.Bot, 0, botCount)
	for i := 1; i <= botCount; i++ {
		var botSeed int64
		if seed != 0 {
			botSeed = seed + int64(i)
		}
		b, err := bot.New(bot.Config{
			ID:         fmt.Sprintf("bot-%d", i),
			TableID:    "table-1",
			Registry:   registry,
			Aggression: aggression,
			Seed:       botSeed,
			ActDelay:   time.Duration(actDelayMs) * time.Millisecond,
			Log:        logBackend.Logger("BOT"),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to seat bot-%d: %v\n", i, err)
			os.Exit(1)
		}
		bots = append(bots, b)
	}

	cli, err := client.NewClient(client.Config{
		ID:            playerID,
		TableID:       "table-1",
		Registry:      registry,
		Notifications: client.NewNotificationManager(),
		Log:           logBackend.Logger("CLNT"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create client: %v\n", err)
		os.Exit(1)
	}

	log.Infof("table-1 up: %s vs %d bots, blinds %d/%d", playerID, botCount, smallBlind, bigBlind)

	if err := ui.Run(ctx, cli); err != nil {
		fmt.Fprintf(os.Stderr, "ui error: %v\n", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	registry.ShutdownAll(shutdownCtx)
	cancel()
	for _, b := range bots {
		b.Close()
	}
	cli.Close()
	log.Infof("goodbye")
}
