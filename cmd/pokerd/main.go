// pokerd runs a self-contained poker fabric: one table service and a
// seat of bots on an in-process transport registry. It paces hands until
// the requested count is played or the process is interrupted, then
// tears the fabric down in priority order.
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
	"github.com/vctt94/pokerfabric/pkg/protocol"
	"github.com/vctt94/pokerfabric/pkg/service"
	"github.com/vctt94/pokerfabric/pkg/transport"
	"github.com/vctt94/pokerfabric/pkg/utils"
)

func main() {
	var (
		players     int
		hands       int
		chips       int64
		smallBlind  int64
		bigBlind    int64
		maxBet      int64
		seed        int64
		datadir     string
		debugLevel  string
		autoStartMs int
		actDelayMs  int
		heartbeat   time.Duration
	)
	flag.IntVar(&players, "players", 3, "Number of bot seats at the table")
	flag.IntVar(&hands, "hands", 5, "Hands to play before exiting (0 = until interrupted)")
	flag.Int64Var(&chips, "chips", 1000, "Starting chips per seat")
	flag.Int64Var(&smallBlind, "smallblind", 5, "Small blind")
	flag.Int64Var(&bigBlind, "bigblind", 10, "Big blind")
	flag.Int64Var(&maxBet, "maxbet", 0, "Largest bet-to amount (0 = engine default)")
	flag.Int64Var(&seed, "seed", 0, "Deterministic RNG seed for decks (0 = random)")
	flag.StringVar(&datadir, "datadir", "", "Data directory for rotating logs (empty = stdout only)")
	flag.StringVar(&debugLevel, "debuglevel", "info", "Logging level: trace, debug, info, warn, error")
	flag.IntVar(&autoStartMs, "autostartms", 1000, "Delay between hands in milliseconds")
	flag.IntVar(&actDelayMs, "actdelayms", 250, "Bot think time per action in milliseconds")
	flag.DurationVar(&heartbeat, "heartbeat", 30*time.Second, "Service heartbeat interval")
	flag.Parse()

	if players < 2 {
		fmt.Fprintln(os.Stderr, "at least two players are required")
		os.Exit(1)
	}
	if seed == 0 {
		// Allow env override for convenience
		if env := os.Getenv("POKER_SEED"); env != "" {
			if v, err := strconv.ParseInt(env, 10, 64); err == nil {
				seed = v
			}
		}
	}

	var logFile string
	if datadir != "" {
		if err := utils.EnsureDataDirExists(datadir); err != nil {
			fmt.Fprintf(os.Stderr, "failed to prepare datadir: %v\n", err)
			os.Exit(1)
		}
		logFile = filepath.Join(datadir, "logs", "pokerd.log")
	}
	logBackend, err := logging.NewLogBackend(logging.LogConfig{
		LogFile:    logFile,
		DebugLevel: debugLevel,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logging: %v\n", err)
		os.Exit(1)
	}
	defer logBackend.Close()
	log := logBackend.Logger("PKRD")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	seats := make([]string, players)
	for i := range seats {
		seats[i] = fmt.Sprintf("bot-%d", i+1)
	}

	registry := transport.NewRegistry()
	registry.SetLogger(logBackend.Logger("TRNS"))

	svc, err := service.New(service.Config{
		ID:                "table-1",
		Registry:          registry,
		Players:           seats,
		StartingChips:     chips,
		SmallBlind:        smallBlind,
		BigBlind:          bigBlind,
		MaxBet:            maxBet,
		Seed:              seed,
		HeartbeatInterval: heartbeat,
		Log:               logBackend.Logger("SRVC"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create table service: %v\n", err)
		os.Exit(1)
	}
	if err := svc.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start table service: %v\n", err)
		os.Exit(1)
	}

	bots := make([]*bot.Bot, 0, players)
	for i, seat := range seats {
		var botSeed int64
		if seed != 0 {
			botSeed = seed + int64(i) + 1
		}
		b, err := bot.New(bot.Config{
			ID:       seat,
			TableID:  "table-1",
			Registry: registry,
			Seed:     botSeed,
			ActDelay: time.Duration(actDelayMs) * time.Millisecond,
			Log:      logBackend.Logger("BOT"),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to seat %s: %v\n", seat, err)
			os.Exit(1)
		}
		bots = append(bots, b)
	}

	// The dealer client paces the table: it asks for the next hand and
	// waits for the completion broadcast before asking again.
	done := make(chan protocol.HandComplete, 4)
	ntfns := client.NewNotificationManager()
	ntfns.RegisterSync(client.OnHandCompleteNtfn(func(hc protocol.HandComplete, _ time.Time) {
		select {
		case done <- hc:
		default:
		}
	}))
	dealer, err := client.NewClient(client.Config{
		ID:            "dealer",
		TableID:       "table-1",
		Registry:      registry,
		Notifications: ntfns,
		Log:           logBackend.Logger("CLNT"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create dealer client: %v\n", err)
		os.Exit(1)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-dealer.UpdatesCh:
			case <-dealer.ErrorsCh:
			}
		}
	}()

	log.Infof("table-1 up: %d seats, blinds %d/%d, %d chips each", players, smallBlind, bigBlind, chips)

	played := 0
	for ctx.Err() == nil && (hands == 0 || played < hands) {
		if err := dealer.StartHand(ctx); err != nil {
			log.Warnf("cannot start another hand: %v", err)
			break
		}
		select {
		case hc := <-done:
			played++
			for _, w := range hc.Winners {
				if w.HandRank != "" {
					log.Infof("hand #%d: %s wins %d with %s [%s]",
						hc.HandNum, w.Name, w.Share, w.HandRank, utils.FormatCards(w.Cards))
				} else {
					log.Infof("hand #%d: %s wins %d uncontested", hc.HandNum, w.Name, w.Share)
				}
			}
		case <-ctx.Done():
		}
		if ctx.Err() == nil && autoStartMs > 0 {
			select {
			case <-time.After(time.Duration(autoStartMs) * time.Millisecond):
			case <-ctx.Done():
			}
		}
	}

	snap := svc.Snapshot()
	for _, p := range snap.Players {
		log.Infof("final stacks: %s has %d chips", p.Name, p.Chips)
	}
	log.Infof("played %d hands, shutting down", played)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	registry.ShutdownAll(shutdownCtx)
	cancel()
	for _, b := range bots {
		b.Close()
	}
	dealer.Close()
}
