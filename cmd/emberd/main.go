// Command emberd is the entrypoint wiring config -> logx -> sqlpool -> auth
// -> reactor, in the same root/lib/main split nasa-jpl-golaborate uses for
// its instrument servers: main.go dispatches a small command vocabulary,
// the actual server lives in a library package underneath.
package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	yml "github.com/go-yaml/yaml"

	"github.com/yourusername/ember/pkg/ember/auth"
	"github.com/yourusername/ember/pkg/ember/config"
	"github.com/yourusername/ember/pkg/ember/httpx"
	"github.com/yourusername/ember/pkg/ember/logx"
	"github.com/yourusername/ember/pkg/ember/reactor"
	"github.com/yourusername/ember/pkg/ember/sqlpool"
)

// Version is injected at build time via -ldflags, per the nasa-jpl CLI
// convention this binary follows.
var Version = "dev"

const configFileName = "emberd.yml"

func root() {
	fmt.Println(`emberd serves a whitelisted set of static HTML resources and a
minimal login/registration flow over HTTP/1.1, driven by a single-threaded
epoll reactor with a fixed worker pool.

Usage:
	emberd <command>

Commands:
	run
	help
	mkconf
	conf
	version`)
}

func help() {
	fmt.Println(`emberd is configured via emberd.yml in the working directory, or
EMBER_-prefixed environment variables (e.g. EMBER_PORT=9090). Run "mkconf" to
write out the defaults as a starting point.`)
}

func mkconf() {
	c := config.Default()
	f, err := os.Create(configFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	if err := yml.NewEncoder(f).Encode(c); err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c, err := config.Load(configFileName)
	if err != nil {
		log.Fatal(err)
	}
	if err := yml.NewEncoder(os.Stdout).Encode(c); err != nil {
		log.Fatal(err)
	}
}

func printVersion() {
	fmt.Printf("emberd version %v\n", Version)
}

func run() {
	cfg, err := config.Load(configFileName)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := logx.New(logx.Config{
		Dir:       cfg.LogDir,
		MaxLines:  50_000,
		QueueSize: cfg.LogAsyncQueueSize,
		MinLevel:  parseLevel(cfg.LogLevel),
	})
	if err != nil {
		log.Fatalf("starting logger: %v", err)
	}
	defer logger.Close()

	pool, err := sqlpool.Open(sqlpool.Config{
		DSN:      cfg.MySQLDSN,
		MaxConns: cfg.ConnectionPoolSize,
	})
	if err != nil {
		log.Fatalf("opening sql pool: %v", err)
	}
	defer pool.Close()

	verifier := auth.New(pool)
	var httpVerifier httpx.Verifier = verifier

	r := reactor.New(reactor.Config{
		Addr:        net.JoinHostPort("", strconv.Itoa(cfg.Port)),
		DocRoot:     cfg.DocRoot,
		Workers:     cfg.ThreadNum,
		KeepAliveMS: cfg.KeepAliveMS,
		EdgeTrig:    true,
		Logger:      logger,
		Verifier:    httpVerifier,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Infof("shutting down")
		r.Close()
	}()

	logger.Infof("listening on port %d", cfg.Port)
	if err := r.Run(); err != nil {
		logger.Errorf("reactor exited: %v", err)
		log.Fatal(err)
	}
}

func parseLevel(s string) logx.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return logx.Debug
	case "WARN":
		return logx.Warn
	case "ERROR":
		return logx.Error
	default:
		return logx.Info
	}
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	switch strings.ToLower(args[1]) {
	case "help":
		help()
	case "mkconf":
		mkconf()
	case "conf":
		printconf()
	case "run":
		run()
	case "version":
		printVersion()
	default:
		log.Fatal("unknown command")
	}
}
