package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jinjor/lan-jam/src/relay"
	"github.com/jinjor/lan-jam/src/transport"
	"golang.org/x/sync/errgroup"
)

var (
	port          = flag.Int("port", transport.DefaultPort, "UDP port to relay on")
	discoveryPort = flag.Int("discovery-port", transport.DiscoveryPort, "UDP port answering discovery (0 disables)")
	statsInterval = flag.Duration("stats", 10*time.Second, "interval between peer summaries (0 disables)")
)

func main() {
	flag.Parse()
	log.SetFlags(log.Lshortfile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalCh)
	go func() {
		select {
		case sig := <-signalCh:
			log.Printf("Caught signal %s: shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	server := relay.NewServer(*port)
	server.DiscoveryPort = *discoveryPort
	if err := server.Listen(); err != nil {
		log.Fatalf("error: %v\n", err)
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return server.Serve(ctx)
	})
	if *statsInterval > 0 {
		eg.Go(func() error {
			return reportPeers(ctx, server, *statsInterval)
		})
	}
	if err := eg.Wait(); err != nil {
		log.Fatalf("error: %v\n", err)
	}
	log.Println("main() ended.")
}

func reportPeers(ctx context.Context, server *relay.Server, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			peers := server.Peers()
			log.Printf("peers=%d discovery=%d handshakes=%d forwarded=%d\n",
				len(peers), server.DiscoveryCount.Load(), server.HandshakeCount.Load(), server.PacketsForwarded.Load())
			for _, p := range peers {
				log.Printf("  %s forwarded=%d last_seen=%s\n", p.Endpoint, p.PacketsForwarded, p.LastSeen.Format(time.TimeOnly))
			}
		}
	}
}
