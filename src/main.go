package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jinjor/lan-jam/src/audio"
	"github.com/jinjor/lan-jam/src/transport"
	"github.com/jinjor/lan-jam/src/tui"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var (
	server      = flag.String("server", "", "relay host:port to connect to on startup")
	discover    = flag.Bool("discover", false, "look for a relay on the LAN on startup")
	listenPort  = flag.Int("listen", 0, "local UDP port (0 picks a free one)")
	sampleRate  = flag.Int("sample-rate", audio.DefaultSampleRate, "session sample rate")
	blockFrames = flag.Int("block", audio.DefaultBlockFrames, "frames per audio callback")
	target      = flag.Int("target", audio.DefaultTargetBlocks, "jitter buffer depth in blocks")
	poly        = flag.Int("poly", 8, "number of voices")
	headless    = flag.Bool("headless", false, "run without a sound card")
	useMidi     = flag.Bool("midi", false, "play notes from the first MIDI input")
	useTUI      = flag.Bool("tui", true, "show the terminal control surface")
	ipcPath     = flag.String("ipc", "", "unix socket accepting control commands")
	presetDir   = flag.String("presets", "presets", "preset directory")
	preset      = flag.String("preset", "", "preset to load on startup")
	renderPath  = flag.String("render", "", "render the patch to this WAV file and exit")
	seconds     = flag.Float64("seconds", 8, "length of -render output")
)

func main() {
	flag.Parse()
	log.SetFlags(log.Lshortfile)
	if *useTUI && *renderPath == "" {
		f, err := tea.LogToFile("lan-jam.log", "")
		if err != nil {
			log.Fatalf("error: %v\n", err)
		}
		defer f.Close()
	}
	log.Printf("NumCPU: %v\n", runtime.NumCPU())

	params := audio.NewParams()
	params.SetPolyphony(*poly)
	params.SetTargetBlocks(*target)
	presets := audio.NewPresetManager(*presetDir)
	if *preset != "" {
		if err := presets.Load(*preset, params); err != nil {
			log.Fatalf("error: %v\n", err)
		}
	}

	if *renderPath != "" {
		if err := render(*renderPath, params); err != nil {
			log.Fatalf("error: %v\n", err)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer func() {
		signal.Stop(signalCh)
		cancel()
	}()
	go func() {
		select {
		case sig := <-signalCh:
			log.Printf("Caught signal %s: shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := run(ctx, cancel, params, presets); err != nil {
		log.Fatalf("error: %v\n", err)
	}
	log.Println("main() ended.")
}

func render(path string, params *audio.Params) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create output")
	}
	defer f.Close()
	params.Play()
	if err := audio.RenderWAV(f, params, *sampleRate, *blockFrames, *seconds); err != nil {
		return err
	}
	log.Printf("rendered %.1fs to %s\n", *seconds, path)
	return f.Close()
}

func run(ctx context.Context, cancel context.CancelFunc, params *audio.Params, presets *audio.PresetManager) error {
	rxStats := &transport.Stats{}
	conn, err := transport.Listen(*listenPort, rxStats)
	if err != nil {
		return err
	}
	log.Printf("listening on %v\n", conn.LocalAddr())

	jitter := audio.NewJitterBuffer(params.TargetBlocks())
	stats := &audio.Stats{}
	engine := audio.NewEngine(*sampleRate, params, jitter, conn, stats)

	var device audio.Device = audio.NewOtoDevice()
	if *headless {
		device = audio.NewHeadlessDevice()
	}
	if err := device.Open(*sampleRate, *blockFrames, engine.Process); err != nil {
		// no sound, but the session keeps relaying and receiving
		log.Printf("error: %v\n", err)
		device = nil
	} else if err := device.Start(); err != nil {
		log.Printf("error: %v\n", err)
	}
	defer func() {
		if device == nil {
			return
		}
		if err := device.Close(); err != nil {
			log.Printf("error: %v\n", err)
		}
	}()

	control := transport.NewControl()
	if *server != "" {
		control.RequestConnect(*server)
	}
	if *discover {
		control.RequestDiscover()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		log.Println("Closing network...")
		return conn.Close()
	})
	g.Go(func() error {
		return conn.Receive(jitter)
	})
	g.Go(func() error {
		return control.Poll(ctx, conn, transport.DefaultPollInterval)
	})
	if *useMidi {
		g.Go(func() error {
			if err := audio.ListenToMidiIn(ctx, params); err != nil {
				log.Printf("MIDI disabled: %v\n", err)
			}
			return nil
		})
	}
	if *ipcPath != "" {
		commands := &commander{params: params, presets: presets, control: control}
		g.Go(func() error {
			return withIPCConnection(ctx, *ipcPath, func(c net.Conn) error {
				ig, ctx := errgroup.WithContext(ctx)
				ig.Go(func() error {
					return receiveCommands(ctx, c, commands)
				})
				ig.Go(func() error {
					return sendReports(ctx, c, params, stats, engine.Scope(), *sampleRate)
				})
				return ig.Wait()
			})
		})
	}
	if *useTUI {
		g.Go(func() error {
			defer cancel()
			p := tea.NewProgram(tui.NewModel(params, stats, control, rxStats, engine.Scope(), *sampleRate, *server), tea.WithAltScreen())
			go func() {
				<-ctx.Done()
				p.Quit()
			}()
			_, err := p.Run()
			return err
		})
	}
	return g.Wait()
}
