package main

import (
	"bufio"
	"context"
	"io"
	"log"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jinjor/lan-jam/src/audio"
	"github.com/jinjor/lan-jam/src/transport"
	"github.com/pkg/errors"
)

const reportInterval = time.Second / 20

func withIPCConnection(ctx context.Context, sockFileName string, f func(net.Conn) error) error {
	os.Remove(sockFileName)
	listener, err := new(net.ListenConfig).Listen(ctx, "unix", sockFileName)
	if err != nil {
		return errors.Wrap(err, "failed to listen IPC")
	}
	defer func() {
		log.Println("Closing IPC...")
		err := listener.Close()
		if err != nil && !errors.Is(err, net.ErrClosed) {
			log.Printf("error while closing listener: %v", err)
		}
		os.Remove(sockFileName)
	}()
	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	log.Printf("start listening...\n")
	conn, err := listener.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.Wrap(err, "failed to accept IPC")
	}
	defer func() {
		err := conn.Close()
		if err != nil {
			log.Printf("error while closing connection: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	return f(conn)
}

// commander applies IPC commands. Synth commands go to Params; the rest are
// session-level.
type commander struct {
	params  *audio.Params
	presets *audio.PresetManager
	control *transport.Control
}

func (c *commander) apply(command []string) error {
	switch command[0] {
	case "connect":
		if len(command) != 2 {
			return errors.Errorf("connect takes host:port, got %v", command[1:])
		}
		c.control.RequestConnect(command[1])
		return nil
	case "discover":
		c.control.RequestDiscover()
		return nil
	case "preset":
		if len(command) != 3 {
			return errors.Errorf("invalid preset command %v", command)
		}
		switch command[1] {
		case "load":
			return c.presets.Load(command[2], c.params)
		case "save":
			return c.presets.Save(command[2], c.params)
		}
		return errors.Errorf("unknown preset action %q", command[1])
	}
	return c.params.Update(command)
}

func receiveCommands(ctx context.Context, conn io.Reader, c *commander) error {
	reader := bufio.NewReader(conn)
	var line []byte
loop:
	for {
		select {
		case <-ctx.Done():
			log.Println("Connection interrupted")
			break loop
		default:
		}
		next, isPrefix, err := reader.ReadLine()
		if err == io.EOF || errors.Is(err, net.ErrClosed) {
			break loop
		}
		if err != nil {
			return errors.Wrap(err, "failed to read command")
		}
		line = append(line, next...)
		if isPrefix {
			continue
		}
		log.Printf("received: %s\n", string(line))
		command, err := parseCommand(string(line))
		line = line[:0]
		if err != nil {
			log.Printf("invalid command: %v\n", err)
			continue
		}
		if len(command) == 0 {
			continue
		}
		if err := c.apply(command); err != nil {
			log.Printf("command failed: %v\n", err)
		}
	}
	log.Println("receiveCommands() ended.")
	return nil
}

func parseCommand(line string) ([]string, error) {
	lineStr := strings.Fields(line)
	for i, item := range lineStr {
		escaped, err := url.QueryUnescape(item)
		if err != nil {
			return nil, errors.Wrapf(err, "bad escape in %q", item)
		}
		lineStr[i] = escaped
	}
	return lineStr, nil
}

// formatReports renders the periodic status lines sent over IPC.
func formatReports(params *audio.Params, stats *audio.Stats, scope *audio.Scope, sampleRate int) string {
	var b strings.Builder
	b.WriteString("step ")
	b.WriteString(strconv.Itoa(params.CurrentStep()))
	b.WriteString(" ")
	b.WriteString(strconv.FormatBool(params.Playing()))
	b.WriteString("\nstats ")
	b.WriteString(stats.String())
	b.WriteString("\nfilter")
	for _, value := range params.FilterShape(sampleRate, 64) {
		b.WriteString(" ")
		b.WriteString(strconv.FormatFloat(value, 'f', 2, 64))
	}
	b.WriteString("\nspectrum")
	for _, value := range scope.Spectrum(sampleRate, 32) {
		b.WriteString(" ")
		b.WriteString(strconv.FormatFloat(value, 'f', 1, 64))
	}
	b.WriteString("\n")
	return b.String()
}

func sendReports(ctx context.Context, conn io.Writer, params *audio.Params, stats *audio.Stats, scope *audio.Scope, sampleRate int) error {
	t := time.NewTicker(reportInterval)
	defer t.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			log.Println("sendReports() interrupted")
			break loop
		case <-t.C:
			if _, err := io.WriteString(conn, formatReports(params, stats, scope, sampleRate)); err != nil {
				log.Printf("sendReports() stopped: %v\n", err)
				break loop
			}
		}
	}
	log.Println("sendReports() ended.")
	return nil
}
