package audio

import (
	"io"
	"log"
	"sync"
	"time"

	"github.com/hajimehoshi/oto"
	"github.com/pkg/errors"
)

// Callback fills out with one block of mono samples. It is only ever invoked
// from one goroutine at a time.
type Callback func(out []float32)

// Device drives a Callback at the block rate.
type Device interface {
	Open(sampleRate int, blockFrames int, cb Callback) error
	Start() error
	// Stop returns once the callback is guaranteed not to run again.
	Stop() error
	Close() error
}

const (
	channelNum      = 2
	bitDepthInBytes = 2
	bytesPerSample  = bitDepthInBytes * channelNum
)

// ----- Oto ----- //

// OtoDevice plays through the system output using oto. The player pulls
// blocks through Read, so the callback runs on the copy goroutine.
type OtoDevice struct {
	ctx         *oto.Context
	cb          Callback
	blockFrames int
	out         []float32

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

func NewOtoDevice() *OtoDevice {
	return &OtoDevice{}
}

func (d *OtoDevice) Open(sampleRate int, blockFrames int, cb Callback) error {
	if blockFrames <= 0 || blockFrames > maxBlockFrames {
		return errors.Errorf("invalid block size %d", blockFrames)
	}
	bufferSizeInBytes := blockFrames * bytesPerSample * 4
	if bufferSizeInBytes < 4096 {
		bufferSizeInBytes = 4096
	}
	ctx, err := oto.NewContext(sampleRate, channelNum, bitDepthInBytes, bufferSizeInBytes)
	if err != nil {
		return errors.Wrap(err, "failed to open audio device")
	}
	d.ctx = ctx
	d.cb = cb
	d.blockFrames = blockFrames
	d.out = make([]float32, blockFrames)
	return nil
}

func (d *OtoDevice) Start() error {
	if d.ctx == nil {
		return errors.New("device is not open")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return nil
	}
	d.running = true
	d.done = make(chan struct{})
	p := d.ctx.NewPlayer()
	go func() {
		defer close(d.done)
		defer func() {
			if err := p.Close(); err != nil {
				log.Printf("error: %v", err)
			}
		}()
		if _, err := io.CopyBuffer(p, d, make([]byte, d.blockFrames*bytesPerSample)); err != nil {
			log.Printf("playback stopped: %v\n", err)
		}
	}()
	return nil
}

// Read renders as many whole blocks as fit in buf.
func (d *OtoDevice) Read(buf []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return 0, io.EOF
	}
	frames := len(buf) / bytesPerSample
	written := 0
	for frames > 0 {
		n := frames
		if n > d.blockFrames {
			n = d.blockFrames
		}
		out := d.out[:n]
		d.cb(out)
		writeBuffer(out, buf[written*bytesPerSample:], 0)
		writeBuffer(out, buf[written*bytesPerSample:], 1)
		written += n
		frames -= n
	}
	return written * bytesPerSample, nil
}

func (d *OtoDevice) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	done := d.done
	d.mu.Unlock()
	<-done
	return nil
}

func (d *OtoDevice) Close() error {
	if err := d.Stop(); err != nil {
		return err
	}
	if d.ctx == nil {
		return nil
	}
	log.Println("Closing audio device...")
	return d.ctx.Close()
}

// writeBuffer packs out as 16-bit little-endian into channel ch of an interleaved stereo buffer.
func writeBuffer(out []float32, buf []byte, ch int) {
	sampleLength := len(buf) / bytesPerSample
	if sampleLength > len(out) {
		sampleLength = len(out)
	}
	for i := 0; i < sampleLength; i++ {
		const max = 32767
		b := int16(clampFloat32(out[i], -1, 1) * max)
		buf[bytesPerSample*i+2*ch] = byte(b)
		buf[bytesPerSample*i+2*ch+1] = byte(b >> 8)
	}
}

// ----- Headless ----- //

// HeadlessDevice paces the callback with a ticker and discards the output,
// or hands it to Tap. Used when there is no sound card.
type HeadlessDevice struct {
	Tap func(block []float32)

	cb          Callback
	period      time.Duration
	blockFrames int

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func NewHeadlessDevice() *HeadlessDevice {
	return &HeadlessDevice{}
}

func (d *HeadlessDevice) Open(sampleRate int, blockFrames int, cb Callback) error {
	if sampleRate <= 0 || blockFrames <= 0 {
		return errors.Errorf("invalid format %d Hz / %d frames", sampleRate, blockFrames)
	}
	d.cb = cb
	d.blockFrames = blockFrames
	d.period = time.Duration(blockFrames) * time.Second / time.Duration(sampleRate)
	return nil
}

func (d *HeadlessDevice) Start() error {
	if d.cb == nil {
		return errors.New("device is not open")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return nil
	}
	d.running = true
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.loop(d.stop, d.done)
	return nil
}

func (d *HeadlessDevice) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	out := make([]float32, d.blockFrames)
	ticker := time.NewTicker(d.period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.cb(out)
			if d.Tap != nil {
				d.Tap(out)
			}
		}
	}
}

func (d *HeadlessDevice) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	close(d.stop)
	done := d.done
	d.mu.Unlock()
	<-done
	return nil
}

func (d *HeadlessDevice) Close() error {
	return d.Stop()
}
