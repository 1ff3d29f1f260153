package audio

import (
	"context"
	"log"

	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi"
	"gitlab.com/gomidi/rtmididrv"
)

// ListenToMidiIn feeds the first MIDI input port into params as note requests
// until ctx is done. A machine without MIDI inputs is not an error.
func ListenToMidiIn(ctx context.Context, params *Params) error {
	drv, err := rtmididrv.New()
	if err != nil {
		return errors.Wrap(err, "failed to initialize MIDI driver")
	}
	defer func() {
		err := drv.Close()
		if err != nil {
			log.Printf("failed to close MIDI driver: %v\n", err)
		}
	}()
	ins, err := drv.Ins()
	if err != nil {
		return errors.Wrap(err, "failed to get MIDI IN")
	}
	log.Printf("MIDI IN: %v\n", ins)
	if len(ins) == 0 {
		log.Println("WARN: MIDI IN not found")
		<-ctx.Done()
		return nil
	}
	return listen(ctx, ins[0], params)
}

func listen(ctx context.Context, in midi.In, params *Params) error {
	if err := in.Open(); err != nil {
		return errors.Wrap(err, "failed to open MIDI IN")
	}
	log.Println("opened " + in.String())
	defer func() {
		err := in.Close()
		if err != nil {
			log.Printf("failed to close MIDI IN: %v\n", err)
		}
	}()
	log.Println("start listening MIDI IN...")
	if err := in.SetListener(func(data []byte, deltaMicroseconds int64) {
		handleMidiMessage(data, params)
	}); err != nil {
		return errors.Wrap(err, "failed to set listener")
	}
	defer func() {
		log.Println("stop listening MIDI IN...")
		err := in.StopListening()
		if err != nil {
			log.Printf("failed to stop listening: %v\n", err)
		}
	}()
	<-ctx.Done()
	return nil
}

// handleMidiMessage turns note messages into degree requests. The keyboard
// octave follows the incoming note so the pitch matches the controller.
func handleMidiMessage(data []byte, params *Params) {
	if len(data) < 3 {
		return
	}
	status := data[0] >> 4
	note := int(data[1])
	switch {
	case status == 8 || status == 9 && data[2] == 0:
		params.RequestNoteOff(note % 12)
	case status == 9:
		params.SetOctave(note/12 - 1)
		params.RequestNoteOn(note % 12)
	}
}
