package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/vango-go/vai-wellness/pkg/core"
	"github.com/vango-go/vai-wellness/pkg/core/chat"
	"github.com/vango-go/vai-wellness/pkg/core/live"
	"github.com/vango-go/vai-wellness/pkg/render"
	"github.com/vango-go/vai-wellness/pkg/store"
)

const defaultExportPath = "wellness-chat.html"

const helpText = `Commands:
  /image <prompt>   generate an image
  /attach <path>    attach a file to the next message
  /camera           attach a camera snapshot
  /detach           remove the pending attachment
  /think [on|off]   toggle extended thinking
  /speak            read the last reply aloud
  /stop             stop reading aloud
  /voice            start or end a live voice conversation
  /mute             mute or unmute the voice reply
  /volume <0-2>     set the microphone gain
  /theme [light|dark]
  /export [path]    save the conversation as HTML
  /new              start a new chat
  /quit             exit`

// handle runs one input line and reports whether the client should exit.
func (a *app) handle(ctx context.Context, line string) bool {
	if !strings.HasPrefix(line, "/") {
		a.submit(ctx, line, chat.ModeText)
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(a.out, helpText)
	case "/image":
		a.submit(ctx, arg, chat.ModeImage)
	case "/attach":
		a.attach(arg)
	case "/camera":
		a.capture(ctx)
	case "/detach":
		a.composer.Clear()
		a.notice("Attachment removed.")
	case "/think":
		a.think(arg)
	case "/speak":
		a.speak(ctx)
	case "/stop":
		a.chat.StopSpeech()
	case "/voice":
		a.toggleVoice(ctx)
	case "/mute":
		if a.voice.ToggleMute() {
			a.notice("Voice reply muted.")
		} else {
			a.notice("Voice reply unmuted.")
		}
	case "/volume":
		a.volume(arg)
	case "/theme":
		a.setTheme(ctx, arg)
	case "/export":
		a.export(arg)
	case "/new":
		a.newChat(ctx)
	default:
		a.notice(fmt.Sprintf("Unknown command %s. Type /help for commands.", cmd))
	}
	return false
}

func (a *app) attach(path string) {
	if path == "" {
		a.notice("Usage: /attach <path>")
		return
	}
	if err := a.composer.AttachFile(path); err != nil {
		a.surface.AddError(core.UserMessage(err))
		return
	}
	if p, ok := a.composer.Pending(); ok {
		a.notice(fmt.Sprintf("Attached %s (%s).", p.Name, p.MIMEType))
	}
}

func (a *app) capture(ctx context.Context) {
	if a.camera == nil {
		a.surface.AddError(core.UserMessage(core.NewDeviceNotFoundError(core.DeviceCamera, nil)))
		return
	}
	frame, err := a.camera.Capture(ctx)
	if err == nil {
		err = a.composer.AttachCapture(frame)
	}
	if err != nil {
		a.logger.Warn("camera capture failed", "err", err)
		a.surface.AddError(core.UserMessage(err))
		return
	}
	a.notice("Camera snapshot attached.")
}

func (a *app) think(arg string) {
	on := !a.chat.Thinking()
	switch strings.ToLower(arg) {
	case "on":
		on = true
	case "off":
		on = false
	case "":
	default:
		a.notice("Usage: /think [on|off]")
		return
	}
	a.chat.SetThinking(on)
	if on {
		a.notice("Thinking mode on.")
	} else {
		a.notice("Thinking mode off.")
	}
}

func (a *app) speak(ctx context.Context) {
	err := a.chat.SpeakLast(ctx)
	switch {
	case err == nil:
	case errors.Is(err, chat.ErrBusy):
		a.notice("Already speaking. Use /stop to cancel.")
	case errors.Is(err, chat.ErrEmptyInput):
		a.notice("There is no reply to read yet.")
	case errors.Is(err, chat.ErrNoAudioOutput):
		a.notice("No audio output is configured.")
	default:
		a.logger.Debug("speech failed", "err", err)
	}
}

func (a *app) toggleVoice(ctx context.Context) {
	if a.voice.State() != live.StateIdle {
		if err := a.voice.Stop(); err != nil {
			a.logger.Warn("voice teardown failed", "err", err)
		}
		return
	}
	a.notice("Connecting voice session...")
	if err := a.voice.Start(ctx); err != nil && !errors.Is(err, live.ErrAlreadyActive) {
		// Start has rendered the error.
		a.logger.Debug("voice start failed", "err", err)
	}
}

func (a *app) volume(arg string) {
	if arg == "" {
		a.notice(fmt.Sprintf("Microphone gain is %.2f.", a.voice.InputGain()))
		return
	}
	gain, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		a.notice("Usage: /volume <0-2>")
		return
	}
	a.voice.SetInputGain(gain)
	a.notice(fmt.Sprintf("Microphone gain set to %.2f.", a.voice.InputGain()))
}

func (a *app) setTheme(ctx context.Context, arg string) {
	next := a.currentTheme().Toggle()
	if arg != "" {
		next = store.Theme(strings.ToLower(arg))
		if !next.Valid() {
			a.notice("Usage: /theme [light|dark]")
			return
		}
	}
	if err := a.applyTheme(next); err != nil {
		a.surface.AddError(err.Error())
		return
	}
	if a.store != nil {
		if err := a.store.SaveTheme(ctx, next); err != nil {
			a.logger.Warn("save theme failed", "err", err)
		}
	}
	a.notice(fmt.Sprintf("Theme set to %s.", next))
}

func (a *app) export(path string) {
	if path == "" {
		path = defaultExportPath
	}
	f, err := os.Create(path)
	if err != nil {
		a.surface.AddError(fmt.Sprintf("Could not export the conversation: %v", err))
		return
	}
	err = render.ExportHTML(f, appTitle, a.chat.History())
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		a.surface.AddError(fmt.Sprintf("Could not export the conversation: %v", err))
		return
	}
	a.notice("Conversation exported to " + path + ".")
}

func (a *app) newChat(ctx context.Context) {
	if err := a.chat.NewChat(ctx); err != nil {
		if errors.Is(err, chat.ErrBusy) {
			a.notice("A reply is still in progress.")
			return
		}
		a.logger.Warn("new chat failed", "err", err)
	}
	a.composer.Reset()
	a.notice("Started a new chat.")
}
