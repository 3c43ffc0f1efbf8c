// Package live implements the duplex voice session.
//
// A session captures microphone frames, forwards them to the provider as
// 16-bit PCM, and plays the audio the provider streams back through a
// gapless playback queue. Transcripts of both directions are rendered
// into the shared message surface as they grow.
//
// # State Machine
//
//	IDLE → CONNECTING → OPEN → CLOSED → IDLE
//	           │                  ↑
//	           └── (mic/connect failure)
//
// Stop is idempotent and may be triggered by the user, a remote error or
// a remote close. Every resource acquired by Start is released on every
// exit path.
//
// # Data Flow
//
//	Microphone → gain → level meter
//	               └→ PCM16 → send queue → LiveConn.SendAudio   (dropped when full)
//
//	LiveConn.Receive → transcript placeholders → Surface
//	                 → audio chunks → PlaybackQueue → OutputContext
//	                 → interrupted → PlaybackQueue.Interrupt
//
// # Usage
//
//	s := live.NewSession(provider, mic, speakers, surf, live.DefaultConfig())
//	if err := s.Start(ctx); err != nil {
//	    return err // already rendered to the surface
//	}
//	for ev := range s.Events() {
//	    if lvl, ok := ev.(*live.LevelEvent); ok {
//	        drawMeter(lvl.RMS)
//	    }
//	}
//	s.Stop()
package live
