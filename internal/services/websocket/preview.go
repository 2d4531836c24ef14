package websocket

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"videodetect/internal/frame"
	"videodetect/internal/logger"
)

// Encoder turns a frame into JPEG bytes.
type Encoder func(f frame.Frame) ([]byte, error)

type viewMessage struct {
	Source string `json:"source"`
	Seq    int    `json:"seq"`
	Image  string `json:"image"`
}

// Preview is a sink.Preview that streams frames to web viewers through the hub.
type Preview struct {
	hub     *HubService
	source  string
	encode  Encoder
	logger  *logger.Logger
	sent    int
	dropped int
}

func NewPreview(hub *HubService, source string, encode Encoder, logger *logger.Logger) *Preview {
	return &Preview{hub: hub, source: source, encode: encode, logger: logger}
}

// Show encodes f and queues it. Nothing is encoded while no viewer is connected,
// and frames are dropped rather than delaying the caller.
func (p *Preview) Show(f frame.Frame) error {
	if p.hub.GetClientCount() == 0 {
		return nil
	}

	data, err := p.encode(f)
	if err != nil {
		return fmt.Errorf("encode frame %d: %w", f.Seq, err)
	}

	msg, err := json.Marshal(viewMessage{
		Source: p.source,
		Seq:    f.Seq,
		Image:  base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return err
	}

	if !p.hub.Broadcast(msg) {
		p.dropped++
		if p.dropped%100 == 1 {
			p.logger.Warning("Preview queue full - dropped %d frames so far", p.dropped)
		}
		return nil
	}
	p.sent++
	return nil
}

// Dropped returns how many frames were skipped because the queue was full.
func (p *Preview) Dropped() int {
	return p.dropped
}

func (p *Preview) Close() error {
	if p.sent > 0 || p.dropped > 0 {
		p.logger.Info("Web preview sent %d frames, dropped %d", p.sent, p.dropped)
	}
	return nil
}
