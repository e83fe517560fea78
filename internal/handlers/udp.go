package handlers

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strconv"

	"kioskhelper/internal/logger"
	"kioskhelper/internal/services"
)

var (
	jpegHeader = []byte{0xFF, 0xD8}
	jpegFooter = []byte{0xFF, 0xD9}
)

// frameAssembler składa klatki JPEG z pakietów UDP, osobno dla każdego nadawcy.
type frameAssembler struct {
	buffers map[string]*bytes.Buffer
	maxSize int
}

func newFrameAssembler(maxSize int) *frameAssembler {
	return &frameAssembler{buffers: make(map[string]*bytes.Buffer), maxSize: maxSize}
}

// Push appends one packet and returns a complete frame once its footer
// arrives. Data before the first JPEG header is discarded.
func (a *frameAssembler) Push(sender string, data []byte) ([]byte, bool) {
	buf, ok := a.buffers[sender]
	if !ok {
		buf = new(bytes.Buffer)
		a.buffers[sender] = buf
	}

	if bytes.HasPrefix(data, jpegHeader) {
		buf.Reset()
	} else if buf.Len() == 0 {
		return nil, false
	}
	buf.Write(data)

	if buf.Len() > a.maxSize {
		buf.Reset()
		return nil, false
	}
	if !bytes.HasSuffix(data, jpegFooter) {
		return nil, false
	}

	frame := make([]byte, buf.Len())
	copy(frame, buf.Bytes())
	buf.Reset()
	return frame, true
}

// UDPCameraHandler receives JPEG frames split across UDP packets and forwards
// complete frames to the manager. It returns when ctx is done.
func UDPCameraHandler(ctx context.Context, manager *services.Manager, logger *logger.Logger, port int) {
	addr, err := net.ResolveUDPAddr("udp", ":"+strconv.Itoa(port))
	if err != nil {
		logger.Error("Failed to resolve UDP address: %v", err)
		return
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		logger.Error("Failed to listen on UDP port %d: %v", port, err)
		return
	}
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	logger.Info("📷 UDP camera handler started on port %d", port)
	assembler := newFrameAssembler(maxFrameSize)
	buffer := make([]byte, 65535)

	for {
		n, remoteAddr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Info("📷 UDP camera handler stopped")
				return
			}
			logger.Error("Error reading UDP packet: %v", err)
			continue
		}

		if frame, ok := assembler.Push(remoteAddr.IP.String(), buffer[:n]); ok {
			manager.HandleFrame(services.FrameTask{Data: frame})
		}
	}
}
