package media

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ArgConfig holds the parameters for building the ffmpeg argument list.
// This is a value type, pass it by value to buildStreamArgs().
type ArgConfig struct {
	Input string
}

// buildStreamArgs constructs the ffmpeg arguments for serving one growing
// video file as fragmented MP4 on stdout. Pure function, no side effects.
//
// The probe window is kept small so playback starts before the swarm has
// much of the file: 5 MB / 3 s is enough for ffmpeg to find the streams
// in every container we admit.
func buildStreamArgs(cfg ArgConfig) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-analyzeduration", "3000000",
		"-probesize", "5000000",
		"-err_detect", "ignore_err",
		"-i", cfg.Input,
		"-map", "0:v:0",
		"-map", "0:a:0?",
	}

	// An mp4 input is already H.264 in practice; remuxing it into
	// fragments is cheap. Everything else gets transcoded with settings
	// tuned for latency over quality.
	if strings.EqualFold(filepath.Ext(cfg.Input), ".mp4") {
		args = append(args, "-c:v", "copy")
	} else {
		args = append(args,
			"-c:v", "libx264",
			"-preset", "ultrafast",
			"-tune", "zerolatency",
			"-crf", "28",
			"-g", "30",
			"-pix_fmt", "yuv420p",
		)
	}

	args = append(args,
		"-c:a", "aac",
		"-b:a", "128k",
		"-ac", "2",
		"-movflags", "frag_keyframe+empty_moov+faststart",
		"-f", "mp4",
		"pipe:1",
	)
	return args
}

// Process wraps a running ffmpeg command whose stdout is the media stream.
type Process struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdout io.ReadCloser

	done      chan struct{}
	waitOnce  sync.Once
	err       error
	stderrBuf bytes.Buffer
}

// NewProcess prepares an ffmpeg invocation bound to ctx. The process is
// killed when ctx is cancelled, with a short grace period for the final
// Wait.
func NewProcess(ctx context.Context, ffmpegPath string, args []string) *Process {
	ctx2, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx2, ffmpegPath, args...)
	cmd.WaitDelay = 3 * time.Second
	return &Process{
		cmd:    cmd,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start launches ffmpeg and exposes its stdout for reading.
func (p *Process) Start() error {
	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		return err
	}
	p.stdout = stdout
	p.cmd.Stderr = &p.stderrBuf

	if err := p.cmd.Start(); err != nil {
		return err
	}
	go func() {
		p.err = p.cmd.Wait()
		close(p.done)
	}()
	return nil
}

// Stdout is the fragmented MP4 byte stream.
func (p *Process) Stdout() io.Reader {
	return p.stdout
}

// Stop cancels the process context, killing ffmpeg.
func (p *Process) Stop() {
	p.cancel()
}

// Wait blocks until the process exits.
func (p *Process) Wait() error {
	<-p.done
	return p.err
}

// Done is closed when the process exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Err returns the exit error, nil while running or after a clean exit.
func (p *Process) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Stderr returns the tail of the accumulated diagnostics.
func (p *Process) Stderr() string {
	const tail = 2048
	s := strings.TrimSpace(p.stderrBuf.String())
	if len(s) > tail {
		s = s[len(s)-tail:]
	}
	return s
}
