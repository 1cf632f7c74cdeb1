package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/storage"

	"streamgate/internal/domain"
	"streamgate/internal/metrics"
)

// Swarm tuning: aggressive dialing so a cold swarm reaches first-byte
// quickly, bounded handshakes so dead peers do not pin dial slots.
const (
	establishedConnsPerTorrent = 800
	halfOpenConnsPerTorrent    = 50
	totalHalfOpenConns         = 500
	handshakeTimeout           = 7 * time.Second
)

const (
	// addTimeout caps how long we wait for the anacrolix client to accept
	// a magnet. AddMagnet can block on an internal mutex while the client
	// resolves metadata for another torrent.
	addTimeout = 10 * time.Second

	// metadataTimeout is the ceiling for zero-peer swarms; after it the
	// session goes to failed instead of leaking a waiting goroutine.
	metadataTimeout = 10 * time.Minute

	// readerGrace keeps a session alive past max age while something is
	// actively reading from it.
	readerGrace = 5 * time.Minute

	// sequentialReadahead keeps roughly one second of a high-bitrate
	// stream requested ahead of the pump's read position.
	sequentialReadahead = 8 << 20
)

type Config struct {
	DataDir       string
	MaxAge        time.Duration // wall-clock session lifetime, 0 = 2h
	SweepInterval time.Duration // eviction scan period, 0 = 5m
}

type session struct {
	torrent  *torrent.Torrent
	infoHash string
	addedAt  time.Time
	lastRead time.Time

	// Selected video file; stable once set.
	videoIndex int
	videoPath  string
	videoName  string
	videoSize  int64

	prioritized bool

	// pump drags a torrent reader across the selected file so pieces
	// keep arriving in playback order; closed when the session goes.
	pump io.Closer

	// failed is sticky: once set the session reports failed until the
	// eviction sweep removes it.
	failed      bool
	failMessage string
}

// Manager owns the torrent client and the registry of swarm sessions.
type Manager struct {
	client  *torrent.Client
	dataDir string
	maxAge  time.Duration
	sweep   time.Duration
	logger  *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*session

	speedMu sync.Mutex
	speeds  map[string]speedSample

	sweepCancel context.CancelFunc
}

func New(cfg Config, logger *slog.Logger) (*Manager, error) {
	clientConfig := torrent.NewDefaultClientConfig()
	if cfg.DataDir != "" {
		clientConfig.DataDir = cfg.DataDir
	}
	clientConfig.EstablishedConnsPerTorrent = establishedConnsPerTorrent
	clientConfig.HalfOpenConnsPerTorrent = halfOpenConnsPerTorrent
	clientConfig.TotalHalfOpenConns = totalHalfOpenConns
	clientConfig.HandshakesTimeout = handshakeTimeout
	// mmap-backed storage keeps hot head pieces in the page cache while
	// still writing through to the files ffmpeg reads.
	clientConfig.DefaultStorage = storage.NewMMap(clientConfig.DataDir)

	client, err := torrent.NewClient(clientConfig)
	if err != nil {
		return nil, err
	}
	m := newWithClient(client, cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	m.sweepCancel = cancel
	go m.sweepLoop(ctx)
	return m, nil
}

// NewWithClient wires a pre-built client and does not start the sweep.
func NewWithClient(client *torrent.Client, cfg Config, logger *slog.Logger) *Manager {
	return newWithClient(client, cfg, logger)
}

func newWithClient(client *torrent.Client, cfg Config, logger *slog.Logger) *Manager {
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 2 * time.Hour
	}
	sweep := cfg.SweepInterval
	if sweep <= 0 {
		sweep = 5 * time.Minute
	}
	return &Manager{
		client:   client,
		dataDir:  cfg.DataDir,
		maxAge:   maxAge,
		sweep:    sweep,
		logger:   logger,
		sessions: make(map[string]*session),
		speeds:   make(map[string]speedSample),
	}
}

func (m *Manager) Close() error {
	if m.sweepCancel != nil {
		m.sweepCancel()
	}
	if m.client == nil {
		return nil
	}
	errList := m.client.Close()
	if len(errList) > 0 {
		return errList[0]
	}
	return nil
}

// Ensure adds a swarm session for the info-hash if one does not exist.
// Repeat calls for a live session are no-ops.
func (m *Manager) Ensure(ctx context.Context, rawHash string) error {
	infoHash, err := domain.NormalizeInfoHash(rawHash)
	if err != nil {
		return domain.ErrInvalidInput
	}

	m.mu.Lock()
	if _, exists := m.sessions[infoHash]; exists {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if m.client == nil {
		return errors.New("torrent client not configured")
	}

	// AddMagnet runs on the side so a busy client never blocks the HTTP
	// handler; a late add gets dropped by the cleanup goroutine.
	type addResult struct {
		t   *torrent.Torrent
		err error
	}
	ch := make(chan addResult, 1)
	go func() {
		t, err := m.client.AddMagnet(buildMagnet(infoHash))
		ch <- addResult{t, err}
	}()

	var t *torrent.Torrent
	select {
	case res := <-ch:
		if res.err != nil {
			return res.err
		}
		t = res.t
	case <-time.After(addTimeout):
		go func() {
			if res := <-ch; res.t != nil {
				res.t.Drop()
			}
		}()
		return errors.New("torrent client busy, try again later")
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.t != nil {
				res.t.Drop()
			}
		}()
		return ctx.Err()
	}

	now := time.Now().UTC()
	m.mu.Lock()
	if _, exists := m.sessions[infoHash]; exists {
		// Lost the race to a concurrent Ensure; the torrent is shared.
		m.mu.Unlock()
		return nil
	}
	m.sessions[infoHash] = &session{
		torrent:    t,
		infoHash:   infoHash,
		addedAt:    now,
		videoIndex: -1,
	}
	m.mu.Unlock()

	m.logger.Info("swarm session opened", slog.String("infoHash", infoHash))
	go m.waitForInfo(t, infoHash)
	return nil
}

// waitForInfo parks until metadata arrives, failing the session if the
// swarm never produces it.
func (m *Manager) waitForInfo(t *torrent.Torrent, infoHash string) {
	select {
	case <-t.GotInfo():
		return
	case <-t.Closed():
		return
	case <-time.After(metadataTimeout):
	}

	m.mu.Lock()
	if s, ok := m.sessions[infoHash]; ok && !s.failed {
		s.failed = true
		s.failMessage = "metadata not received, swarm has no reachable peers"
	}
	m.mu.Unlock()
	t.DisallowDataDownload()
	m.logger.Warn("metadata timeout", slog.String("infoHash", infoHash))
}

// Status reports the current snapshot for the info-hash, driving the
// session forward: file selection and piece prioritization happen on the
// first poll after metadata arrives.
func (m *Manager) Status(_ context.Context, rawHash string) domain.SessionState {
	now := time.Now().UTC()
	infoHash, err := domain.NormalizeInfoHash(rawHash)
	if err != nil {
		return domain.SessionState{InfoHash: rawHash, Status: domain.SessionInvalid, Message: "malformed info hash", UpdatedAt: now}
	}

	m.mu.Lock()
	s, ok := m.sessions[infoHash]
	if !ok {
		m.mu.Unlock()
		return domain.SessionState{InfoHash: infoHash, Status: domain.SessionNotFound, UpdatedAt: now}
	}
	if s.failed {
		state := domain.SessionState{InfoHash: infoHash, Status: domain.SessionFailed, Message: s.failMessage, UpdatedAt: now}
		m.mu.Unlock()
		return state
	}
	t := s.torrent
	m.mu.Unlock()

	if !infoReady(t) {
		peers := 0
		if t != nil {
			peers = t.Stats().ActivePeers
		}
		return domain.SessionState{
			InfoHash:  infoHash,
			Status:    domain.SessionDownloadingMetadata,
			Peers:     peers,
			UpdatedAt: now,
		}
	}

	m.mu.Lock()
	if s.videoIndex < 0 {
		idx := selectVideoFile(t.Files())
		if idx < 0 {
			s.failed = true
			s.failMessage = "torrent contains no playable video file"
			state := domain.SessionState{InfoHash: infoHash, Status: domain.SessionFailed, Message: s.failMessage, UpdatedAt: now}
			m.mu.Unlock()
			t.DisallowDataDownload()
			return state
		}
		f := t.Files()[idx]
		s.videoIndex = idx
		s.videoName = filepath.Base(f.Path())
		s.videoPath = filepath.Join(m.dataDir, filepath.FromSlash(f.Path()))
		s.videoSize = f.Length()
	}
	if !s.prioritized {
		s.prioritized = applyPlan(t, s.videoIndex)
		if s.prioritized && s.pump == nil {
			s.pump = startSequentialPump(t.Files()[s.videoIndex])
		}
	}
	videoIndex := s.videoIndex
	videoPath := s.videoPath
	videoName := s.videoName
	videoSize := s.videoSize
	m.mu.Unlock()

	f := t.Files()[videoIndex]
	downloaded := f.BytesCompleted()
	progress := float64(0)
	if videoSize > 0 {
		progress = float64(downloaded) / float64(videoSize)
	}

	stats := t.Stats()
	downloadSpeed, uploadSpeed := m.sampleSpeed(infoHash, stats, now)

	// Readiness is judged on the contiguous prefix of completed pieces,
	// not the on-disk size: sparse writes from the tail span would grow
	// the file to full length with no playable head behind it.
	threshold := readyThreshold(videoSize)
	status := domain.SessionBuffering
	if fileExists(videoPath) && headCompleted(t, videoIndex, threshold) >= threshold {
		status = domain.SessionReady
	}

	return domain.SessionState{
		InfoHash:       infoHash,
		Status:         status,
		Progress:       progress,
		Peers:          stats.ActivePeers,
		DownloadSpeed:  downloadSpeed,
		UploadSpeed:    uploadSpeed,
		Downloaded:     downloaded,
		TotalSize:      videoSize,
		ReadyThreshold: threshold,
		VideoFile:      videoName,
		VideoPath:      videoPath,
		UpdatedAt:      now,
	}
}

// startSequentialPump drains a torrent reader across the file so the
// download keeps arriving in playback order past the prioritized head.
// The media proxy reads the raw file on disk; the reader exists only to
// drive piece selection, with its readahead as the request-queue window.
func startSequentialPump(f *torrent.File) io.Closer {
	r := f.NewReader()
	r.SetReadahead(sequentialReadahead)
	go func() {
		_, _ = io.Copy(io.Discard, r)
	}()
	return r
}

// headCompleted reports the contiguous completed bytes from the start of
// the selected file, up to limit.
func headCompleted(t *torrent.Torrent, fileIndex int, limit int64) int64 {
	files := t.Files()
	if fileIndex < 0 || fileIndex >= len(files) {
		return 0
	}
	f := files[fileIndex]
	return contiguousCompleted(f.Offset(), f.Length(), limit, t.Info().PieceLength, t.NumPieces(), func(i int) bool {
		return t.PieceState(i).Complete
	})
}

// readyThreshold is how many contiguous head bytes playback needs before
// ffmpeg gets a fighting chance: 3 MB, or less for tiny files.
func readyThreshold(totalSize int64) int64 {
	const floor = 3 << 20
	if totalSize <= 0 {
		return floor
	}
	pct := totalSize / 50
	if pct < floor {
		return pct
	}
	return floor
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// Touch records reader activity so the sweep spares the session.
func (m *Manager) Touch(infoHash string) {
	m.mu.Lock()
	if s, ok := m.sessions[infoHash]; ok {
		s.lastRead = time.Now().UTC()
	}
	m.mu.Unlock()
}

// Snapshot returns the state of every live session, sorted by nothing in
// particular; callers that care should sort.
func (m *Manager) Snapshot(ctx context.Context) []domain.SessionState {
	m.mu.RLock()
	hashes := make([]string, 0, len(m.sessions))
	for h := range m.sessions {
		hashes = append(hashes, h)
	}
	m.mu.RUnlock()

	out := make([]domain.SessionState, 0, len(hashes))
	for _, h := range hashes {
		out = append(out, m.Status(ctx, h))
	}
	return out
}

// Stats feeds the periodic metrics updater.
func (m *Manager) Stats() (active int, peers int, downloadSpeed int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.failed {
			continue
		}
		active++
		if s.torrent != nil {
			peers += s.torrent.Stats().ActivePeers
		}
	}
	m.speedMu.Lock()
	for _, sample := range m.speeds {
		downloadSpeed += sample.lastRate
	}
	m.speedMu.Unlock()
	return active, peers, downloadSpeed
}

// Drop removes a session and its torrent immediately.
func (m *Manager) Drop(rawHash string) error {
	infoHash, err := domain.NormalizeInfoHash(rawHash)
	if err != nil {
		return domain.ErrInvalidInput
	}
	m.mu.Lock()
	s, ok := m.sessions[infoHash]
	if !ok {
		m.mu.Unlock()
		return domain.ErrNotFound
	}
	delete(m.sessions, infoHash)
	m.mu.Unlock()

	m.forgetSpeed(infoHash)
	if s.pump != nil {
		_ = s.pump.Close()
	}
	if s.torrent != nil {
		s.torrent.Drop()
	}
	m.logger.Info("swarm session dropped", slog.String("infoHash", infoHash))
	return nil
}

func (m *Manager) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(m.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.evictExpired(time.Now().UTC())
		}
	}
}

// evictExpired drops sessions older than maxAge. A session with reader
// activity inside readerGrace survives the sweep so a long movie does not
// get cut off mid-playback.
func (m *Manager) evictExpired(now time.Time) {
	m.mu.Lock()
	var expired []*session
	for h, s := range m.sessions {
		if now.Sub(s.addedAt) < m.maxAge {
			continue
		}
		if !s.lastRead.IsZero() && now.Sub(s.lastRead) < readerGrace {
			continue
		}
		delete(m.sessions, h)
		expired = append(expired, s)
	}
	m.mu.Unlock()

	for _, s := range expired {
		m.forgetSpeed(s.infoHash)
		if s.pump != nil {
			_ = s.pump.Close()
		}
		if s.torrent != nil {
			s.torrent.Drop()
		}
		metrics.SessionEvictionsTotal.Inc()
		m.logger.Info("swarm session evicted",
			slog.String("infoHash", s.infoHash),
			slog.Duration("age", now.Sub(s.addedAt)))
	}
}

func infoReady(t *torrent.Torrent) bool {
	if t == nil {
		return false
	}
	select {
	case <-t.GotInfo():
		return true
	default:
		return false
	}
}

type speedSample struct {
	at         time.Time
	read       int64
	written    int64
	lastRate   int64
	lastUpRate int64
}

func (m *Manager) sampleSpeed(infoHash string, stats torrent.TorrentStats, now time.Time) (down, up int64) {
	read := stats.BytesReadUsefulData.Int64()
	written := stats.BytesWrittenData.Int64()

	m.speedMu.Lock()
	defer m.speedMu.Unlock()

	prev, ok := m.speeds[infoHash]
	sample := speedSample{at: now, read: read, written: written}
	if !ok || prev.at.IsZero() {
		m.speeds[infoHash] = sample
		return 0, 0
	}
	dt := now.Sub(prev.at).Seconds()
	if dt <= 0 {
		sample.lastRate = prev.lastRate
		sample.lastUpRate = prev.lastUpRate
		m.speeds[infoHash] = sample
		return prev.lastRate, prev.lastUpRate
	}
	perSecond := func(cur, old int64) int64 {
		delta := cur - old
		if delta < 0 {
			delta = 0
		}
		return int64(float64(delta) / dt)
	}
	sample.lastRate = perSecond(read, prev.read)
	sample.lastUpRate = perSecond(written, prev.written)
	m.speeds[infoHash] = sample
	return sample.lastRate, sample.lastUpRate
}

func (m *Manager) forgetSpeed(infoHash string) {
	m.speedMu.Lock()
	delete(m.speeds, infoHash)
	m.speedMu.Unlock()
}

// VideoPath returns the on-disk path of the selected video file once the
// session has picked one.
func (m *Manager) VideoPath(rawHash string) (string, error) {
	infoHash, err := domain.NormalizeInfoHash(rawHash)
	if err != nil {
		return "", domain.ErrInvalidInput
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[infoHash]
	if !ok {
		return "", domain.ErrNotFound
	}
	if s.failed {
		return "", domain.ErrSessionFailed
	}
	if s.videoPath == "" {
		return "", domain.ErrNotFound
	}
	return s.videoPath, nil
}
