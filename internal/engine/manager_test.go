package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/anacrolix/torrent"

	"streamgate/internal/domain"
)

const testHash = "0123456789abcdef0123456789abcdef01234567"

func newTestManager() *Manager {
	return newWithClient(nil, Config{DataDir: "/tmp/test"}, slog.New(slog.DiscardHandler))
}

// ---------------------------------------------------------------------------
// Magnet building
// ---------------------------------------------------------------------------

func TestBuildMagnet(t *testing.T) {
	uri := buildMagnet(testHash)
	if !strings.HasPrefix(uri, "magnet:?xt=urn:btih:"+testHash) {
		t.Fatalf("magnet prefix wrong: %s", uri)
	}
	if got := strings.Count(uri, "&tr="); got != len(trackerTier) {
		t.Fatalf("magnet carries %d trackers, want %d", got, len(trackerTier))
	}
	if strings.Contains(uri, "udp://tracker.opentrackr.org") {
		t.Fatal("tracker urls must be query-escaped")
	}
}

// ---------------------------------------------------------------------------
// Video file detection
// ---------------------------------------------------------------------------

func TestIsVideoFile(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"Movie.2023/Movie.mkv", true},
		{"movie.MP4", true},
		{"show/episode.avi", true},
		{"stream.ts", true},
		{"clip.webm", true},
		{"clip.m4v", true},
		{"clip.mov", true},
		{"Sample/RARBG.txt", false},
		{"cover.jpg", false},
		{"subs/english.srt", false},
		{"noextension", false},
	}
	for _, tc := range cases {
		if got := isVideoFile(tc.path); got != tc.want {
			t.Errorf("isVideoFile(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Piece plan math
// ---------------------------------------------------------------------------

func TestPiecePlanLargeFile(t *testing.T) {
	const pieceLen = 1 << 20 // 1 MB pieces
	const fileLen = 100 << 20
	numPieces := 100

	plan := piecePlan(0, fileLen, pieceLen, numPieces)
	if len(plan) != 4 {
		t.Fatalf("plan has %d spans, want 4: %+v", len(plan), plan)
	}

	head := plan[0]
	if head.prio != torrent.PiecePriorityNow || head.start != 0 || head.end != 5 {
		t.Fatalf("head span = %+v, want pieces [0,5) at Now", head)
	}
	next := plan[1]
	if next.prio != torrent.PiecePriorityNext || next.start != 5 || next.end != 10 {
		t.Fatalf("next span = %+v, want pieces [5,10) at Next", next)
	}
	ahead := plan[2]
	if ahead.prio != torrent.PiecePriorityReadahead || ahead.start != 10 || ahead.end != 15 {
		t.Fatalf("readahead span = %+v, want pieces [10,15)", ahead)
	}
	tail := plan[3]
	if tail.prio != torrent.PiecePriorityReadahead || tail.start != 98 || tail.end != 100 {
		t.Fatalf("tail span = %+v, want pieces [98,100)", tail)
	}
}

func TestPiecePlanFileOffsetShiftsPieces(t *testing.T) {
	const pieceLen = 1 << 20
	// File starts 10 MB into the torrent.
	plan := piecePlan(10<<20, 50<<20, pieceLen, 60)
	if len(plan) == 0 {
		t.Fatal("expected a non-empty plan")
	}
	if plan[0].start != 10 {
		t.Fatalf("head starts at piece %d, want 10", plan[0].start)
	}
}

func TestPiecePlanTinyFile(t *testing.T) {
	// A 1 MB file fits entirely inside the head window.
	plan := piecePlan(0, 1<<20, 256<<10, 4)
	if len(plan) == 0 {
		t.Fatal("tiny file should still produce a head span")
	}
	for _, span := range plan {
		if span.start < 0 || span.end > 4 {
			t.Fatalf("span out of bounds: %+v", span)
		}
	}
}

func TestPiecePlanDegenerateInputs(t *testing.T) {
	if plan := piecePlan(0, 0, 1<<20, 10); plan != nil {
		t.Fatalf("zero-length file: got %+v, want nil", plan)
	}
	if plan := piecePlan(0, 100, 0, 10); plan != nil {
		t.Fatalf("zero piece length: got %+v, want nil", plan)
	}
	if plan := piecePlan(0, 100, 1<<20, 0); plan != nil {
		t.Fatalf("zero pieces: got %+v, want nil", plan)
	}
}

func TestClampSpanBeyondFile(t *testing.T) {
	if _, ok := clampSpan(0, 1<<20, 1<<20, 10, 2<<20, 1<<20, torrent.PiecePriorityNow); ok {
		t.Fatal("span past the file end must be rejected")
	}
}

// ---------------------------------------------------------------------------
// Readiness threshold
// ---------------------------------------------------------------------------

func TestReadyThreshold(t *testing.T) {
	cases := []struct {
		name  string
		total int64
		want  int64
	}{
		{"large file caps at 3MB", 4 << 30, 3 << 20},
		{"exactly at the crossover", 150 << 20, 3 << 20},
		{"small file uses 2 percent", 50 << 20, 1 << 20},
		{"unknown size falls back", 0, 3 << 20},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := readyThreshold(tc.total); got != tc.want {
				t.Fatalf("readyThreshold(%d) = %d, want %d", tc.total, got, tc.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Contiguous head measurement
// ---------------------------------------------------------------------------

func completeSet(pieces ...int) func(int) bool {
	set := make(map[int]bool, len(pieces))
	for _, p := range pieces {
		set[p] = true
	}
	return func(i int) bool { return set[i] }
}

func TestContiguousCompletedHeadRun(t *testing.T) {
	const pieceLen = 1 << 20
	// Pieces 0-4 complete, piece 5 missing: the run covers the 3 MB limit.
	got := contiguousCompleted(0, 800<<20, 3<<20, pieceLen, 800, completeSet(0, 1, 2, 3, 4))
	if got != 3<<20 {
		t.Fatalf("head run = %d, want %d", got, 3<<20)
	}
}

func TestContiguousCompletedStopsAtFirstHole(t *testing.T) {
	const pieceLen = 1 << 20
	got := contiguousCompleted(0, 800<<20, 3<<20, pieceLen, 800, completeSet(0, 2, 3, 4))
	if got != 1<<20 {
		t.Fatalf("run past a hole: got %d, want %d", got, 1<<20)
	}
}

func TestContiguousCompletedIgnoresTailOnlyWrites(t *testing.T) {
	// Only the last two pieces of an 800 MB file are complete: the file on
	// disk is sparse at full length, but nothing playable exists.
	const pieceLen = 1 << 20
	got := contiguousCompleted(0, 800<<20, 3<<20, pieceLen, 800, completeSet(798, 799))
	if got != 0 {
		t.Fatalf("tail-only completion counted as head bytes: %d", got)
	}
}

func TestContiguousCompletedFileStartsMidPiece(t *testing.T) {
	const pieceLen = 1 << 20
	// File begins half way into piece 10; that piece contributes 512 KB.
	got := contiguousCompleted(10<<20+512<<10, 50<<20, 3<<20, pieceLen, 60, completeSet(10))
	if got != 512<<10 {
		t.Fatalf("partial first piece = %d, want %d", got, 512<<10)
	}
}

func TestContiguousCompletedDegenerateInputs(t *testing.T) {
	all := func(int) bool { return true }
	if got := contiguousCompleted(0, 0, 3<<20, 1<<20, 10, all); got != 0 {
		t.Fatalf("zero-length file: %d", got)
	}
	if got := contiguousCompleted(0, 100, 3<<20, 0, 10, all); got != 0 {
		t.Fatalf("zero piece length: %d", got)
	}
	if got := contiguousCompleted(0, 100, 3<<20, 1<<20, 0, all); got != 0 {
		t.Fatalf("zero pieces: %d", got)
	}
}

func TestContiguousCompletedClampedToFileEnd(t *testing.T) {
	const pieceLen = 1 << 20
	// 2 MB file, everything complete: the run is the whole file, not the
	// 3 MB limit.
	got := contiguousCompleted(0, 2<<20, 3<<20, pieceLen, 2, func(int) bool { return true })
	if got != 2<<20 {
		t.Fatalf("run = %d, want %d", got, 2<<20)
	}
}

// ---------------------------------------------------------------------------
// Status state machine
// ---------------------------------------------------------------------------

func TestStatusUnknownHash(t *testing.T) {
	m := newTestManager()
	state := m.Status(context.Background(), testHash)
	if state.Status != domain.SessionNotFound {
		t.Fatalf("status = %s, want not_found", state.Status)
	}
}

func TestStatusMalformedHash(t *testing.T) {
	m := newTestManager()
	for _, bad := range []string{"", "zzz", testHash + "00"} {
		state := m.Status(context.Background(), bad)
		if state.Status != domain.SessionInvalid {
			t.Fatalf("Status(%q) = %s, want invalid", bad, state.Status)
		}
	}
}

func TestStatusFailedIsSticky(t *testing.T) {
	m := newTestManager()
	m.sessions[testHash] = &session{
		infoHash:    testHash,
		addedAt:     time.Now().UTC(),
		videoIndex:  -1,
		failed:      true,
		failMessage: "metadata not received, swarm has no reachable peers",
	}

	for i := 0; i < 3; i++ {
		state := m.Status(context.Background(), testHash)
		if state.Status != domain.SessionFailed {
			t.Fatalf("poll %d: status = %s, want failed", i, state.Status)
		}
		if state.Message == "" {
			t.Fatal("failed state should carry a message")
		}
	}
}

func TestStatusHashNormalization(t *testing.T) {
	m := newTestManager()
	m.sessions[testHash] = &session{
		infoHash:   testHash,
		addedAt:    time.Now().UTC(),
		videoIndex: -1,
		failed:     true,
	}
	state := m.Status(context.Background(), strings.ToUpper(testHash))
	if state.Status != domain.SessionFailed {
		t.Fatalf("uppercase lookup missed the session: %s", state.Status)
	}
}

// ---------------------------------------------------------------------------
// Ensure validation
// ---------------------------------------------------------------------------

func TestEnsureRejectsMalformedHash(t *testing.T) {
	m := newTestManager()
	err := m.Ensure(context.Background(), "not-a-hash")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestEnsureIdempotentForTrackedSession(t *testing.T) {
	m := newTestManager()
	m.sessions[testHash] = &session{infoHash: testHash, addedAt: time.Now().UTC(), videoIndex: -1}

	// Already tracked: returns before touching the nil client.
	if err := m.Ensure(context.Background(), testHash); err != nil {
		t.Fatalf("repeat Ensure should be a no-op, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Eviction
// ---------------------------------------------------------------------------

func TestEvictExpiredDropsOldSessions(t *testing.T) {
	m := newWithClient(nil, Config{MaxAge: time.Hour}, slog.New(slog.DiscardHandler))
	now := time.Now().UTC()

	m.sessions["old"] = &session{infoHash: "old", addedAt: now.Add(-2 * time.Hour), videoIndex: -1}
	m.sessions["fresh"] = &session{infoHash: "fresh", addedAt: now.Add(-10 * time.Minute), videoIndex: -1}

	m.evictExpired(now)

	if _, ok := m.sessions["old"]; ok {
		t.Fatal("session past max age should be evicted")
	}
	if _, ok := m.sessions["fresh"]; !ok {
		t.Fatal("fresh session must survive the sweep")
	}
}

func TestEvictExpiredSparesActiveReader(t *testing.T) {
	m := newWithClient(nil, Config{MaxAge: time.Hour}, slog.New(slog.DiscardHandler))
	now := time.Now().UTC()

	m.sessions["watched"] = &session{
		infoHash:   "watched",
		addedAt:    now.Add(-3 * time.Hour),
		lastRead:   now.Add(-time.Minute),
		videoIndex: -1,
	}
	m.evictExpired(now)
	if _, ok := m.sessions["watched"]; !ok {
		t.Fatal("session with a recent reader must survive the sweep")
	}

	// Once the reader goes quiet, the next sweep takes it.
	m.sessions["watched"].lastRead = now.Add(-10 * time.Minute)
	m.evictExpired(now)
	if _, ok := m.sessions["watched"]; ok {
		t.Fatal("session with a stale reader should be evicted")
	}
}

func TestEvictExpiredAlsoTakesFailedSessions(t *testing.T) {
	m := newWithClient(nil, Config{MaxAge: time.Hour}, slog.New(slog.DiscardHandler))
	now := time.Now().UTC()

	m.sessions["dead"] = &session{infoHash: "dead", addedAt: now.Add(-2 * time.Hour), failed: true, videoIndex: -1}
	m.evictExpired(now)
	if _, ok := m.sessions["dead"]; ok {
		t.Fatal("failed sessions age out like any other")
	}
}

// ---------------------------------------------------------------------------
// Touch / VideoPath
// ---------------------------------------------------------------------------

func TestTouchRecordsReaderActivity(t *testing.T) {
	m := newTestManager()
	m.sessions[testHash] = &session{infoHash: testHash, addedAt: time.Now().UTC(), videoIndex: -1}

	before := time.Now().UTC()
	m.Touch(testHash)
	got := m.sessions[testHash].lastRead
	if got.Before(before) {
		t.Fatalf("lastRead = %v, want >= %v", got, before)
	}

	// Unknown hash is a no-op.
	m.Touch("ffffffffffffffffffffffffffffffffffffffff")
}

func TestVideoPath(t *testing.T) {
	m := newTestManager()

	if _, err := m.VideoPath("bad"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("malformed hash: got %v", err)
	}
	if _, err := m.VideoPath(testHash); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown hash: got %v", err)
	}

	m.sessions[testHash] = &session{infoHash: testHash, videoIndex: -1}
	if _, err := m.VideoPath(testHash); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("no file selected yet: got %v", err)
	}

	m.sessions[testHash].videoPath = "/data/movie/movie.mkv"
	got, err := m.VideoPath(testHash)
	if err != nil || got != "/data/movie/movie.mkv" {
		t.Fatalf("got (%q, %v)", got, err)
	}

	m.sessions[testHash].failed = true
	if _, err := m.VideoPath(testHash); !errors.Is(err, domain.ErrSessionFailed) {
		t.Fatalf("failed session: got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Speed sampling
// ---------------------------------------------------------------------------

func statsWithTraffic(read, written int64) torrent.TorrentStats {
	var stats torrent.TorrentStats
	stats.BytesReadUsefulData.Add(read)
	stats.BytesWrittenData.Add(written)
	return stats
}

func TestSampleSpeedFirstSampleIsZero(t *testing.T) {
	m := newTestManager()
	at := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	down, up := m.sampleSpeed(testHash, statsWithTraffic(1000, 400), at)
	if down != 0 || up != 0 {
		t.Fatalf("first sample = %d/%d, want 0/0", down, up)
	}
}

func TestSampleSpeedComputesRates(t *testing.T) {
	m := newTestManager()
	start := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	m.sampleSpeed(testHash, statsWithTraffic(1000, 200), start)
	down, up := m.sampleSpeed(testHash, statsWithTraffic(3000, 1200), start.Add(2*time.Second))
	if down != 1000 {
		t.Fatalf("download rate = %d, want 1000 B/s", down)
	}
	if up != 500 {
		t.Fatalf("upload rate = %d, want 500 B/s", up)
	}
}

func TestSampleSpeedNegativeDeltaClamped(t *testing.T) {
	m := newTestManager()
	start := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	m.sampleSpeed(testHash, statsWithTraffic(5000, 5000), start)
	down, up := m.sampleSpeed(testHash, statsWithTraffic(100, 100), start.Add(time.Second))
	if down != 0 || up != 0 {
		t.Fatalf("rates after counter reset = %d/%d, want 0/0", down, up)
	}
}

// ---------------------------------------------------------------------------
// Stats / Close
// ---------------------------------------------------------------------------

func TestStatsSkipsFailedSessions(t *testing.T) {
	m := newTestManager()
	m.sessions["a"] = &session{infoHash: "a", videoIndex: -1}
	m.sessions["b"] = &session{infoHash: "b", videoIndex: -1, failed: true}

	active, _, _ := m.Stats()
	if active != 1 {
		t.Fatalf("active = %d, want 1", active)
	}
}

func TestCloseNilClient(t *testing.T) {
	m := newTestManager()
	if err := m.Close(); err != nil {
		t.Fatalf("Close() with nil client should succeed, got: %v", err)
	}
}

func TestDropUnknownSession(t *testing.T) {
	m := newTestManager()
	if err := m.Drop(testHash); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
