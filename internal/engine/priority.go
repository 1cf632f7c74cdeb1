package engine

import (
	"path/filepath"
	"strings"

	"github.com/anacrolix/torrent"
)

const (
	headBytes = 5 << 20 // moov/ftyp probing plus the first seconds of playback
	tailBytes = 2 << 20 // mp4 indexes frequently live at the end of the file
)

// videoExtensions are the container formats the proxy can serve.
var videoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".webm": true,
	".mov":  true,
	".m4v":  true,
	".ts":   true,
}

func isVideoFile(path string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}

// pieceSpan is a half-open piece index range with one target priority.
type pieceSpan struct {
	start, end int
	prio       torrent.PiecePriority
}

// piecePlan maps the selected file onto piece priorities: the head gets
// top priority so playback can start, the two windows after it prefetch
// ahead of the decoder, and the tail covers end-of-file container indexes.
// Later spans never downgrade earlier ones; applyPlan applies them in
// order and skips already-claimed pieces.
func piecePlan(fileOffset, fileLength, pieceLength int64, numPieces int) []pieceSpan {
	if fileLength <= 0 || pieceLength <= 0 || numPieces <= 0 {
		return nil
	}

	span := func(off, length int64, prio torrent.PiecePriority) (pieceSpan, bool) {
		return clampSpan(fileOffset, fileLength, pieceLength, numPieces, off, length, prio)
	}

	var plan []pieceSpan
	if s, ok := span(0, headBytes, torrent.PiecePriorityNow); ok {
		plan = append(plan, s)
	}
	if s, ok := span(headBytes, headBytes, torrent.PiecePriorityNext); ok {
		plan = append(plan, s)
	}
	if s, ok := span(2*headBytes, headBytes, torrent.PiecePriorityReadahead); ok {
		plan = append(plan, s)
	}
	if s, ok := span(fileLength-tailBytes, tailBytes, torrent.PiecePriorityReadahead); ok {
		plan = append(plan, s)
	}
	return plan
}

func clampSpan(fileOffset, fileLength, pieceLength int64, numPieces int, off, length int64, prio torrent.PiecePriority) (pieceSpan, bool) {
	if off < 0 {
		off = 0
	}
	if off >= fileLength || length <= 0 {
		return pieceSpan{}, false
	}
	end := off + length
	if end > fileLength {
		end = fileLength
	}

	absStart := fileOffset + off
	absEnd := fileOffset + end
	startPiece := int(absStart / pieceLength)
	endPiece := int((absEnd + pieceLength - 1) / pieceLength)
	if startPiece < 0 {
		startPiece = 0
	}
	if endPiece > numPieces {
		endPiece = numPieces
	}
	if endPiece <= startPiece {
		return pieceSpan{}, false
	}
	return pieceSpan{start: startPiece, end: endPiece, prio: prio}, true
}

// applyPlan programs piece priorities for the selected video file and
// silences every other file in the torrent. anacrolix can panic on
// torrents racing with Drop, so the whole application is guarded.
func applyPlan(t *torrent.Torrent, fileIndex int) (applied bool) {
	defer func() {
		if recover() != nil {
			applied = false
		}
	}()

	files := t.Files()
	if fileIndex < 0 || fileIndex >= len(files) {
		return false
	}
	for i, f := range files {
		if i == fileIndex {
			f.SetPriority(torrent.PiecePriorityNormal)
		} else {
			f.SetPriority(torrent.PiecePriorityNone)
		}
	}

	f := files[fileIndex]
	plan := piecePlan(f.Offset(), f.Length(), int64(t.Info().PieceLength), t.NumPieces())
	claimed := make(map[int]bool)
	for _, span := range plan {
		for i := span.start; i < span.end; i++ {
			if claimed[i] {
				continue
			}
			claimed[i] = true
			t.Piece(i).SetPriority(span.prio)
		}
	}
	return true
}

// contiguousCompleted measures the unbroken run of completed bytes from
// the start of a file, stopping at the first incomplete piece and at
// limit. The file may start mid-piece; that piece counts only from the
// file's offset. Counting contiguously keeps a completed tail span (the
// plan fetches mp4 indexes early) from inflating the figure.
func contiguousCompleted(fileOffset, fileLength, limit, pieceLength int64, numPieces int, complete func(int) bool) int64 {
	if fileLength <= 0 || pieceLength <= 0 || numPieces <= 0 {
		return 0
	}
	end := fileOffset + limit
	if max := fileOffset + fileLength; end > max {
		end = max
	}

	var have int64
	for abs := fileOffset; abs < end; {
		piece := int(abs / pieceLength)
		if piece >= numPieces || !complete(piece) {
			break
		}
		pieceEnd := (int64(piece) + 1) * pieceLength
		if pieceEnd > end {
			pieceEnd = end
		}
		have += pieceEnd - abs
		abs = pieceEnd
	}
	return have
}

// selectVideoFile picks the largest file with a recognised video
// extension. Returns -1 when the torrent has no playable file.
func selectVideoFile(files []*torrent.File) int {
	best := -1
	var bestLen int64
	for i, f := range files {
		if !isVideoFile(f.Path()) {
			continue
		}
		if f.Length() > bestLen {
			best = i
			bestLen = f.Length()
		}
	}
	return best
}
