package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"peertube-batch/internal/retry"
)

// skipIfNoFFmpeg skips the test if ffmpeg is not available.
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH, skipping test")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH, skipping test")
	}
}

// writeStub writes an executable shell script standing in for ffmpeg or
// ffprobe and returns its path.
func writeStub(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write stub %s: %v", name, err)
	}
	return path
}

// stubFFprobe reports a fixed ten second duration.
func stubFFprobe(t *testing.T, dir string) string {
	t.Helper()
	return writeStub(t, dir, "ffprobe", "#!/bin/sh\necho 10.0\n")
}

// stubEncoder fakes ffmpeg: it logs each invocation to callLog and writes
// bigBytes to the output path, or smallBytes when the args match smallWhen.
func stubEncoder(t *testing.T, dir, callLog, smallWhen string, smallBytes, bigBytes int) string {
	t.Helper()
	script := fmt.Sprintf(`#!/bin/sh
echo "$@" >> %q
for last; do :; done
case "$*" in
*%q*) head -c %d /dev/zero > "$last" ;;
*) head -c %d /dev/zero > "$last" ;;
esac
`, callLog, smallWhen, smallBytes, bigBytes)
	return writeStub(t, dir, "ffmpeg", script)
}

func readCallLog(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read call log: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

// createTestVideo creates a simple test video using ffmpeg.
func createTestVideo(t *testing.T, path string, duration float64) {
	t.Helper()

	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=blue:s=320x240:d=%.1f", duration),
		"-c:v", "libx264",
		"-preset", "ultrafast",
		path,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test video: %v\noutput: %s", err, output)
	}
}

func TestNewFFmpegProcessor(t *testing.T) {
	t.Run("default path", func(t *testing.T) {
		p := NewFFmpegProcessor("")
		if p.ffmpegPath != "ffmpeg" {
			t.Errorf("expected default path 'ffmpeg', got %q", p.ffmpegPath)
		}
	})

	t.Run("custom path", func(t *testing.T) {
		p := NewFFmpegProcessor("/usr/local/bin/ffmpeg")
		if p.ffmpegPath != "/usr/local/bin/ffmpeg" {
			t.Errorf("expected custom path, got %q", p.ffmpegPath)
		}
	})

	t.Run("default limits", func(t *testing.T) {
		p := NewFFmpegProcessor("")
		if p.fetchTimeout != DefaultFetchTimeout {
			t.Errorf("fetchTimeout = %v, want %v", p.fetchTimeout, DefaultFetchTimeout)
		}
		if p.probeTimeout != DefaultProbeTimeout {
			t.Errorf("probeTimeout = %v, want %v", p.probeTimeout, DefaultProbeTimeout)
		}
		if p.maxThumbnailBytes != MaxThumbnailBytes {
			t.Errorf("maxThumbnailBytes = %d, want %d", p.maxThumbnailBytes, int64(MaxThumbnailBytes))
		}
	})

	t.Run("options override defaults", func(t *testing.T) {
		p := NewFFmpegProcessor("",
			WithFFprobePath("/opt/ffprobe"),
			WithFetchTimeout(5*time.Second),
			WithProbeTimeout(time.Second),
			WithMaxThumbnailBytes(512),
		)
		if p.ffprobePath != "/opt/ffprobe" {
			t.Errorf("ffprobePath = %q, want /opt/ffprobe", p.ffprobePath)
		}
		if p.fetchTimeout != 5*time.Second {
			t.Errorf("fetchTimeout = %v, want 5s", p.fetchTimeout)
		}
		if p.probeTimeout != time.Second {
			t.Errorf("probeTimeout = %v, want 1s", p.probeTimeout)
		}
		if p.maxThumbnailBytes != 512 {
			t.Errorf("maxThumbnailBytes = %d, want 512", p.maxThumbnailBytes)
		}
	})
}

func TestIsTransientFetch(t *testing.T) {
	tests := []struct {
		name      string
		stderr    string
		transient bool
	}{
		{"connection reset", "tls: Connection reset by peer", true},
		{"timeout", "Connection timed out after 10000ms", true},
		{"refused", "connect: Connection refused", true},
		{"eof", "https: unexpected End of file", true},
		{"not found", "Server returned 404 Not Found", false},
		{"forbidden", "Server returned 403 Forbidden", false},
		{"invalid data", "Invalid data found when processing input", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransientFetch(tt.stderr); got != tt.transient {
				t.Errorf("isTransientFetch(%q) = %v, want %v", tt.stderr, got, tt.transient)
			}
		})
	}
}

func TestFetchSegment(t *testing.T) {
	t.Run("rejects non-positive duration", func(t *testing.T) {
		p := NewFFmpegProcessor("")
		err := p.FetchSegment(context.Background(), "http://example.com/v.mp4", 0, "/tmp/out.mp4")
		if !errors.Is(err, ErrInvalidDuration) {
			t.Errorf("expected ErrInvalidDuration, got %v", err)
		}
	})

	t.Run("fetches leading seconds over HTTP", func(t *testing.T) {
		skipIfNoFFmpeg(t)

		tmpDir := t.TempDir()
		source := filepath.Join(tmpDir, "source.mp4")
		createTestVideo(t, source, 8.0)

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, source)
		}))
		defer server.Close()

		p := NewFFmpegProcessor("")
		dst := filepath.Join(tmpDir, "segment.mp4")

		if err := p.FetchSegment(context.Background(), server.URL+"/source.mp4", 3, dst); err != nil {
			t.Fatalf("FetchSegment failed: %v", err)
		}

		duration, err := p.ProbeDuration(context.Background(), dst)
		if err != nil {
			t.Fatalf("ProbeDuration failed: %v", err)
		}
		if duration > 4.5 {
			t.Errorf("segment duration = %.2fs, expected about 3s", duration)
		}
	})

	t.Run("unreachable host is marked retryable", func(t *testing.T) {
		skipIfNoFFmpeg(t)

		p := NewFFmpegProcessor("")
		dst := filepath.Join(t.TempDir(), "segment.mp4")

		err := p.FetchSegment(context.Background(), "http://127.0.0.1:1/v.mp4", 3, dst)
		if err == nil {
			t.Fatal("expected error for unreachable host")
		}
		if !errors.Is(err, ErrFetchFailed) {
			t.Errorf("expected ErrFetchFailed, got %v", err)
		}
		if !retry.IsRetryable(err) {
			t.Errorf("connection-refused fetch should be retryable, got %v", err)
		}
		if _, statErr := os.Stat(dst); !os.IsNotExist(statErr) {
			t.Error("partial segment should have been removed")
		}
	})

	t.Run("stalled source fails within the fetch timeout", func(t *testing.T) {
		skipIfNoFFmpeg(t)

		tmpDir := t.TempDir()
		source := filepath.Join(tmpDir, "source.mp4")
		createTestVideo(t, source, 8.0)
		data, err := os.ReadFile(source)
		if err != nil {
			t.Fatalf("failed to read test video: %v", err)
		}

		// Serve the first bytes of the file, then stall without closing
		// the connection.
		done := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			head := data
			if len(head) > 4096 {
				head = head[:4096]
			}
			_, _ = w.Write(head)
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
			<-done
		}))
		defer server.Close()
		defer close(done)

		p := NewFFmpegProcessor("", WithFetchTimeout(2*time.Second))
		dst := filepath.Join(tmpDir, "segment.mp4")

		start := time.Now()
		err = p.FetchSegment(context.Background(), server.URL+"/source.mp4", 3, dst)
		elapsed := time.Since(start)

		if err == nil {
			t.Fatal("expected error for stalled source")
		}
		if !errors.Is(err, ErrFetchFailed) {
			t.Errorf("expected ErrFetchFailed, got %v", err)
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline expiry in chain, got %v", err)
		}
		if elapsed > 10*time.Second {
			t.Errorf("fetch took %v, should have been cut off near 2s", elapsed)
		}
		if _, statErr := os.Stat(dst); !os.IsNotExist(statErr) {
			t.Error("partial segment should have been removed")
		}
	})
}

func TestExtractFrame(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	segment := filepath.Join(tmpDir, "segment.mp4")
	createTestVideo(t, segment, 6.0)

	p := NewFFmpegProcessor("")

	t.Run("produces a valid JPEG within limits", func(t *testing.T) {
		dst := filepath.Join(tmpDir, "thumb.jpg")

		if err := p.ExtractFrame(context.Background(), segment, 2.0, dst); err != nil {
			t.Fatalf("ExtractFrame failed: %v", err)
		}

		info, err := os.Stat(dst)
		if err != nil {
			t.Fatalf("thumbnail was not created: %v", err)
		}
		if info.Size() > MaxThumbnailBytes {
			t.Errorf("thumbnail size %d exceeds limit", info.Size())
		}
		if err := ValidateThumbnail(dst); err != nil {
			t.Errorf("extracted thumbnail failed validation: %v", err)
		}
	})

	t.Run("timestamp beyond segment fails", func(t *testing.T) {
		dst := filepath.Join(tmpDir, "thumb_oob.jpg")

		err := p.ExtractFrame(context.Background(), segment, 60.0, dst)
		if !errors.Is(err, ErrTimestampOutOfRange) {
			t.Errorf("expected ErrTimestampOutOfRange, got %v", err)
		}
		if _, statErr := os.Stat(dst); !os.IsNotExist(statErr) {
			t.Error("no artifact should exist after out-of-range extraction")
		}
	})

	t.Run("missing segment fails probe", func(t *testing.T) {
		err := p.ExtractFrame(context.Background(), filepath.Join(tmpDir, "ghost.mp4"), 1.0, filepath.Join(tmpDir, "x.jpg"))
		if !errors.Is(err, ErrFFprobeExecution) {
			t.Errorf("expected ErrFFprobeExecution, got %v", err)
		}
	})
}

// TestExtractFrameQualityLadder drives ExtractFrame with a fake encoder so
// the size of every encode is controlled exactly.
func TestExtractFrameQualityLadder(t *testing.T) {
	t.Run("steps down quality until the frame fits", func(t *testing.T) {
		tmpDir := t.TempDir()
		callLog := filepath.Join(tmpDir, "calls.log")
		// Encodes at -q:v 11 and beyond fit, earlier ones do not.
		ffmpeg := stubEncoder(t, tmpDir, callLog, "-q:v 11", 16, 4096)
		p := NewFFmpegProcessor(ffmpeg,
			WithFFprobePath(stubFFprobe(t, tmpDir)),
			WithMaxThumbnailBytes(1024),
		)

		dst := filepath.Join(tmpDir, "thumb.jpg")
		if err := p.ExtractFrame(context.Background(), "segment.mp4", 2.0, dst); err != nil {
			t.Fatalf("ExtractFrame failed: %v", err)
		}

		calls := readCallLog(t, callLog)
		if len(calls) != 3 {
			t.Fatalf("expected 3 encodes (q 5, 8, 11), got %d:\n%s", len(calls), strings.Join(calls, "\n"))
		}
		for i, quality := range []string{"5", "8", "11"} {
			if !strings.Contains(calls[i], "-q:v "+quality) {
				t.Errorf("encode %d should use -q:v %s: %s", i+1, quality, calls[i])
			}
		}
		info, err := os.Stat(dst)
		if err != nil {
			t.Fatalf("thumbnail was not created: %v", err)
		}
		if info.Size() != 16 {
			t.Errorf("thumbnail size = %d, want the fitting encode's 16", info.Size())
		}
	})

	t.Run("drops resolution when the quality floor is not enough", func(t *testing.T) {
		tmpDir := t.TempDir()
		callLog := filepath.Join(tmpDir, "calls.log")
		// Only the reduced-resolution encode fits.
		ffmpeg := stubEncoder(t, tmpDir, callLog, "scale=854:480", 16, 4096)
		p := NewFFmpegProcessor(ffmpeg,
			WithFFprobePath(stubFFprobe(t, tmpDir)),
			WithMaxThumbnailBytes(1024),
		)

		dst := filepath.Join(tmpDir, "thumb.jpg")
		if err := p.ExtractFrame(context.Background(), "segment.mp4", 2.0, dst); err != nil {
			t.Fatalf("ExtractFrame failed: %v", err)
		}

		calls := readCallLog(t, callLog)
		if len(calls) != 7 {
			t.Fatalf("expected 6 ladder encodes plus the fallback, got %d", len(calls))
		}
		last := calls[len(calls)-1]
		if !strings.Contains(last, "scale=854:480") || !strings.Contains(last, "-q:v 10") {
			t.Errorf("fallback encode should use 854x480 at -q:v 10: %s", last)
		}
		if _, err := os.Stat(dst); err != nil {
			t.Fatalf("thumbnail was not created: %v", err)
		}
	})

	t.Run("fails when even the fallback exceeds the limit", func(t *testing.T) {
		tmpDir := t.TempDir()
		callLog := filepath.Join(tmpDir, "calls.log")
		ffmpeg := stubEncoder(t, tmpDir, callLog, "no-encode-fits", 16, 4096)
		p := NewFFmpegProcessor(ffmpeg,
			WithFFprobePath(stubFFprobe(t, tmpDir)),
			WithMaxThumbnailBytes(1024),
		)

		dst := filepath.Join(tmpDir, "thumb.jpg")
		err := p.ExtractFrame(context.Background(), "segment.mp4", 2.0, dst)
		if !errors.Is(err, ErrArtifactTooLarge) {
			t.Fatalf("expected ErrArtifactTooLarge, got %v", err)
		}

		if calls := readCallLog(t, callLog); len(calls) != 7 {
			t.Errorf("expected 6 ladder encodes plus the fallback, got %d", len(calls))
		}
		if _, statErr := os.Stat(dst); !os.IsNotExist(statErr) {
			t.Error("oversized thumbnail should have been removed")
		}
	})
}

func TestProbeDuration(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	video := filepath.Join(tmpDir, "clip.mp4")
	createTestVideo(t, video, 5.0)

	p := NewFFmpegProcessor("")

	duration, err := p.ProbeDuration(context.Background(), video)
	if err != nil {
		t.Fatalf("ProbeDuration failed: %v", err)
	}
	if duration < 4.0 || duration > 6.0 {
		t.Errorf("duration = %.2f, expected about 5s", duration)
	}
}

func TestProbeDurationTimeout(t *testing.T) {
	tmpDir := t.TempDir()
	stalled := writeStub(t, tmpDir, "ffprobe", "#!/bin/sh\nexec sleep 30\n")

	p := NewFFmpegProcessor("",
		WithFFprobePath(stalled),
		WithProbeTimeout(100*time.Millisecond),
	)

	start := time.Now()
	_, err := p.ProbeDuration(context.Background(), "clip.mp4")
	elapsed := time.Since(start)

	if !errors.Is(err, ErrFFprobeExecution) {
		t.Errorf("expected ErrFFprobeExecution, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline expiry in chain, got %v", err)
	}
	if elapsed > 5*time.Second {
		t.Errorf("probe took %v, should have been cut off near 100ms", elapsed)
	}
}

func TestFFmpegError(t *testing.T) {
	base := errors.New("exit status 1")
	ffErr := &FFmpegError{
		Args:   []string{"-i", "input.mp4"},
		Stderr: "Connection reset by peer",
		Err:    base,
	}

	if !errors.Is(ffErr, base) {
		t.Error("FFmpegError should unwrap to the underlying error")
	}
	msg := ffErr.Error()
	for _, want := range []string{"input.mp4", "Connection reset by peer"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message missing %q: %s", want, msg)
		}
	}
}
