package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/cmodk/deskctl"
)

func TestProgramsExecute(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")

	p := Programs{
		deskctl.KindNextTrack: {"sh", "-c", "echo $DESKCTL_COMMAND_TYPE >> " + out},
	}

	c := deskctl.Command{Id: 1, Kind: deskctl.KindNextTrack, Payload: deskctl.Payload{"count": 3.0}}
	if err := p.Execute(context.Background(), c); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Fields(string(data))
	if len(lines) != 3 || lines[0] != "next_track" {
		t.Fatalf("Expected the program to run 3 times, got %q", data)
	}
}

func TestProgramsFailure(t *testing.T) {
	p := Programs{
		deskctl.KindUnmuteZoom: {"sh", "-c", "echo no zoom window; exit 3"},
	}

	err := p.Execute(context.Background(), deskctl.Command{Kind: deskctl.KindUnmuteZoom})
	if err == nil || !strings.Contains(err.Error(), "no zoom window") {
		t.Fatalf("Expected program output in error, got %v", err)
	}

	err = p.Execute(context.Background(), deskctl.Command{Kind: deskctl.Kind("reboot")})
	if err == nil {
		t.Fatal("Expected unconfigured kind to fail")
	}
}

func TestProgramsFailureOutputStaysUTF8(t *testing.T) {
	p := Programs{
		deskctl.KindNextTrack: {"sh", "-c", "printf x; for i in $(seq 300); do printf 'é'; done; exit 1"},
	}

	err := p.Execute(context.Background(), deskctl.Command{Kind: deskctl.KindNextTrack})
	if err == nil {
		t.Fatal("Expected failure")
	}
	if !utf8.ValidString(err.Error()) {
		t.Fatalf("Program output cut inside a character: %q", err.Error())
	}
}

func TestProgramsTimeout(t *testing.T) {
	p := Programs{
		deskctl.KindUnmuteZoom: {"sleep", "5"},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := p.Execute(ctx, deskctl.Command{Kind: deskctl.KindUnmuteZoom}); err == nil {
		t.Fatal("Expected timeout")
	}
	if time.Since(start) > 3*time.Second {
		t.Fatal("Program was not killed on timeout")
	}
}

func TestParsePrograms(t *testing.T) {
	p, err := ParsePrograms(map[string]string{"lock_screen": "loginctl lock-session"})
	if err != nil {
		t.Fatal(err)
	}

	if argv := p[deskctl.Kind("lock_screen")]; len(argv) != 2 || argv[0] != "loginctl" {
		t.Fatalf("Unexpected program %v", argv)
	}
	if _, ok := p[deskctl.KindNextTrack]; !ok {
		t.Fatal("Defaults must be kept")
	}

	if _, err := ParsePrograms(map[string]string{"x": "  "}); err == nil {
		t.Fatal("Expected empty program to fail")
	}
}
