package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/cmodk/deskctl"
)

const maxOutput = 256

// DefaultPrograms drive a Linux desktop with xdotool and playerctl.
var DefaultPrograms = map[deskctl.Kind][]string{
	deskctl.KindUnmuteZoom: {"xdotool", "search", "--name", "Zoom Meeting", "key", "--clearmodifiers", "alt+a"},
	deskctl.KindNextTrack:  {"playerctl", "next"},
}

// Programs executes a command by running the external program configured
// for its kind. The program is run once per payload "count", with the
// command in DESKCTL_* environment variables.
type Programs map[deskctl.Kind][]string

// ParsePrograms reads kind=command line pairs on top of DefaultPrograms.
func ParsePrograms(pairs map[string]string) (Programs, error) {
	p := Programs{}
	for k, argv := range DefaultPrograms {
		p[k] = argv
	}

	for kind, line := range pairs {
		argv := strings.Fields(line)
		if len(argv) == 0 {
			return nil, fmt.Errorf("empty program for %s", kind)
		}
		p[deskctl.Kind(kind)] = argv
	}

	return p, nil
}

func (p Programs) Execute(ctx context.Context, c deskctl.Command) error {
	argv, ok := p[c.Kind]
	if !ok {
		return fmt.Errorf("no program configured for %s", c.Kind)
	}

	times, err := c.Payload.Int("count", 1)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(c.Payload)
	if err != nil {
		return err
	}

	for i := 0; i < times; i++ {
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Env = append(os.Environ(),
			fmt.Sprintf("DESKCTL_COMMAND_ID=%d", c.Id),
			fmt.Sprintf("DESKCTL_COMMAND_TYPE=%s", c.Kind),
			fmt.Sprintf("DESKCTL_PAYLOAD=%s", payload),
		)

		out, err := cmd.CombinedOutput()
		if err != nil {
			output := deskctl.Truncate(strings.TrimSpace(string(out)), maxOutput)
			if output == "" {
				return fmt.Errorf("%s: %w", argv[0], err)
			}
			return fmt.Errorf("%s: %w: %s", argv[0], err, output)
		}
	}

	return nil
}
