package collectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"daybrief/internal/domain/digest"
)

// CommandFeed runs a local command and parses its stdout as JSON. Used for
// sources read through a CLI (calendar exports, mail scripts) instead of an
// HTTP gateway. The look-back window is appended as an hours argument.
type CommandFeed struct {
	name string
	bin  string
	args []string
}

func NewCommandFeed(name, bin string, args ...string) *CommandFeed {
	return &CommandFeed{name: name, bin: bin, args: args}
}

func (c *CommandFeed) Fetch(ctx context.Context, window time.Duration) (digest.Data, error) {
	hours := int(window.Hours())
	if hours < 1 {
		hours = 1
	}
	args := append(append([]string{}, c.args...), "--window-hours", strconv.Itoa(hours))

	cmd := exec.CommandContext(ctx, c.bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("source %s: %s exited %d: %s", c.name, c.bin, ee.ExitCode(), stderr.String())
		}
		return nil, fmt.Errorf("source %s: run %s: %w", c.name, c.bin, err)
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return nil, nil
	}

	var data digest.Data
	if err := json.Unmarshal(out, &data); err != nil {
		return nil, fmt.Errorf("source %s: decode output: %w", c.name, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}
