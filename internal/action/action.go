// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

// Package action runs the externally visible side effect for one item.
package action

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"os/exec"
	"strings"
	"time"

	pgerr "github.com/postgate-dev/postgate/pkg/errors"
	"github.com/postgate-dev/postgate/pkg/types"
)

// DefaultTimeout bounds one action.
const DefaultTimeout = 5 * time.Minute

// stderrTail is how much trailing stderr is kept as the failure message.
const stderrTail = 2048

// Failure kinds recorded by the failure tracker.
const (
	KindAction  = "action"
	KindTimeout = "timeout"
	KindInvalid = "invalid_item"
)

// Performer executes one action and returns nil on success. Any internal
// retries are the performer's own business.
type Performer interface {
	Perform(ctx context.Context, item types.Item) error
}

// Kind classifies a Perform error for the failure log.
func Kind(err error) string {
	switch {
	case pgerr.IsTimeout(err):
		return KindTimeout
	case pgerr.HasCode(err, pgerr.CodeActionInvalidInput):
		return KindInvalid
	default:
		return KindAction
	}
}

// Simulator validates items without side effects. It backs dry runs.
type Simulator struct{}

var _ Performer = Simulator{}

func (Simulator) Perform(_ context.Context, item types.Item) error {
	return item.Validate()
}

// Exec runs an external command per item. The item is written to stdin as
// JSON; exit status zero means success.
type Exec struct {
	Command []string
	Timeout time.Duration
	Env     []string // appended to the current environment
}

var _ Performer = (*Exec)(nil)

// NewExec returns an Exec performer for argv.
func NewExec(argv []string, timeout time.Duration) (*Exec, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, pgerr.New(pgerr.CodeConfigRequiredMissing, "action.command is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Exec{Command: argv, Timeout: timeout}, nil
}

func (e *Exec) Perform(ctx context.Context, item types.Item) error {
	if err := item.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return pgerr.Wrap(err, pgerr.CodeActionInvalidInput, "encoding item", pgerr.FieldItemURL(item.URL))
	}

	runCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.Command[0], e.Command[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = append(os.Environ(), e.Env...)
	cmd.Env = append(cmd.Env,
		"POSTGATE_ITEM_URL="+item.URL,
		"POSTGATE_ITEM_TITLE="+item.Title,
	)
	cmd.WaitDelay = 5 * time.Second

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err = cmd.Run()
	if err == nil {
		return nil
	}

	if stderrors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return pgerr.New(pgerr.CodeActionTimeout, "action timed out after "+e.Timeout.String(),
			pgerr.FieldItemURL(item.URL))
	}

	msg := tail(stderr.String(), stderrTail)
	if msg == "" {
		msg = err.Error()
	}
	return pgerr.Wrap(err, pgerr.CodeActionPerformFailure, msg, pgerr.FieldItemURL(item.URL))
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
