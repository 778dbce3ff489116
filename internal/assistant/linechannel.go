package assistant

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// LineChannel is a Channel over newline-delimited JSON. Each input line is
// an Event, a bare ToolCallEvent object, or plain text taken as a
// transcript. Responses are written one JSON object per line.
type LineChannel struct {
	r io.Reader

	start sync.Once
	lines chan lineResult
	done  chan struct{}
	stop  sync.Once

	wmu sync.Mutex
	w   io.Writer
}

type lineResult struct {
	line []byte
	err  error
}

func NewLineChannel(r io.Reader, w io.Writer) *LineChannel {
	return &LineChannel{
		r:     r,
		w:     w,
		lines: make(chan lineResult),
		done:  make(chan struct{}),
	}
}

func (c *LineChannel) read() {
	defer close(c.lines)
	sc := bufio.NewScanner(c.r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		select {
		case c.lines <- lineResult{line: append([]byte(nil), line...)}:
		case <-c.done:
			return
		}
	}
	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	select {
	case c.lines <- lineResult{err: err}:
	case <-c.done:
	}
}

// Receive returns the next event, or io.EOF when the input ends.
func (c *LineChannel) Receive(ctx context.Context) (Event, error) {
	c.start.Do(func() { go c.read() })
	select {
	case <-ctx.Done():
		return Event{}, ctx.Err()
	case res, ok := <-c.lines:
		if !ok {
			return Event{}, io.EOF
		}
		if res.err != nil {
			return Event{}, res.err
		}
		return parseLine(res.line)
	}
}

func parseLine(line []byte) (Event, error) {
	if line[0] != '{' {
		return Event{Kind: KindTranscript, Text: string(line)}, nil
	}
	var probe struct {
		Kind     Kind   `json:"kind"`
		ToolName string `json:"toolName"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		return Event{}, fmt.Errorf("assistant: malformed line: %w", err)
	}
	if probe.Kind == "" && probe.ToolName != "" {
		var call ToolCallEvent
		if err := json.Unmarshal(line, &call); err != nil {
			return Event{}, fmt.Errorf("assistant: malformed tool call: %w", err)
		}
		return Event{Kind: KindToolCall, ToolCall: &call}, nil
	}
	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return Event{}, fmt.Errorf("assistant: malformed event: %w", err)
	}
	return ev, nil
}

func (c *LineChannel) SendToolResponse(ctx context.Context, resp ToolResponse) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err = c.w.Write(append(b, '\n'))
	return err
}

// Close stops the reader goroutine. A read already blocked in the
// underlying reader returns when that reader is closed.
func (c *LineChannel) Close() error {
	c.stop.Do(func() { close(c.done) })
	return nil
}
