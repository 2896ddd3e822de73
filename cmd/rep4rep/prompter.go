package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rep4rep/steam-commenter/internal/model"
	"github.com/rep4rep/steam-commenter/internal/service"
)

// linePrompter asks for interrupt responses on a terminal.
type linePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newStdinPrompter() *linePrompter {
	return newLinePrompter(os.Stdin, os.Stderr)
}

func newLinePrompter(in io.Reader, out io.Writer) *linePrompter {
	return &linePrompter{in: bufio.NewReader(in), out: out}
}

func (p *linePrompter) Prompt(ctx context.Context, req service.PromptRequest) (string, error) {
	switch req.Status {
	case model.SessionNeedsEmailCode:
		fmt.Fprintf(p.out, "[%s] Steam Guard code sent to your @%s address: ", req.Username, req.EmailDomain)
	case model.SessionNeedsMobileCode:
		fmt.Fprintf(p.out, "[%s] Steam Guard mobile code: ", req.Username)
	case model.SessionNeedsCaptcha:
		fmt.Fprintf(p.out, "[%s] Captcha required, open %s and type the text: ", req.Username, req.CaptchaURL)
	default:
		return "", fmt.Errorf("no prompt for status %s", req.Status)
	}

	type result struct {
		line string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil
		}
		done <- result{strings.TrimSpace(line), err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("read response: %w", r.err)
		}
		return r.line, nil
	}
}
