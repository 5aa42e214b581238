// Package ui asks the user to pick from lists. Items go to fzf on stdin as
// plain text when fzf is installed, never as preview strings or shell
// commands. Without fzf a built-in picker runs on the terminal.
package ui

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// ErrCancelled is returned when the user aborts a prompt.
var ErrCancelled = errors.New("selection cancelled")

// fzfInterrupted is fzf's exit status for Esc and Ctrl-C.
const fzfInterrupted = 130

func interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Select presents items and returns the index of the chosen one.
func Select(prompt string, items []string) (int, error) {
	if len(items) == 0 {
		return -1, fmt.Errorf("no items to select from")
	}

	if _, err := exec.LookPath("fzf"); err != nil {
		if !interactive() {
			return -1, fmt.Errorf("fzf not found in PATH and stdin is not a terminal")
		}
		return runPicker(prompt, items)
	}

	// Each line carries its index in a hidden first field.
	var input strings.Builder
	for i, item := range items {
		fmt.Fprintf(&input, "%d\t%s\n", i, item)
	}
	out, err := fzf(input.String(), prompt,
		"--height", "40%",
		"--with-nth", "2..",
		"--delimiter", "\t",
		"--no-multi",
		"--cycle",
	)
	if errors.Is(err, errNoMatch) {
		return -1, ErrCancelled
	}
	if err != nil {
		return -1, err
	}
	return parseSelection(out, len(items))
}

// Input prompts the user for free text.
func Input(prompt string) (string, error) {
	if _, err := exec.LookPath("fzf"); err != nil {
		fmt.Fprintf(os.Stderr, "%s > ", prompt)
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", ErrCancelled
		}
		return nonEmpty(line)
	}

	// --print-query exits 1 when nothing matches the empty list.
	out, err := fzf("", prompt, "--height", "10%", "--print-query", "--no-info")
	if err != nil && !errors.Is(err, errNoMatch) {
		return "", err
	}
	query, _, _ := strings.Cut(out, "\n")
	return nonEmpty(query)
}

var errNoMatch = errors.New("fzf: no match")

// fzf runs fzf over input with the shared prompt flags and returns stdout.
func fzf(input, prompt string, args ...string) (string, error) {
	cmd := exec.Command("fzf", append([]string{"--prompt", prompt + " > ", "--reverse"}, args...)...)
	cmd.Stdin = strings.NewReader(input)
	cmd.Stderr = os.Stderr
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return stdout.String(), nil
	case errors.As(err, &exitErr) && exitErr.ExitCode() == fzfInterrupted:
		return "", ErrCancelled
	case errors.As(err, &exitErr) && exitErr.ExitCode() == 1:
		return stdout.String(), errNoMatch
	default:
		return "", fmt.Errorf("fzf failed: %w", err)
	}
}

// parseSelection reads the index field of an fzf output line.
func parseSelection(out string, n int) (int, error) {
	selected := strings.TrimSpace(out)
	if selected == "" {
		return -1, ErrCancelled
	}
	field, _, _ := strings.Cut(selected, "\t")
	idx, err := strconv.Atoi(field)
	if err != nil {
		return -1, fmt.Errorf("parsing selection index: %w", err)
	}
	if idx < 0 || idx >= n {
		return -1, fmt.Errorf("selection index %d out of range", idx)
	}
	return idx, nil
}

func nonEmpty(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("no input provided")
	}
	return s, nil
}
