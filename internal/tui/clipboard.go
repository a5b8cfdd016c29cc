package tui

import (
	"strings"

	"github.com/atotto/clipboard"
)

func copyToClipboard(s string) error {
	return clipboard.WriteAll(strings.ReplaceAll(s, "\r\n", "\n"))
}

func readClipboard() (string, error) {
	s, err := clipboard.ReadAll()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(s, "\r\n", "\n"), nil
}
