package keyring

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// PromptSeed prompts the user to enter the signer seed securely (no echo)
func PromptSeed() (string, error) {
	fmt.Fprint(os.Stderr, "Enter signer seed: ")

	// Try to open /dev/tty directly for terminal input
	// Fall back to stdin if tty is not available
	fd := int(os.Stdin.Fd())
	tty, err := os.Open("/dev/tty")
	if err == nil {
		defer tty.Close()
		fd = int(tty.Fd())
	}

	seedBytes, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr) // Print newline after input

	if err != nil {
		return "", fmt.Errorf("failed to read seed: %w", err)
	}

	return string(seedBytes), nil
}
