package service

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	apperrors "github.com/rep4rep/steam-commenter/internal/errors"
	"github.com/rep4rep/steam-commenter/internal/model"
)

// ParseAccountLine parses one "username:password:sharedSecret" record.
func ParseAccountLine(line string) (model.AccountCredentials, error) {
	parts := strings.SplitN(strings.TrimSpace(line), ":", 3)
	if len(parts) != 3 {
		return model.AccountCredentials{}, apperrors.InvalidRecord("expected username:password:sharedSecret")
	}

	creds := model.AccountCredentials{
		Username:     strings.TrimSpace(parts[0]),
		Password:     parts[1],
		SharedSecret: strings.TrimSpace(parts[2]),
	}
	switch {
	case creds.Username == "":
		return model.AccountCredentials{}, apperrors.InvalidRecord("username is empty")
	case creds.Password == "":
		return model.AccountCredentials{}, apperrors.InvalidRecord("password is empty")
	case creds.SharedSecret == "":
		return model.AccountCredentials{}, apperrors.InvalidRecord("shared secret is empty")
	}
	return creds, nil
}

// ParseAccounts reads newline separated records. Blank lines are ignored and
// malformed records are logged and skipped.
func ParseAccounts(r io.Reader) ([]model.AccountCredentials, error) {
	var accounts []model.AccountCredentials
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		creds, err := ParseAccountLine(line)
		if err != nil {
			log.Warn().Err(err).Int("line", lineNo).Msg("skipping invalid account record")
			continue
		}
		accounts = append(accounts, creds)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read accounts: %w", err)
	}
	return accounts, nil
}

func ParseAccountsFile(path string) ([]model.AccountCredentials, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open accounts file: %w", err)
	}
	defer f.Close()
	return ParseAccounts(f)
}
