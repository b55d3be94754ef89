package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/nulzo/prism-go/internal/cli"
	"github.com/nulzo/prism-go/pkg/prism"
)

var releasesURL = "https://api.github.com/repos/nulzo/prism-go/releases/latest"

type GitHubRelease struct {
	TagName string `json:"tag_name"`
}

func (a *app) version(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	check := fs.Bool("check", false, "Check GitHub for a newer release")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "prism %s\n", prism.Version)
	if !*check {
		return nil
	}

	latest, newer, err := checkForUpdates(ctx, releasesURL, prism.Version)
	if err != nil {
		return fmt.Errorf("update check failed: %w", err)
	}
	if newer {
		fmt.Fprintf(a.out, "%s %s is available, you are running %s\n", cli.Arrow(), latest, prism.Version)
	} else {
		fmt.Fprintf(a.out, "%s up to date\n", cli.CheckMark())
	}
	return nil
}

// checkForUpdates compares current with the latest release tag at url.
func checkForUpdates(ctx context.Context, url, current string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", false, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var release GitHubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", false, err
	}

	cur, err := version.NewVersion(current)
	if err != nil {
		return "", false, err
	}
	latest, err := version.NewVersion(release.TagName)
	if err != nil {
		return "", false, fmt.Errorf("invalid release tag %q: %w", release.TagName, err)
	}

	return release.TagName, cur.LessThan(latest), nil
}
