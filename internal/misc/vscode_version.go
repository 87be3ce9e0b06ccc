package misc

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// FallbackVSCodeVersion is sent when the lookup fails.
	FallbackVSCodeVersion = "1.98.1"

	vsCodePKGBUILDURL    = "https://aur.archlinux.org/cgit/aur.git/plain/PKGBUILD?h=visual-studio-code-bin"
	vsCodeLookupTimeout  = 5 * time.Second
	vsCodePKGBUILDMaxLen = 1 << 20
)

var pkgverPattern = regexp.MustCompile(`pkgver=([0-9.]+)`)

// LookupVSCodeVersion reads the current VS Code release from the AUR package
// definition. Any failure returns FallbackVSCodeVersion.
func LookupVSCodeVersion(ctx context.Context, client *http.Client, url string) string {
	if url == "" {
		url = vsCodePKGBUILDURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	ctx, cancel := context.WithTimeout(ctx, vsCodeLookupTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FallbackVSCodeVersion
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Debugf("vscode version lookup failed: %v", err)
		return FallbackVSCodeVersion
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("vscode version lookup: close body error: %v", errClose)
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, vsCodePKGBUILDMaxLen))
	if err != nil || resp.StatusCode != http.StatusOK {
		return FallbackVSCodeVersion
	}
	if m := pkgverPattern.FindSubmatch(body); m != nil {
		return string(m[1])
	}
	return FallbackVSCodeVersion
}
