// Package browser opens the GitHub device verification page in the user's browser.
package browser

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"

	log "github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
)

var errNoOpener = errors.New("browser: no opener found")

// fallbackOpeners lists, per GOOS, the commands tried after open-golang fails.
// Each entry is argv without the URL.
var fallbackOpeners = map[string][][]string{
	"darwin":  {{"open"}},
	"windows": {{"rundll32", "url.dll,FileProtocolHandler"}},
	"linux":   {{"xdg-open"}, {"x-www-browser"}, {"www-browser"}, {"firefox"}, {"chromium"}, {"google-chrome"}},
}

// OpenURL shows url in the default browser. It does not wait for the browser to exit.
func OpenURL(url string) error {
	errOpen := open.Start(url)
	if errOpen == nil {
		log.Debugf("browser: opened %s", url)
		return nil
	}
	log.Debugf("browser: open-golang: %v", errOpen)

	for _, argv := range fallbackOpeners[runtime.GOOS] {
		if _, err := exec.LookPath(argv[0]); err != nil {
			continue
		}
		args := append(append([]string{}, argv[1:]...), url)
		if err := exec.Command(argv[0], args...).Start(); err != nil {
			return fmt.Errorf("browser: start %s: %w", argv[0], err)
		}
		return nil
	}
	return fmt.Errorf("%w for %s", errNoOpener, runtime.GOOS)
}
