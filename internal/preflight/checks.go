package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

const checkTimeout = 5 * time.Second

// CheckJellyfin verifies Jellyfin connectivity and authentication.
func CheckJellyfin(ctx context.Context, baseURL, apiKey string) Result {
	const name = "Jellyfin"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}
	if strings.TrimSpace(apiKey) == "" {
		return Result{Name: name, Detail: "missing api key"}
	}

	resp, err := pingEndpoint(ctx, base+"/Users", func(req *http.Request) {
		req.Header.Set("X-Emby-Token", strings.TrimSpace(apiKey))
	})
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("auth check failed (%s)", summarizeError(err))}
	}

	switch resp {
	case http.StatusOK:
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	case http.StatusUnauthorized, http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (invalid api key)"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("auth check failed (%d)", resp)}
	}
}

// CheckRemote verifies the rating site answers. A throttled answer counts as
// reachable but is reported as failing so the operator waits before
// backfilling.
func CheckRemote(ctx context.Context, baseURL string) Result {
	const name = "CSFD"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing base url"}
	}
	status, err := pingEndpoint(ctx, base+"/", nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreachable (%s)", summarizeError(err))}
	}
	switch {
	case status == http.StatusTooManyRequests:
		return Result{Name: name, Detail: "throttled (429); wait before running backfill"}
	case status >= 200 && status < 400:
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("unexpected status (%d)", status)}
	}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckWebRoot verifies the web client directory holds a writable index.html.
func CheckWebRoot(webRoot string) Result {
	const name = "Web client"

	dir := CheckDirectoryAccess(name, webRoot)
	if !dir.Passed {
		return dir
	}
	index := filepath.Join(webRoot, "index.html")
	if _, err := os.Stat(index); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", index, err)}
	}
	if err := unix.Access(index, unix.R_OK|unix.W_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not writable: %v)", index, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (patchable)", index)}
}

func pingEndpoint(ctx context.Context, url string, decorate func(*http.Request)) (int, error) {
	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	if decorate != nil {
		decorate(req)
	}
	client := &http.Client{Timeout: checkTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out"
	}
	return err.Error()
}
