package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/router-for-me/GroundedSearchMCP/internal/browser"
)

// CallbackPort is the local port used for the OAuth loopback redirect.
const CallbackPort = 8085

// LoginLocal runs a complete interactive login: it starts a PKCE flow with a
// localhost redirect, opens the authorization URL in a browser (unless
// noBrowser is set, in which case the URL is only logged for manual use),
// waits for the callback, and exchanges the code. It blocks until the flow
// completes, fails, or times out after FlowTTL.
func (m *FlowManager) LoginLocal(ctx context.Context, provider string, noBrowser bool) (*ProviderToken, error) {
	redirectURI := fmt.Sprintf("http://localhost:%d/oauth2callback", CallbackPort)
	flow, err := m.StartAuthFlow(provider, redirectURI)
	if err != nil {
		return nil, err
	}

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	// Bind loopback only; the redirect targets localhost and the one-shot
	// code must not be receivable from the network.
	server := &http.Server{Addr: fmt.Sprintf("localhost:%d", CallbackPort), Handler: mux}

	mux.HandleFunc("/oauth2callback", func(w http.ResponseWriter, r *http.Request) {
		if errParam := r.URL.Query().Get("error"); errParam != "" {
			_, _ = fmt.Fprintf(w, "Authentication failed: %s", errParam)
			errChan <- fmt.Errorf("authentication failed via callback: %s", errParam)
			return
		}
		if state := r.URL.Query().Get("state"); state != flow.State {
			_, _ = fmt.Fprint(w, "Authentication failed: state mismatch.")
			errChan <- fmt.Errorf("callback state mismatch; possible CSRF, restart login")
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			_, _ = fmt.Fprint(w, "Authentication failed: code not found.")
			errChan <- fmt.Errorf("code not found in callback")
			return
		}
		_, _ = fmt.Fprint(w, "<html><body><h1>Authentication successful!</h1><p>You can close this window.</p></body></html>")
		codeChan <- code
	})

	go func() {
		if errServe := server.ListenAndServe(); !errors.Is(errServe, http.ErrServerClosed) {
			errChan <- fmt.Errorf("callback server: %w", errServe)
		}
	}()

	log.Infof("Open this URL to authenticate with %s:\n\n%s\n", provider, flow.AuthURL)
	if !noBrowser {
		if errOpen := browser.OpenURL(flow.AuthURL); errOpen != nil {
			log.Errorf("Failed to open browser: %v. Please open the URL manually.", errOpen)
		}
	}

	var authCode string
	select {
	case code := <-codeChan:
		authCode = code
	case errCallback := <-errChan:
		_ = server.Shutdown(ctx)
		return nil, errCallback
	case <-time.After(FlowTTL):
		_ = server.Shutdown(ctx)
		return nil, fmt.Errorf("%s login timed out after %s", provider, FlowTTL)
	case <-ctx.Done():
		_ = server.Shutdown(ctx)
		return nil, ctx.Err()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		log.Errorf("Failed to shut down callback server: %v", errShutdown)
	}

	token, _, errComplete := m.CompleteAuthFlow(ctx, flow.State, authCode)
	if errComplete != nil {
		return nil, errComplete
	}

	log.Info("Authentication successful.")
	return token, nil
}

// LoginManual runs a login without a local callback server, for terminals
// where a loopback redirect cannot fire (SSH sessions, containers). The
// provider's default redirect page displays the authorization code, which the
// user pastes back on in. It blocks until the code is read, the context is
// cancelled, or the flow times out after FlowTTL.
func (m *FlowManager) LoginManual(ctx context.Context, provider string, in io.Reader, out io.Writer) (*ProviderToken, error) {
	flow, err := m.StartAuthFlow(provider, "")
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(out, "Open this URL to authenticate with %s:\n\n%s\n\n", provider, flow.AuthURL)
	fmt.Fprint(out, "Paste the authorization code shown after sign-in: ")

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)
	go func() {
		line, errRead := bufio.NewReader(in).ReadString('\n')
		if errRead != nil && line == "" {
			errChan <- fmt.Errorf("read authorization code: %w", errRead)
			return
		}
		codeChan <- strings.TrimSpace(line)
	}()

	var authCode string
	select {
	case authCode = <-codeChan:
	case errRead := <-errChan:
		return nil, errRead
	case <-time.After(FlowTTL):
		return nil, fmt.Errorf("%s login timed out after %s", provider, FlowTTL)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if authCode == "" {
		return nil, errors.New("empty authorization code")
	}

	token, _, errComplete := m.CompleteAuthFlow(ctx, flow.State, authCode)
	if errComplete != nil {
		return nil, errComplete
	}

	log.Info("Authentication successful.")
	return token, nil
}
