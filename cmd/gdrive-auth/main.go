// Command gdrive-auth runs the OAuth consent flow once and prints the refresh
// token used by the gdrive storage provider (GDRIVE_REFRESH_TOKEN).
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"

	"teamart/internal/config"
	"teamart/internal/pkg/logger"
)

const authTimeout = 3 * time.Minute

func main() {
	_ = godotenv.Load()
	log := logger.New(logger.Config{Level: "info", Format: "text", ServiceName: "gdrive-auth"})

	clientID := config.Env("GDRIVE_CLIENT_ID", "")
	clientSecret := config.Env("GDRIVE_CLIENT_SECRET", "")
	if clientID == "" || clientSecret == "" {
		log.LogFatal("GDRIVE_CLIENT_ID and GDRIVE_CLIENT_SECRET must be set", nil)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.LogFatal("failed to listen for the oauth callback", err)
	}
	redirect := fmt.Sprintf("http://%s/callback", ln.Addr())

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
		RedirectURL:  redirect,
	}
	state := randomState()

	// Offline access plus a forced consent prompt yields a refresh token.
	fmt.Println("\nOpen this URL in your browser:")
	fmt.Println(conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent")))
	log.Info("waiting for authorization", "redirect_url", redirect, "timeout", authTimeout.String())

	ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
	defer cancel()

	code, err := waitForCode(ctx, ln, state)
	if err != nil {
		log.LogFatal("authorization failed", err)
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		log.LogFatal("failed to exchange the authorization code", err)
	}
	if strings.TrimSpace(tok.RefreshToken) == "" {
		log.Warn("no refresh token returned; revoke the app at https://myaccount.google.com/permissions and run again")
		return
	}

	fmt.Println("\nREFRESH TOKEN:")
	fmt.Println(tok.RefreshToken)
}

// waitForCode serves /callback on ln until one callback arrives or ctx ends.
// The listener is closed on return.
func waitForCode(ctx context.Context, ln net.Listener, state string) (string, error) {
	type outcome struct {
		code string
		err  error
	}
	result := make(chan outcome, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		code, err := callbackCode(r, state)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
		} else {
			fmt.Fprintln(w, "Authorized. You can close this window and return to the terminal.")
		}
		select {
		case result <- outcome{code, err}:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	select {
	case o := <-result:
		return o.code, o.err
	case <-ctx.Done():
		return "", errors.New("timed out waiting for authorization")
	}
}

// callbackCode validates the callback query and returns the authorization code.
func callbackCode(r *http.Request, state string) (string, error) {
	q := r.URL.Query()
	switch {
	case q.Get("state") != state:
		return "", errors.New("invalid state")
	case q.Get("error") != "":
		return "", fmt.Errorf("auth error: %s", q.Get("error"))
	case q.Get("code") == "":
		return "", errors.New("missing code")
	}
	return q.Get("code"), nil
}

func randomState() string {
	b := make([]byte, 18)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
