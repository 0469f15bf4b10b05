// Package firebase builds the Firebase app shared by ID-token verification
// and the Firestore appointment store.
package firebase

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	fb "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

type Config struct {
	ProjectID       string
	CredentialsFile string
}

// ClientOptions returns the Google API options for cfg. Without a
// credentials file the application default credentials are used.
func (cfg Config) ClientOptions() []option.ClientOption {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	return opts
}

type App struct {
	app *fb.App
}

func NewApp(ctx context.Context, cfg Config) (*App, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("firebase project id is required")
	}
	app, err := fb.NewApp(ctx, &fb.Config{ProjectID: cfg.ProjectID}, cfg.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	return &App{app: app}, nil
}

func (a *App) Auth(ctx context.Context) (*fbauth.Client, error) {
	client, err := a.app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase auth: %w", err)
	}
	return client, nil
}

// Firestore returns a new client; callers close it on shutdown.
func (a *App) Firestore(ctx context.Context) (*firestore.Client, error) {
	client, err := a.app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firestore: %w", err)
	}
	return client, nil
}
