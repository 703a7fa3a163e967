package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	app "eventgallery/src/app"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type (
	// Scopes lists the downstream scopes requested per service.
	Scopes struct {
		Dataverse []string
		GraphUser []string
		GraphApp  []string
	}

	// Dependencies wires the handlers to their collaborators. A nil Verifier
	// disables inbound assertion verification.
	Dependencies struct {
		Logger     *logrus.Logger
		Gallery    BlobGallery
		UserTokens TokenExchanger
		AppTokens  TokenExchanger
		Events     EventSource
		Folders    FolderImageSource
		Tokens     TokenCache
		Verifier   AssertionVerifier
		Scopes     Scopes

		StaticDir       string
		Pprof           bool
		RateLimit       int
		RateLimitWindow time.Duration
	}

	AppHandler struct {
		gallery    BlobGallery
		userTokens TokenExchanger
		appTokens  TokenExchanger
		events     EventSource
		folders    FolderImageSource
		tokens     TokenCache
		verifier   AssertionVerifier
		scopes     Scopes
		log        *logrus.Entry
	}
)

func NewHandler(deps Dependencies) *AppHandler {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AppHandler{
		gallery:    deps.Gallery,
		userTokens: deps.UserTokens,
		appTokens:  deps.AppTokens,
		events:     deps.Events,
		folders:    deps.Folders,
		tokens:     deps.Tokens,
		verifier:   deps.Verifier,
		scopes:     deps.Scopes,
		log:        logger.WithField("component", "handler"),
	}
}

func (a *AppHandler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// Preflight answers CORS preflight requests. The headers are set by the
// CORS middleware.
func (a *AppHandler) Preflight(c *gin.Context) {
	c.Status(http.StatusOK)
}

// assertion returns the caller's verified access token.
func (a *AppHandler) assertion(ctx context.Context, c *gin.Context) (string, error) {
	assertion := userAssertion(c)
	if assertion == "" {
		return "", fmt.Errorf("%w: %s header missing", app.ErrMissingAssertion, headerAccessToken)
	}
	if a.verifier != nil {
		if err := a.verifier.Verify(ctx, assertion); err != nil {
			return "", fmt.Errorf("%w: %v", errUnauthenticated, err)
		}
	}
	return assertion, nil
}
