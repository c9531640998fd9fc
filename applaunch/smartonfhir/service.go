package smartonfhir

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/SanteonNL/bptrafficlight/app"
	"github.com/SanteonNL/bptrafficlight/lib/coolfhir"
	"github.com/SanteonNL/bptrafficlight/lib/logging"
	"github.com/SanteonNL/bptrafficlight/user"
	fhirclient "github.com/SanteonNL/go-fhir-client"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
	"github.com/zitadel/oidc/v3/pkg/client/rp"
	zitadelHTTP "github.com/zitadel/oidc/v3/pkg/http"
	"github.com/zitadel/oidc/v3/pkg/oidc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

const clientAssertionExpiry = 3 * time.Minute
const clockSkew = 5 * time.Second

// SessionData is what a SMART on FHIR launch stores in the user session.
type SessionData struct {
	Issuer      string
	PatientID   string
	AccessToken string
}

// Launcher receives the EHR session of a successful launch, and is told when it ends.
type Launcher interface {
	ConnectSMART(ctx context.Context, session app.EHRSession) (*app.Status, error)
	DisconnectSMART(ctx context.Context, sessionID string)
}

type Service struct {
	config              Config
	sessionManager      *user.SessionManager[SessionData]
	launcher            Launcher
	frontendBaseURL     *url.URL
	baseURL             *url.URL
	issuersByURL        map[string]*trustedIssuer
	issuersByKey        map[string]*trustedIssuer
	strictMode          bool
	cookieHandler       *zitadelHTTP.CookieHandler
	jwtSigningKey       *jose.SigningKey
	jwtSigningKeyJWKSet *jose.JSONWebKeySet
	tracer              trace.Tracer
}

type trustedIssuer struct {
	issuerLaunchURL string
	mux             *sync.RWMutex
	client          rp.RelyingParty
	key             string
	clientID        string
	realIssuerURL   string
}

func (t trustedIssuer) issuerURL() string {
	// Some EHRs (e.g. Epic) use an issuer URL that differs from the 'iss' parameter in the application launch,
	// so the configured OAuth2 URL takes precedence.
	if t.realIssuerURL != "" {
		return t.realIssuerURL
	}
	return t.issuerLaunchURL
}

func New(config Config, sessionManager *user.SessionManager[SessionData], launcher Launcher, baseURL *url.URL, frontendBaseURL *url.URL, strictMode bool) (*Service, error) {
	issuersByURL := make(map[string]*trustedIssuer)
	issuersByKey := make(map[string]*trustedIssuer)
	for key, curr := range config.Issuer {
		issuer := &trustedIssuer{
			mux:             &sync.RWMutex{},
			key:             key,
			issuerLaunchURL: curr.URL,
			clientID:        curr.ClientID,
			realIssuerURL:   curr.OAuth2URL,
		}
		issuersByURL[curr.URL] = issuer
		issuersByKey[key] = issuer
	}
	cookieHashKey := make([]byte, 32)
	if _, err := rand.Read(cookieHashKey); err != nil {
		return nil, err
	}
	cookieEncryptKey := make([]byte, 32)
	if _, err := rand.Read(cookieEncryptKey); err != nil {
		return nil, err
	}
	var cookieHandlerOpts []zitadelHTTP.CookieHandlerOpt
	if !strictMode {
		cookieHandlerOpts = append(cookieHandlerOpts, zitadelHTTP.WithUnsecure())
	}
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate JWT signing key: %w", err)
	}
	service := &Service{
		config:          config,
		baseURL:         baseURL,
		frontendBaseURL: frontendBaseURL,
		strictMode:      strictMode,
		issuersByURL:    issuersByURL,
		issuersByKey:    issuersByKey,
		cookieHandler:   zitadelHTTP.NewCookieHandler(cookieHashKey, cookieEncryptKey, cookieHandlerOpts...),
		sessionManager:  sessionManager,
		launcher:        launcher,
		jwtSigningKey: &jose.SigningKey{
			Algorithm: jose.ES256,
			Key:       privateKey,
		},
		jwtSigningKeyJWKSet: &jose.JSONWebKeySet{
			Keys: []jose.JSONWebKey{
				{
					Key:   privateKey.Public(),
					KeyID: "default",
					Use:   "sig",
				},
			},
		},
		tracer: otel.Tracer("smartonfhir"),
	}
	sessionManager.OnExpire(func(id string, _ SessionData) {
		launcher.DisconnectSMART(context.Background(), id)
	})
	return service, nil
}

func (s *Service) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /smart-app-launch", s.handleAppLaunch)
	mux.HandleFunc("GET /smart-app-launch/callback/{key}", s.handleCallback)
	mux.HandleFunc("GET /smart-app-launch/.well-known/jwks.json", s.handleGetJWKs)
}

func (s *Service) handleAppLaunch(response http.ResponseWriter, request *http.Request) {
	issuer := request.URL.Query().Get("iss")
	slog.InfoContext(request.Context(), "SMART on FHIR app launch request", slog.String(logging.FieldUrl, request.URL.String()))
	if len(issuer) == 0 {
		s.SendError(request.Context(), issuer, errors.New("invalid iss parameter"), response, http.StatusBadRequest)
		return
	}
	launch := request.URL.Query().Get("launch")

	provider, err := s.getIssuerByURL(request.Context(), issuer)
	if err != nil {
		s.SendError(request.Context(), issuer, fmt.Errorf("failed to get OIDC client for issuer: %w", err), response, http.StatusBadRequest)
		return
	}
	urlOptions := []rp.URLParamOpt{
		// SMART requires the FHIR base URL as audience of the authorization request
		rp.WithURLParam("aud", issuer),
	}
	if launch != "" {
		urlOptions = append(urlOptions, rp.WithURLParam("launch", launch))
	}
	rp.AuthURLHandler(uuid.NewString, provider, urlOptions...)(response, request)
}

func (s *Service) handleCallback(response http.ResponseWriter, request *http.Request) {
	issuerKey := request.PathValue("key")
	issuer, ok := s.issuersByKey[issuerKey]
	if !ok {
		s.SendError(request.Context(), "key: "+issuerKey, fmt.Errorf("unknown issuer key: %s", issuerKey), response, http.StatusBadRequest)
		return
	}
	provider, err := s.initializeIssuer(request.Context(), issuer)
	if err != nil {
		s.SendError(request.Context(), issuer.key, err, response, http.StatusInternalServerError)
		return
	}
	// zitadel/oidc's client_assertion JWT profile doesn't support the 'jti' parameter,
	// so we sign it ourselves and pass it as a URL parameter.
	clientAssertion, err := s.createClientAssertion(issuer.clientID, provider.OAuthConfig().Endpoint.TokenURL)
	if err != nil {
		s.SendError(request.Context(), issuer.key, fmt.Errorf("failed to create client assertion: %w", err), response, http.StatusInternalServerError)
		return
	}
	codeExchangeOpts := []rp.URLParamOpt{
		rp.URLParamOpt(rp.WithClientAssertionJWT(clientAssertion)),
	}
	rp.CodeExchangeHandler(func(httpResponse http.ResponseWriter, httpRequest *http.Request, tokens *oidc.Tokens[*oidc.IDTokenClaims], _ string, _ rp.RelyingParty) {
		patientID, err := patientFromTokens(tokens)
		if err != nil {
			s.SendError(httpRequest.Context(), issuer.key, err, httpResponse, http.StatusBadRequest)
			return
		}
		data := SessionData{
			Issuer:      issuer.issuerLaunchURL,
			PatientID:   patientID,
			AccessToken: tokens.AccessToken,
		}
		sessionID := s.sessionManager.Create(httpResponse, data)
		ehrSession, err := s.ehrSession(sessionID, data)
		if err != nil {
			s.sessionManager.Delete(sessionID)
			s.SendError(httpRequest.Context(), issuer.key, err, httpResponse, http.StatusInternalServerError)
			return
		}
		if _, err := s.launcher.ConnectSMART(httpRequest.Context(), *ehrSession); err != nil {
			s.sessionManager.Delete(sessionID)
			s.SendError(httpRequest.Context(), issuer.key, fmt.Errorf("failed to connect to EHR: %w", err), httpResponse, http.StatusBadGateway)
			return
		}
		slog.InfoContext(httpRequest.Context(), "SMART on FHIR app launch succeeded",
			slog.String(logging.FieldIssuer, data.Issuer),
			slog.String(logging.FieldPatientID, patientID))
		http.Redirect(httpResponse, httpRequest, s.frontendBaseURL.String(), http.StatusFound)
	}, provider, codeExchangeOpts...)(response, request)
}

// patientFromTokens returns the launch context patient from the token response.
func patientFromTokens(tokens *oidc.Tokens[*oidc.IDTokenClaims]) (string, error) {
	patientID, _ := tokens.Extra("patient").(string)
	patientID = strings.TrimPrefix(patientID, "Patient/")
	if patientID == "" {
		return "", errors.New("no patient ID found in token response")
	}
	return patientID, nil
}

// ehrSession builds the EHR session for a launch, with a FHIR client that authenticates using the access token.
func (s *Service) ehrSession(sessionID string, data SessionData) (*app.EHRSession, error) {
	baseURL, err := url.Parse(data.Issuer)
	if err != nil {
		return nil, fmt.Errorf("invalid issuer URL: %w", err)
	}
	return &app.EHRSession{
		SessionID: sessionID,
		Issuer:    data.Issuer,
		PatientID: data.PatientID,
		Client:    s.createFHIRClient(baseURL, data.AccessToken),
	}, nil
}

func (s *Service) getIssuerByURL(ctx context.Context, issuer string) (rp.RelyingParty, error) {
	iss, ok := s.issuersByURL[issuer]
	if !ok {
		return nil, errors.New("unknown SMART on FHIR issuer")
	}
	return s.initializeIssuer(ctx, iss)
}

func (s *Service) initializeIssuer(ctx context.Context, issuer *trustedIssuer) (rp.RelyingParty, error) {
	issuer.mux.RLock()
	if issuer.client != nil {
		issuer.mux.RUnlock()
		return issuer.client, nil
	}
	issuer.mux.RUnlock()
	// Client not created yet
	issuer.mux.Lock()
	defer issuer.mux.Unlock()
	if issuer.client != nil {
		return issuer.client, nil
	}

	options := []rp.Option{
		rp.WithCookieHandler(s.cookieHandler),
		rp.WithVerifierOpts(rp.WithIssuedAtOffset(clockSkew)),
		rp.WithHTTPClient(&http.Client{Transport: coolfhir.NewTracedHTTPTransport(http.DefaultTransport, s.tracer)}),
		rp.WithSigningAlgsFromDiscovery(),
		rp.WithLogger(slog.Default()),
		rp.WithUnauthorizedHandler(func(httpResponse http.ResponseWriter, httpRequest *http.Request, desc string, _ string) {
			s.SendError(httpRequest.Context(), issuer.key, fmt.Errorf("unauthorized: %s", desc), httpResponse, http.StatusUnauthorized)
		}),
	}

	scopes := append([]string{oidc.ScopeOpenID, "fhirUser"}, s.config.Scopes...)
	redirectURI := s.baseURL.JoinPath("smart-app-launch", "callback", issuer.key)
	slog.InfoContext(
		ctx,
		"Initiating SMART on FHIR flow",
		slog.String("issuer_url", issuer.issuerURL()),
		slog.String("client_id", issuer.clientID),
		slog.String("redirect_uri", redirectURI.String()),
		slog.String("scopes", strings.Join(scopes, ",")),
	)
	// The client authenticates using a signed client assertion, not a secret
	provider, err := rp.NewRelyingPartyOIDC(ctx, issuer.issuerURL(), issuer.clientID, "", redirectURI.String(), scopes, options...)
	if err != nil {
		return nil, fmt.Errorf("provider: %w", err)
	}
	issuer.client = provider
	return provider, nil
}

func (s *Service) handleGetJWKs(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	jsonBytes, _ := json.Marshal(s.jwtSigningKeyJWKSet)
	httpResponse.Header().Set("Content-Type", "application/json")
	httpResponse.Header().Set("Cache-Control", "public, max-age=3600")
	httpResponse.WriteHeader(http.StatusOK)
	if _, err := httpResponse.Write(jsonBytes); err != nil {
		slog.WarnContext(httpRequest.Context(), "Failed to write JWKSet response", slog.String(logging.FieldError, err.Error()))
	}
}

func (s *Service) SendError(ctx context.Context, issuer string, err error, httpResponse http.ResponseWriter, httpStatusCode int) {
	launchId := uuid.NewString()
	slog.ErrorContext(
		ctx,
		"SMART on FHIR launch failed",
		slog.String(logging.FieldIssuer, issuer),
		slog.String("launch_id", launchId),
		slog.String(logging.FieldError, err.Error()),
	)
	msg := "SMART on FHIR launch failed (id=" + launchId + ")"
	if !s.strictMode {
		msg += ": " + err.Error()
	}
	http.Error(httpResponse, msg, httpStatusCode)
}

func (s *Service) createClientAssertion(clientID string, audience string) (string, error) {
	signer, err := jose.NewSigner(*s.jwtSigningKey, (&jose.SignerOptions{}).
		WithType("JWT").
		WithHeader("kid", s.jwtSigningKeyJWKSet.Keys[0].KeyID))
	if err != nil {
		return "", fmt.Errorf("failed to create JWT signer: %w", err)
	}
	cl := jwt.Claims{
		Subject:   clientID,
		Issuer:    clientID,
		NotBefore: jwt.NewNumericDate(time.Now().Add(-clockSkew)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		Expiry:    jwt.NewNumericDate(time.Now().Add(clientAssertionExpiry)),
		Audience:  jwt.Audience{audience},
		ID:        uuid.NewString(),
	}
	result, err := jwt.Signed(signer).Claims(cl).Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to serialize JWT client assertion: %w", err)
	}
	return result, nil
}

// createFHIRClient creates a traced FHIR client that sends the access token as bearer token.
func (s *Service) createFHIRClient(baseURL *url.URL, accessToken string) fhirclient.Client {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{
		Transport: coolfhir.NewTracedHTTPTransport(http.DefaultTransport, s.tracer),
	})
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	return coolfhir.NewTracedFHIRClient(fhirclient.New(baseURL, httpClient, coolfhir.Config()), s.tracer)
}
