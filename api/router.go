package api

import (
	"net/http"

	"github.com/chain-credentials/issuer-api/services"
	"github.com/chain-credentials/issuer-api/statuslist"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

type apiRouter struct {
	svc    *services.Service
	logger *zap.Logger
}

func (ar *apiRouter) IssueCredential(w http.ResponseWriter, r *http.Request) error {
	var req IssueCredentialRequest
	if err := readJSONRequest(w, r, &req); err != nil {
		return writeJSONError(w, err)
	}

	ar.logger.Info("Got issue request",
		zap.String("owner", req.Owner),
		zap.String("issuer", req.Issuer),
	)

	cred, err := ar.svc.IssueCredential(r.Context(), services.IssueRequest{
		Owner:          req.Owner,
		Issuer:         req.Issuer,
		Claims:         req.Claims,
		ExpirationDate: req.expiration(),
	})
	if err != nil {
		return writeJSONError(w, err)
	}

	return writeJSONResponse(w, http.StatusCreated, newCredentialResponse(cred), "")
}

func (ar *apiRouter) GetCredential(w http.ResponseWriter, r *http.Request) error {
	id := mux.Vars(r)["id"]

	cred, err := ar.svc.GetCredential(r.Context(), id)
	if err != nil {
		return writeJSONError(w, err)
	}

	return writeJSONResponse(w, http.StatusOK, newCredentialResponse(cred), "")
}

func (ar *apiRouter) UpdateCredentialStatus(w http.ResponseWriter, r *http.Request) error {
	id := mux.Vars(r)["id"]

	var req UpdateStatusRequest
	if err := readJSONRequest(w, r, &req); err != nil {
		return writeJSONError(w, err)
	}

	ar.logger.Info("Got status update request",
		zap.String("credentialID", id),
		zap.String("status", req.Status),
		zap.Bool("assetOnly", req.AssetOnly),
	)

	cred, err := ar.svc.RevokeCredential(r.Context(), services.RevokeRequest{
		CredentialID: id,
		NewStatus:    statuslist.Status(req.Status),
		AssetOnly:    req.AssetOnly,
	})
	if err != nil {
		return writeJSONError(w, err)
	}

	return writeJSONResponse(w, http.StatusOK, newCredentialResponse(cred), "")
}

// Wrapper to log unhandled errors.
// Note that this wrapper is only for last resort errors. For example, caused by
// error handling functions not being able to write a response to the client.
func (ar *apiRouter) wrapHandler(h func(w http.ResponseWriter, r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			ar.logger.Error("Error handling request", zap.Error(err))
		}
	}
}

func NewAPIRouter(path string, svc *services.Service, origins []string, logger *zap.Logger) *mux.Router {
	// Create router.
	ah := &apiRouter{
		svc,
		logger,
	}
	r := mux.NewRouter()
	sr := r.PathPrefix(path).Subrouter()

	// Register handlers.
	allowedMethods := []string{"GET", "POST", "OPTIONS"}
	sr.HandleFunc("/credentials", ah.wrapHandler(ah.IssueCredential)).Methods("POST", "OPTIONS")
	sr.HandleFunc("/credentials/", ah.wrapHandler(ah.IssueCredential)).Methods("POST", "OPTIONS")
	sr.HandleFunc("/credentials/{id}", ah.wrapHandler(ah.GetCredential)).Methods("GET", "OPTIONS")
	sr.HandleFunc("/credentials/{id}/status", ah.wrapHandler(ah.UpdateCredentialStatus)).Methods("POST", "OPTIONS")

	// CORS support.
	ch := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   allowedMethods,
		ExposedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		Debug:            logger.Level() == zap.DebugLevel,
	})
	sr.Use(ch.Handler)

	return r
}
